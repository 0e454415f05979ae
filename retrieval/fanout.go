package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/supportrag/core"
)

// Outcome is the settled result of one source: candidates or an error.
type Outcome struct {
	Candidates []core.Candidate
	Err        error
}

// FanOut runs a fixed set of retrievers concurrently on a shared worker pool.
// It is safe for concurrent use by independent queries.
type FanOut struct {
	retrievers []SourceRetriever
	pool       *ants.Pool
	ownsPool   bool
	logger     *slog.Logger
}

// FanOutOption configures a FanOut.
type FanOutOption func(*FanOut) error

// WithPool runs retrievals on an existing pool. The caller keeps ownership.
// The pool should be created with ants.WithNonblocking(true): Submit on a
// blocking pool cannot observe the query deadline.
func WithPool(pool *ants.Pool) FanOutOption {
	return func(f *FanOut) error {
		if pool == nil {
			return nil
		}
		if f.ownsPool && f.pool != nil {
			f.pool.Release()
		}
		f.pool = pool
		f.ownsPool = false
		return nil
	}
}

// WithPoolSize sets the size of the pool FanOut creates for itself.
// Default is 16 workers, enough for several concurrent queries.
func WithPoolSize(size int) FanOutOption {
	return func(f *FanOut) error {
		if size < 1 {
			size = 1
		}
		pool, err := newPool(size)
		if err != nil {
			return err
		}
		if f.ownsPool && f.pool != nil {
			f.pool.Release()
		}
		f.pool = pool
		f.ownsPool = true
		return nil
	}
}

// WithFanOutLogger sets a custom logger.
// Default is slog.Default().
func WithFanOutLogger(logger *slog.Logger) FanOutOption {
	return func(f *FanOut) error {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
		return nil
	}
}

const (
	defaultFanOutPoolSize = 16

	// Wait between submissions while every worker is busy
	submitRetryMin = time.Millisecond
	submitRetryMax = 20 * time.Millisecond
)

// newPool creates a nonblocking pool; submit retries a full pool until the
// query context ends.
func newPool(size int) (*ants.Pool, error) {
	return ants.NewPool(size, ants.WithNonblocking(true))
}

// NewFanOut creates a FanOut over retrievers. Each source kind may appear once.
func NewFanOut(retrievers []SourceRetriever, opts ...FanOutOption) (*FanOut, error) {
	if len(retrievers) == 0 {
		return nil, ErrRetrieverRequired
	}
	seen := make(map[core.SourceKind]bool)
	for _, r := range retrievers {
		if r == nil {
			return nil, ErrRetrieverRequired
		}
		if seen[r.Kind()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRetriever, r.Kind())
		}
		seen[r.Kind()] = true
	}

	f := &FanOut{
		retrievers: retrievers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			f.Release()
			return nil, err
		}
	}
	if f.pool == nil {
		pool, err := newPool(defaultFanOutPoolSize)
		if err != nil {
			return nil, err
		}
		f.pool = pool
		f.ownsPool = true
	}
	f.logger = f.logger.With("component", "fanout")
	return f, nil
}

// Kinds returns the source kinds served, in retriever order.
func (f *FanOut) Kinds() []core.SourceKind {
	kinds := make([]core.SourceKind, len(f.retrievers))
	for i, r := range f.retrievers {
		kinds[i] = r.Kind()
	}
	return kinds
}

type settled struct {
	kind    core.SourceKind
	outcome Outcome
}

// Retrieve queries every retriever with the same vector and waits until all
// of them have settled. limits gives the per-kind candidate limit. If ctx is
// done first, unsettled sources are reported as unavailable with the context
// error and their calls are abandoned.
func (f *FanOut) Retrieve(ctx context.Context, vector []float32, limits map[core.SourceKind]int, filter core.Filter) map[core.SourceKind]Outcome {
	results := make(map[core.SourceKind]Outcome, len(f.retrievers))
	// Buffered so abandoned tasks never block on send
	done := make(chan settled, len(f.retrievers))

	pending := 0
	for _, r := range f.retrievers {
		limit := limits[r.Kind()]
		err := f.submit(ctx, func() {
			done <- settled{kind: r.Kind(), outcome: retrieveSafely(ctx, r, vector, limit, filter)}
		})
		if err != nil {
			f.logger.Warn("error submitting retrieval", "kind", r.Kind().String(), "err", err)
			results[r.Kind()] = Outcome{Err: &UnavailableError{Kind: r.Kind(), Err: err}}
			continue
		}
		pending++
	}

	for pending > 0 {
		select {
		case s := <-done:
			results[s.kind] = s.outcome
			pending--
		case <-ctx.Done():
			for _, r := range f.retrievers {
				if _, ok := results[r.Kind()]; !ok {
					results[r.Kind()] = Outcome{Err: &UnavailableError{Kind: r.Kind(), Err: ctx.Err()}}
				}
			}
			return results
		}
	}
	return results
}

// submit hands task to the pool, waiting for a free worker while ctx allows.
func (f *FanOut) submit(ctx context.Context, task func()) error {
	wait := submitRetryMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := f.pool.Submit(task)
		if !errors.Is(err, ants.ErrPoolOverload) {
			return err
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ctx.Err(), err)
		case <-timer.C:
		}
		wait = min(wait*2, submitRetryMax)
	}
}

// retrieveSafely calls r and converts panics and untyped errors into
// *UnavailableError.
func retrieveSafely(ctx context.Context, r SourceRetriever, vector []float32, limit int, filter core.Filter) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = Outcome{Err: &UnavailableError{Kind: r.Kind(), Err: fmt.Errorf("panic: %v", p)}}
		}
	}()
	candidates, err := r.Retrieve(ctx, vector, limit, filter)
	if err != nil {
		if _, ok := err.(*UnavailableError); !ok {
			err = &UnavailableError{Kind: r.Kind(), Err: err}
		}
		return Outcome{Err: err}
	}
	if candidates == nil {
		candidates = []core.Candidate{}
	}
	if limit >= 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return Outcome{Candidates: candidates}
}

// Release releases the worker pool if FanOut created it.
func (f *FanOut) Release() {
	if f.ownsPool && f.pool != nil {
		f.pool.Release()
	}
}
