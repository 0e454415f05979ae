package badger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
)

const (
	defaultSequenceBandwidth = 100
	// Cancellation is checked every this many scanned records.
	scanCheckInterval = 256
)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(filePath, 0755); err != nil {
				return nil, err
			}
			if info, err = os.Stat(filePath); err != nil {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: logger,
	}, nil
}

// NewMemoryBackend opens an in-memory database for tests and one-shot tools.
func NewMemoryBackend() (*Backend, error) {
	return OpenBackend("", true)
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// GetSequence returns a BadgerDB sequence for generating sequential IDs.
func (b *Backend) GetSequence(name string) (*badger.Sequence, error) {
	return b.db.GetSequence([]byte(name), defaultSequenceBandwidth)
}

// WithTransaction executes a function within a transaction.
func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return b.WithTx(func(tx *badger.Txn) error {
		if err := fn(ctx); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// FindSimilar scans one knowledge partition for active items matching filter
// whose cosine similarity to vector is at least minSimilarity. Similarity is
// clamped to [0,1]. Results are ordered by similarity descending, then ID
// ascending, and cut to limit.
func (b *Backend) FindSimilar(ctx context.Context, kind core.SourceKind, vector []float32, minSimilarity float32, limit int, filter core.Filter) ([]*core.ScoredItem, error) {
	p, err := partitionFor(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || len(vector) == 0 {
		return []*core.ScoredItem{}, nil
	}

	results := []*core.ScoredItem{}
	err = b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p.itemPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		scanned := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			scanned++
			if scanned%scanCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			var item *core.KnowledgeItem
			err := iter.Item().Value(func(val []byte) error {
				var err error
				item, err = storage.UnmarshalKnowledgeItem(val)
				return err
			})
			if err != nil {
				return err
			}

			// Skip records without embeddings
			if len(item.Vector) == 0 || !filter.Matches(item) {
				continue
			}

			similarity := CosineSimilarity(vector, item.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.ScoredItem{Item: item, Similarity: similarity})
			}
		}
		return ctx.Err()
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.ScoredItem) int {
		if a.Similarity > b.Similarity {
			return -1
		}
		if a.Similarity < b.Similarity {
			return 1
		}
		if a.Item.Id < b.Item.Id {
			return -1
		}
		if a.Item.Id > b.Item.Id {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}

	b.logger.Debug("similarity scan", "kind", kind.String(), "hits", len(results))
	return results, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped
// to [0,1]. Vectors of different length are compared over the shorter one.
// A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return float32(sim)
}
