package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/supportrag/ai"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
)

const defaultBatchSize = 32

// Pipeline orchestrates the ingestion and embedding of knowledge items.
type Pipeline struct {
	repository    storage.KnowledgeRepository
	embeddingPool *ants.Pool
	embeddingProc processor
	batchSize     int
	pending       sync.WaitGroup
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}

		embeddingPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embeddingPool = embeddingPool
		return nil
	}
}

// WithBatchSize sets how many items are embedded per provider call.
// Default is 32.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(repository storage.KnowledgeRepository, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if repository == nil {
		return nil, ErrKnowledgeRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	// Default pool size
	poolSize := max(runtime.NumCPU()/2, 1)

	embeddingPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		repository:    repository,
		embeddingPool: embeddingPool,
		batchSize:     defaultBatchSize,
		logger:        slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	// Create the processor after options are applied so it gets the final config
	embeddingProc, err := newEmbeddingProcessor(repository, provider.Embedder(), p.batchSize, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.embeddingProc = embeddingProc
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// Result reports what an Ingest call stored.
type Result struct {
	Added      []*core.KnowledgeItem // Newly stored items, embedding pending
	Duplicates []*core.KnowledgeItem // Stored items whose content matched an input
}

// Ingest validates items, stores those whose content is not already present
// and embeds them asynchronously. Items are matched on kind and embedding
// text; a duplicate resolves to the stored item. Ingest fails without
// storing anything if any item is invalid.
func (p *Pipeline) Ingest(ctx context.Context, items ...*core.KnowledgeItem) (*Result, error) {
	for i, item := range items {
		if err := core.ValidateKnowledgeItem(item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	result := &Result{}
	type key struct {
		kind core.SourceKind
		hash core.ID
	}
	seen := make(map[key]bool, len(items))
	fresh := make([]*core.KnowledgeItem, 0, len(items))

	for _, item := range items {
		item.ContentId = item.ContentHash()
		k := key{item.Kind, item.ContentId}
		if seen[k] {
			continue
		}
		seen[k] = true

		existing, err := p.repository.FindByContentId(ctx, item.Kind, item.ContentId)
		switch {
		case err == nil:
			result.Duplicates = append(result.Duplicates, existing)
			continue
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}

		item.Id = 0
		item.Vector = nil
		fresh = append(fresh, item)
	}

	if len(fresh) == 0 {
		p.logger.Debug("nothing new to ingest", "duplicates", len(result.Duplicates))
		return result, nil
	}

	added, err := p.repository.AddItems(ctx, fresh...)
	if err != nil {
		return nil, err
	}
	result.Added = added

	p.logger.Info("ingested knowledge items", "added", len(added), "duplicates", len(result.Duplicates))
	p.embed(added)
	return result, nil
}

// Update replaces stored items. View and helpful counters are kept. Items
// whose embedding text changed are re-embedded asynchronously; the others
// keep their stored vector.
func (p *Pipeline) Update(ctx context.Context, items ...*core.KnowledgeItem) ([]*core.KnowledgeItem, error) {
	changed := make([]*core.KnowledgeItem, 0, len(items))
	for i, item := range items {
		if err := core.ValidateKnowledgeItem(item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if item.Id == 0 {
			return nil, fmt.Errorf("item %d: %w", i, ErrItemIdRequired)
		}

		old, err := p.repository.GetItem(ctx, item.Kind, item.Id)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		item.ContentId = item.ContentHash()
		item.Active = old.Active
		item.ViewCount = old.ViewCount
		item.HelpfulCount = old.HelpfulCount
		if item.ContentId == old.ContentId {
			item.Vector = old.Vector
		} else {
			item.Vector = nil
			changed = append(changed, item)
		}
	}

	updated, err := p.repository.UpdateItems(ctx, items...)
	if err != nil {
		return nil, err
	}

	p.logger.Info("updated knowledge items", "updated", len(updated), "reembedding", len(changed))
	p.embed(changed)
	return updated, nil
}

// Delete deactivates items so they are no longer retrieved. Their content
// may be ingested again.
func (p *Pipeline) Delete(ctx context.Context, kind core.SourceKind, ids ...core.ID) error {
	if err := core.ValidateSourceKind(kind); err != nil {
		return err
	}
	return p.repository.DeleteItems(ctx, kind, ids...)
}

// embed submits the items for background embedding, one task per kind.
func (p *Pipeline) embed(items []*core.KnowledgeItem) {
	byKind := make(map[core.SourceKind][]core.ID)
	for _, item := range items {
		byKind[item.Kind] = append(byKind[item.Kind], item.Id)
	}

	for _, kind := range core.AllSourceKinds() {
		ids := byKind[kind]
		if len(ids) == 0 {
			continue
		}
		p.pending.Add(1)
		err := p.embeddingPool.Submit(func() {
			defer p.pending.Done()
			if err := p.embeddingProc.process(context.Background(), kind, ids...); err != nil {
				p.logger.Error("error processing embeddings", "kind", kind.String(), "err", err)
			}
		})
		if err != nil {
			p.pending.Done()
			p.logger.Error("error submitting embedding task", "kind", kind.String(), "err", err)
		}
	}
}

// Wait blocks until all submitted embedding work has finished.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}

// Release waits for pending work and releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.pending.Wait()
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}
