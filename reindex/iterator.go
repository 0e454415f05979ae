package reindex

import (
	"context"

	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
)

// DefaultBatchSize is the default number of items fetched per batch.
const DefaultBatchSize = 100

// ItemIterator pages through one knowledge partition in ID order.
type ItemIterator struct {
	repo      storage.KnowledgeRepository
	batchSize int
}

// NewItemIterator creates an iterator. A batchSize <= 0 uses DefaultBatchSize.
func NewItemIterator(repo storage.KnowledgeRepository, batchSize int) *ItemIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ItemIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn with successive batches of items of kind whose ID is
// greater than after. Only one batch is held in memory at a time.
// Iteration stops on the first error from fn or when ctx ends.
func (it *ItemIterator) ForEach(ctx context.Context, kind core.SourceKind, after core.ID, fn func([]*core.KnowledgeItem) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := it.repo.GetItemsAfter(ctx, kind, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}

		after = batch[len(batch)-1].Id
		if len(batch) < it.batchSize {
			return nil
		}
	}
}
