package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/supportrag/ai"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
)

// embeddingProcessor generates embeddings for knowledge items.
type embeddingProcessor struct {
	repository storage.KnowledgeRepository
	embedder   ai.Embedder
	batchSize  int
	logger     *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

// newEmbeddingProcessor creates a new embedding processor.
func newEmbeddingProcessor(repository storage.KnowledgeRepository, embedder ai.Embedder, batchSize int, logger *slog.Logger) (processor, error) {
	if repository == nil {
		return nil, ErrKnowledgeRepositoryRequired
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		repository: repository,
		embedder:   embedder,
		batchSize:  batchSize,
		logger:     logger.With("processor", "embeddings"),
	}, nil
}

// process generates embeddings for the specified items in batches.
func (ep *embeddingProcessor) process(ctx context.Context, kind core.SourceKind, ids ...core.ID) error {
	ep.logger.Info("processing items for embeddings", "kind", kind.String(), "items", len(ids))

	slices.Sort(ids)
	for batch := range slices.Chunk(ids, ep.batchSize) {
		if err := ep.processBatch(ctx, kind, batch); err != nil {
			return err
		}
	}
	return nil
}

func (ep *embeddingProcessor) processBatch(ctx context.Context, kind core.SourceKind, ids []core.ID) error {
	items, err := ep.repository.GetItems(ctx, kind, ids...)
	if err != nil {
		ep.logger.Error("error retrieving knowledge items", "err", err)
		return err
	}
	if len(items) == 0 {
		return nil
	}

	texts := make([]string, len(items))
	hashes := make(map[core.ID]core.ID, len(items))
	for i, item := range items {
		texts[i] = item.EmbeddingText()
		hashes[item.Id] = item.ContentId
	}

	ep.logger.Debug("generating embeddings for knowledge items", "items", len(texts))
	embeddings, err := ep.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		ep.logger.Error("error generating embeddings", "err", err)
		return err
	}

	if len(embeddings) != len(items) {
		return fmt.Errorf("embedding result mismatch. expected %d, received %d", len(items), len(embeddings))
	}

	vectors := make(map[core.ID][]float32, len(items))
	for i, item := range items {
		vectors[item.Id] = embeddings[i]
	}

	// Re-read so an update made while embedding is not overwritten
	current, err := ep.repository.GetItems(ctx, kind, ids...)
	if err != nil {
		return err
	}
	fresh := make([]*core.KnowledgeItem, 0, len(current))
	for _, item := range current {
		if hashes[item.Id] != item.ContentId {
			ep.logger.Debug("content changed while embedding, skipping", "id", item.Id)
			continue
		}
		item.Vector = vectors[item.Id]
		fresh = append(fresh, item)
	}
	if len(fresh) == 0 {
		return nil
	}

	_, err = ep.repository.UpdateItems(ctx, fresh...)
	return err
}
