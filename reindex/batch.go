package reindex

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/supportrag/ai"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/retry"
	"github.com/poiesic/supportrag/storage"
)

// BatchProcessor embeds batches of knowledge items and stores the vectors.
type BatchProcessor struct {
	repo           storage.KnowledgeRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.KnowledgeRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process re-embeds the active items in items and returns how many were
// written. Inactive items are skipped; they are never retrieved. Vectors are
// normalized to unit length, and missing content IDs are filled in.
func (bp *BatchProcessor) Process(ctx context.Context, items []*core.KnowledgeItem) (int, error) {
	active := make([]*core.KnowledgeItem, 0, len(items))
	for _, item := range items {
		if item.Active {
			active = append(active, item)
		}
	}
	if len(active) == 0 {
		return 0, nil
	}

	texts := make([]string, len(active))
	for i, item := range active {
		texts[i] = item.EmbeddingText()
	}

	var embeddings [][]float32
	_, err := retry.Do(ctx, bp.maxRetries, bp.retryBaseDelay, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(active) {
		return 0, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(active), len(embeddings))
	}

	for i, item := range active {
		item.Vector = NormalizeVector(embeddings[i])
		if item.ContentId == 0 {
			item.ContentId = item.ContentHash()
		}
	}

	if _, err := bp.repo.UpdateItems(ctx, active...); err != nil {
		return 0, fmt.Errorf("failed to update items: %w", err)
	}
	return len(active), nil
}
