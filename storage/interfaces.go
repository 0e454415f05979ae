package storage

import (
	"context"
	"time"

	"github.com/poiesic/supportrag/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases repository resources. The backend is closed separately.
	Close() error
}

// KnowledgeRepository stores documents, FAQs and tickets. Each source kind
// lives in its own partition with its own ID sequence.
type KnowledgeRepository interface {
	Repository

	// AddItems adds knowledge items to their kind's partition.
	// IDs are generated from the partition sequence and InsertedAt is set.
	// Items are stored active.
	AddItems(ctx context.Context, items ...*core.KnowledgeItem) ([]*core.KnowledgeItem, error)

	// UpdateItems replaces existing items and updates UpdatedAt.
	// Returns ErrNotFound if any item doesn't exist.
	UpdateItems(ctx context.Context, items ...*core.KnowledgeItem) ([]*core.KnowledgeItem, error)

	// DeleteItems deactivates items so retrieval no longer returns them.
	// Returns ErrNotFound if any item doesn't exist.
	DeleteItems(ctx context.Context, kind core.SourceKind, ids ...core.ID) error

	// GetItem retrieves a single item. Returns ErrNotFound if it doesn't exist.
	GetItem(ctx context.Context, kind core.SourceKind, id core.ID) (*core.KnowledgeItem, error)

	// GetItems retrieves the items that exist among ids.
	GetItems(ctx context.Context, kind core.SourceKind, ids ...core.ID) ([]*core.KnowledgeItem, error)

	// FindByContentId finds an item by its content hash.
	// Returns ErrNotFound if no item has that content.
	FindByContentId(ctx context.Context, kind core.SourceKind, contentId core.ID) (*core.KnowledgeItem, error)

	// ListItems returns active items matching filter in ID order.
	ListItems(ctx context.Context, kind core.SourceKind, filter core.Filter) ([]*core.KnowledgeItem, error)

	// FindSimilar returns active, embedded items matching filter whose cosine
	// similarity to vector is at least minSimilarity, highest first, up to limit.
	FindSimilar(ctx context.Context, kind core.SourceKind, vector []float32, minSimilarity float32, limit int, filter core.Filter) ([]*core.ScoredItem, error)

	// IncrementViews bumps an item's view counter.
	IncrementViews(ctx context.Context, kind core.SourceKind, id core.ID) error

	// IncrementHelpful bumps an item's helpful counter.
	IncrementHelpful(ctx context.Context, kind core.SourceKind, id core.ID) error

	// PopularItems returns active items ordered by view count descending.
	PopularItems(ctx context.Context, kind core.SourceKind, limit int) ([]*core.KnowledgeItem, error)

	// GetItemsAfter returns up to limit items with ID greater than after, in
	// ID order. Inactive items are included. Used for batch traversal.
	GetItemsAfter(ctx context.Context, kind core.SourceKind, after core.ID, limit int) ([]*core.KnowledgeItem, error)

	// CountItems returns the number of items in a partition, active or not.
	CountItems(ctx context.Context, kind core.SourceKind) (int, error)
}

// AnswerRepository stores answered queries and the feedback they receive.
type AnswerRepository interface {
	Repository

	// SaveAnswer stores a query and its terminal answer.
	SaveAnswer(ctx context.Context, record *core.AnswerRecord) error

	// GetAnswer retrieves an answer record by answer ID.
	// Returns ErrNotFound if it doesn't exist.
	GetAnswer(ctx context.Context, answerId string) (*core.AnswerRecord, error)

	// AddFeedback attaches feedback to a stored answer and sets CreatedAt.
	// Returns ErrNotFound if the answer doesn't exist.
	AddFeedback(ctx context.Context, feedback *core.Feedback) (*core.Feedback, error)

	// GetFeedback returns the feedback recorded for an answer, oldest first.
	GetFeedback(ctx context.Context, answerId string) ([]*core.Feedback, error)

	// ListAnswers returns answer records newest first, skipping offset records
	// and returning at most limit. A limit of zero means no limit.
	ListAnswers(ctx context.Context, offset, limit int) ([]*core.AnswerRecord, error)

	// ListAnswersBySubmitter is ListAnswers restricted to one submitter.
	ListAnswersBySubmitter(ctx context.Context, submitterId string, offset, limit int) ([]*core.AnswerRecord, error)

	// Analytics summarizes answers created at or after since.
	Analytics(ctx context.Context, since time.Time) (*core.Analytics, error)
}

// CheckpointRepository persists batch job progress so interrupted jobs resume.
type CheckpointRepository interface {
	// SaveCheckpoint stores a checkpoint, replacing any previous one with the same name.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns the named checkpoint, or nil if none exists.
	LoadCheckpoint(ctx context.Context, name string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the named checkpoint. Missing checkpoints are ignored.
	DeleteCheckpoint(ctx context.Context, name string) error
}
