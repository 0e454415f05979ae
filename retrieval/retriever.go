package retrieval

import (
	"context"
	"log/slog"

	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
)

// SourceRetriever searches one knowledge source for candidates similar to a
// query vector. Implementations must be safe for concurrent use.
type SourceRetriever interface {
	// Kind returns the source kind this retriever serves.
	Kind() core.SourceKind

	// Retrieve returns at most limit candidates, highest similarity first.
	// An empty source yields an empty slice, not an error. Backend failures
	// are reported as *UnavailableError.
	Retrieve(ctx context.Context, vector []float32, limit int, filter core.Filter) ([]core.Candidate, error)
}

// RepositoryRetriever is a SourceRetriever backed by one partition of a
// KnowledgeRepository.
type RepositoryRetriever struct {
	kind          core.SourceKind
	repository    storage.KnowledgeRepository
	minSimilarity float32
	logger        *slog.Logger
}

var _ SourceRetriever = (*RepositoryRetriever)(nil)

// RetrieverOption configures a RepositoryRetriever.
type RetrieverOption func(*RepositoryRetriever)

// WithMinSimilarity sets the similarity floor below which items are dropped.
// Default is 0.
func WithMinSimilarity(floor float32) RetrieverOption {
	return func(r *RepositoryRetriever) {
		r.minSimilarity = floor
	}
}

// WithRetrieverLogger sets a custom logger.
// Default is slog.Default().
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *RepositoryRetriever) {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
	}
}

// NewRepositoryRetriever creates a retriever for one source kind.
func NewRepositoryRetriever(kind core.SourceKind, repository storage.KnowledgeRepository, opts ...RetrieverOption) (*RepositoryRetriever, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if err := core.ValidateSourceKind(kind); err != nil {
		return nil, err
	}
	r := &RepositoryRetriever{
		kind:       kind,
		repository: repository,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "retriever", "kind", kind.String())
	return r, nil
}

// NewRepositoryRetrievers creates one retriever per source kind.
func NewRepositoryRetrievers(repository storage.KnowledgeRepository, opts ...RetrieverOption) ([]SourceRetriever, error) {
	var retrievers []SourceRetriever
	for _, kind := range core.AllSourceKinds() {
		r, err := NewRepositoryRetriever(kind, repository, opts...)
		if err != nil {
			return nil, err
		}
		retrievers = append(retrievers, r)
	}
	return retrievers, nil
}

// Kind returns the source kind this retriever serves.
func (r *RepositoryRetriever) Kind() core.SourceKind {
	return r.kind
}

// Retrieve searches the partition and converts hits to candidates.
func (r *RepositoryRetriever) Retrieve(ctx context.Context, vector []float32, limit int, filter core.Filter) ([]core.Candidate, error) {
	if limit <= 0 {
		return []core.Candidate{}, nil
	}

	hits, err := r.repository.FindSimilar(ctx, r.kind, vector, r.minSimilarity, limit, filter)
	if err != nil {
		r.logger.Warn("similarity search failed", "err", err)
		return nil, &UnavailableError{Kind: r.kind, Err: err}
	}

	candidates := make([]core.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, core.Candidate{
			Kind:       r.kind,
			SourceId:   hit.Item.Id,
			Excerpt:    hit.Item.Excerpt(),
			Similarity: hit.Similarity,
		})
		if len(candidates) == limit {
			break
		}
	}

	r.logger.Debug("retrieved candidates", "count", len(candidates))
	return candidates, nil
}
