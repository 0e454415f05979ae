package retrieval

import (
	"context"

	"github.com/poiesic/supportrag/core"
)

// stubRetriever is a SourceRetriever driven by a function.
type stubRetriever struct {
	kind core.SourceKind
	fn   func(ctx context.Context, limit int) ([]core.Candidate, error)
}

func (s *stubRetriever) Kind() core.SourceKind { return s.kind }

func (s *stubRetriever) Retrieve(ctx context.Context, _ []float32, limit int, _ core.Filter) ([]core.Candidate, error) {
	return s.fn(ctx, limit)
}

func returning(kind core.SourceKind, candidates ...core.Candidate) *stubRetriever {
	return &stubRetriever{kind: kind, fn: func(context.Context, int) ([]core.Candidate, error) {
		return candidates, nil
	}}
}

func failing(kind core.SourceKind, err error) *stubRetriever {
	return &stubRetriever{kind: kind, fn: func(context.Context, int) ([]core.Candidate, error) {
		return nil, err
	}}
}

func candidate(kind core.SourceKind, id core.ID, similarity float32) core.Candidate {
	return core.Candidate{Kind: kind, SourceId: id, Excerpt: "excerpt", Similarity: similarity}
}
