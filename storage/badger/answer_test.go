package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAnswers(t *testing.T) (storage.AnswerRepository, func()) {
	t.Helper()
	knowledge, answers, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	return answers, func() {
		answers.Close()
		knowledge.Close()
		backend.Close()
	}
}

func answerRecord(id string, status core.Status, confidence float64, createdAt time.Time) *core.AnswerRecord {
	reason := core.FailureNone
	if status == core.StatusFailed {
		reason = core.FailureGenerationUnavailable
	}
	return &core.AnswerRecord{
		Query: core.Query{Id: "q-" + id, Text: "question " + id, SubmittedAt: createdAt},
		Answer: core.Answer{
			Id:            id,
			QueryId:       "q-" + id,
			Status:        status,
			FailureReason: reason,
			Confidence:    confidence,
			CreatedAt:     createdAt,
		},
	}
}

func TestSaveAndGetAnswer(t *testing.T) {
	repo, cleanup := setupAnswers(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := answerRecord("a-1", core.StatusOK, 0.8, now)
	record.Answer.Sources = []core.SourceRef{{Kind: core.SourceFAQ, Id: 2}}
	require.NoError(t, repo.SaveAnswer(ctx, record))

	got, err := repo.GetAnswer(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, record, got)

	t.Run("duplicate", func(t *testing.T) {
		err := repo.SaveAnswer(ctx, record)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.GetAnswer(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("no id", func(t *testing.T) {
		err := repo.SaveAnswer(ctx, &core.AnswerRecord{})
		assert.Error(t, err)
	})
}

func TestFeedback(t *testing.T) {
	repo, cleanup := setupAnswers(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.SaveAnswer(ctx, answerRecord("a-1", core.StatusOK, 0.7, time.Now().UTC())))
	// An id that extends a-1 must not leak feedback into a-1
	require.NoError(t, repo.SaveAnswer(ctx, answerRecord("a-10", core.StatusOK, 0.7, time.Now().UTC())))

	fb, err := repo.AddFeedback(ctx, &core.Feedback{AnswerId: "a-1", Rating: 5, Helpful: true})
	require.NoError(t, err)
	assert.False(t, fb.CreatedAt.IsZero())
	_, err = repo.AddFeedback(ctx, &core.Feedback{AnswerId: "a-1", Rating: 2, Comment: "too vague"})
	require.NoError(t, err)
	_, err = repo.AddFeedback(ctx, &core.Feedback{AnswerId: "a-10", Rating: 1})
	require.NoError(t, err)

	list, err := repo.GetFeedback(ctx, "a-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 5, list[0].Rating)
	assert.Equal(t, "too vague", list[1].Comment)

	_, err = repo.AddFeedback(ctx, &core.Feedback{AnswerId: "missing", Rating: 3})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAnalytics(t *testing.T) {
	repo, cleanup := setupAnswers(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.SaveAnswer(ctx, answerRecord("old", core.StatusOK, 0.9, now.AddDate(0, 0, -40))))
	require.NoError(t, repo.SaveAnswer(ctx, answerRecord("a", core.StatusOK, 0.8, now.Add(-2*time.Hour))))
	require.NoError(t, repo.SaveAnswer(ctx, answerRecord("b", core.StatusDegraded, 0.1, now.Add(-time.Hour))))
	require.NoError(t, repo.SaveAnswer(ctx, answerRecord("c", core.StatusFailed, 0, now)))
	require.NoError(t, repo.SaveAnswer(ctx, answerRecord("d", core.StatusOK, 0.5, now)))

	_, err := repo.AddFeedback(ctx, &core.Feedback{AnswerId: "a", Rating: 5})
	require.NoError(t, err)
	_, err = repo.AddFeedback(ctx, &core.Feedback{AnswerId: "a", Rating: 3})
	require.NoError(t, err)
	_, err = repo.AddFeedback(ctx, &core.Feedback{AnswerId: "b", Rating: 1})
	require.NoError(t, err)
	_, err = repo.AddFeedback(ctx, &core.Feedback{AnswerId: "old", Rating: 1})
	require.NoError(t, err)

	stats, err := repo.Analytics(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalQueries)
	assert.Equal(t, 2, stats.WithFeedback)
	assert.InDelta(t, 0.5, stats.FeedbackRate, 0.0001)
	assert.InDelta(t, 3.0, stats.AverageRating, 0.0001)
	assert.InDelta(t, 1.4/4, stats.AverageConfidence, 0.0001)
	assert.Equal(t, 2, stats.StatusCounts[core.StatusOK])
	assert.Equal(t, 1, stats.StatusCounts[core.StatusDegraded])
	assert.Equal(t, 1, stats.StatusCounts[core.StatusFailed])
	assert.Equal(t, 1, stats.FailureCounts[core.FailureGenerationUnavailable])

	t.Run("all time", func(t *testing.T) {
		stats, err := repo.Analytics(ctx, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 5, stats.TotalQueries)
	})

	t.Run("empty period", func(t *testing.T) {
		stats, err := repo.Analytics(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, stats.TotalQueries)
		assert.Zero(t, stats.FeedbackRate)
		assert.Zero(t, stats.AverageRating)
	})
}

func TestListAnswers(t *testing.T) {
	repo, cleanup := setupAnswers(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	submitters := map[string]string{"a": "user-1", "b": "user-2", "c": "user-1", "d": "", "e": "user-10"}
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		record := answerRecord(id, core.StatusOK, 0.5, now.Add(time.Duration(i)*time.Minute))
		record.Query.SubmitterId = submitters[id]
		require.NoError(t, repo.SaveAnswer(ctx, record))
	}

	ids := func(records []*core.AnswerRecord) []string {
		var out []string
		for _, r := range records {
			out = append(out, r.Answer.Id)
		}
		return out
	}

	tests := []struct {
		name      string
		submitter string
		offset    int
		limit     int
		want      []string
	}{
		{name: "all newest first", want: []string{"e", "d", "c", "b", "a"}},
		{name: "first page", limit: 2, want: []string{"e", "d"}},
		{name: "second page", offset: 2, limit: 2, want: []string{"c", "b"}},
		{name: "offset past end", offset: 9, want: nil},
		{name: "submitter", submitter: "user-1", want: []string{"c", "a"}},
		{name: "submitter page", submitter: "user-1", offset: 1, limit: 1, want: []string{"a"}},
		{name: "unknown submitter", submitter: "user-3", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []*core.AnswerRecord
			var err error
			if tt.submitter == "" {
				got, err = repo.ListAnswers(ctx, tt.offset, tt.limit)
			} else {
				got, err = repo.ListAnswersBySubmitter(ctx, tt.submitter, tt.offset, tt.limit)
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	t.Run("submitter sharing a prefix", func(t *testing.T) {
		record := answerRecord("f", core.StatusOK, 0.5, now.Add(10*time.Minute))
		record.Query.SubmitterId = "user-1:x"
		require.NoError(t, repo.SaveAnswer(ctx, record))

		got, err := repo.ListAnswersBySubmitter(ctx, "user-1", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a"}, ids(got))
	})

	t.Run("negative page", func(t *testing.T) {
		_, err := repo.ListAnswers(ctx, -1, 0)
		assert.ErrorIs(t, err, storage.ErrInvalidPage)
		_, err = repo.ListAnswersBySubmitter(ctx, "user-1", 0, -1)
		assert.ErrorIs(t, err, storage.ErrInvalidPage)
	})
}
