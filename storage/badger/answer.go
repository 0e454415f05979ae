package badger

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
)

// AnswerRepository implements storage.AnswerRepository for BadgerDB.
type AnswerRepository struct {
	backend *Backend
	fbSeq   *badger.Sequence
}

var _ storage.AnswerRepository = (*AnswerRepository)(nil)

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(backend *Backend) (*AnswerRepository, error) {
	fbSeq, err := backend.GetSequence(feedbackIDSeq)
	if err != nil {
		return nil, err
	}
	return &AnswerRepository{
		backend: backend,
		fbSeq:   fbSeq,
	}, nil
}

// Close releases the feedback sequence.
func (r *AnswerRepository) Close() error {
	return r.fbSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *AnswerRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// SaveAnswer stores a query and its terminal answer, indexed by creation time.
func (r *AnswerRepository) SaveAnswer(ctx context.Context, record *core.AnswerRecord) error {
	if record.Answer.Id == "" {
		return storage.ErrInvalidRecord
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeAnswerKey(record.Answer.Id)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(key, storage.MarshalAnswerRecord(record)); err != nil {
			return err
		}
		dateKey := makeAnswerDateKey(record.Answer.CreatedAt, record.Answer.Id)
		if err := tx.Set(dateKey, []byte(record.Answer.Id)); err != nil {
			return err
		}
		if sub := record.Query.SubmitterId; sub != "" {
			subKey := makeAnswerSubmitterKey(sub, record.Answer.CreatedAt, record.Answer.Id)
			if err := tx.Set(subKey, []byte(record.Answer.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetAnswer retrieves an answer record by answer ID.
func (r *AnswerRepository) GetAnswer(ctx context.Context, answerId string) (*core.AnswerRecord, error) {
	var record *core.AnswerRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		record, err = readAnswer(tx, answerId)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return record, err
}

// AddFeedback attaches feedback to a stored answer.
func (r *AnswerRepository) AddFeedback(ctx context.Context, feedback *core.Feedback) (*core.Feedback, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		record, err := readAnswer(tx, feedback.AnswerId)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		seq, err := r.fbSeq.Next()
		if err != nil {
			return err
		}
		feedback.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
		key := makeFeedbackKey(feedback.AnswerId, seq)
		if err := tx.Set(key, storage.MarshalFeedback(feedback)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return feedback, nil
}

// GetFeedback returns the feedback recorded for an answer, oldest first.
func (r *AnswerRepository) GetFeedback(ctx context.Context, answerId string) ([]*core.Feedback, error) {
	var results []*core.Feedback
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = readFeedback(tx, answerId)
		return err
	}, false)
	return results, err
}

// ListAnswers returns answer records newest first.
func (r *AnswerRepository) ListAnswers(ctx context.Context, offset, limit int) ([]*core.AnswerRecord, error) {
	return r.listAnswers(ctx, []byte(answerDatePrefix+":"), offset, limit, nil)
}

// ListAnswersBySubmitter returns one submitter's answer records newest first.
func (r *AnswerRepository) ListAnswersBySubmitter(ctx context.Context, submitterId string, offset, limit int) ([]*core.AnswerRecord, error) {
	if submitterId == "" {
		return nil, nil
	}
	// Submitter IDs may contain the separator, so the prefix can match others
	match := func(record *core.AnswerRecord) bool {
		return record.Query.SubmitterId == submitterId
	}
	return r.listAnswers(ctx, makeSubmitterPrefix(submitterId), offset, limit, match)
}

func (r *AnswerRepository) listAnswers(ctx context.Context, prefix []byte, offset, limit int, match func(*core.AnswerRecord) bool) ([]*core.AnswerRecord, error) {
	if offset < 0 || limit < 0 {
		return nil, storage.ErrInvalidPage
	}
	var results []*core.AnswerRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Reverse iteration seeks to the last key at or below the seek key
		seek := append(bytes.Clone(prefix), 0xff)
		skipped := 0
		for iter.Seek(seek); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			answerId, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			record, err := readAnswer(tx, string(answerId))
			if err != nil {
				return err
			}
			if record == nil || (match != nil && !match(record)) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			results = append(results, record)
			if limit > 0 && len(results) == limit {
				return nil
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Analytics summarizes answers created at or after since.
func (r *AnswerRepository) Analytics(ctx context.Context, since time.Time) (*core.Analytics, error) {
	stats := &core.Analytics{
		Since:         since,
		StatusCounts:  make(map[core.Status]int),
		FailureCounts: make(map[core.FailureReason]int),
	}

	var ratingSum, rated int
	var confidenceSum float64
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(answerDatePrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := []byte(answerDatePrefix + ":")
		if !since.IsZero() {
			start = makePartialAnswerDateKey(since)
		}
		for iter.Seek(start); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			answerId, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			record, err := readAnswer(tx, string(answerId))
			if err != nil {
				return err
			}
			if record == nil {
				continue
			}

			stats.TotalQueries++
			stats.StatusCounts[record.Answer.Status]++
			if record.Answer.FailureReason != core.FailureNone {
				stats.FailureCounts[record.Answer.FailureReason]++
			}
			confidenceSum += record.Answer.Confidence

			feedback, err := readFeedback(tx, record.Answer.Id)
			if err != nil {
				return err
			}
			if len(feedback) > 0 {
				stats.WithFeedback++
			}
			for _, fb := range feedback {
				ratingSum += fb.Rating
				rated++
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	if stats.TotalQueries > 0 {
		stats.FeedbackRate = float64(stats.WithFeedback) / float64(stats.TotalQueries)
		stats.AverageConfidence = confidenceSum / float64(stats.TotalQueries)
	}
	if rated > 0 {
		stats.AverageRating = float64(ratingSum) / float64(rated)
	}
	return stats, nil
}

// Helper methods

func readAnswer(tx *badger.Txn, answerId string) (*core.AnswerRecord, error) {
	entry, err := tx.Get(makeAnswerKey(answerId))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var record *core.AnswerRecord
	err = entry.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalAnswerRecord(val)
		return unmarshalErr
	})
	return record, err
}

func readFeedback(tx *badger.Txn, answerId string) ([]*core.Feedback, error) {
	var results []*core.Feedback
	prefix := makeFeedbackPrefix(answerId)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		// Guard against answer IDs that extend this one
		if len(iter.Item().Key()) != len(prefix)+8 || !bytes.HasPrefix(iter.Item().Key(), prefix) {
			continue
		}
		var fb *core.Feedback
		if err := iter.Item().Value(func(val []byte) error {
			var err error
			fb, err = storage.UnmarshalFeedback(val)
			return err
		}); err != nil {
			return nil, err
		}
		results = append(results, fb)
	}
	return results, nil
}
