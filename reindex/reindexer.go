// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/supportrag/ai"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
)

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of items to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of items)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Restart ignores saved checkpoints and starts from the first item
	Restart bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Summary reports one partition's reindex.
type Summary struct {
	Kind     core.SourceKind
	Total    int  // Items in the partition, active or not
	Embedded int  // Items re-embedded by this run
	Resumed  bool // The run continued from a checkpoint
}

// Reindexer re-embeds knowledge partitions.
type Reindexer struct {
	repo        storage.KnowledgeRepository
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	iterator    *ItemIterator
	logger      *slog.Logger
}

// NewReindexer creates a new reindexer. checkpoints may be nil, in which
// case runs always start from the beginning.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(repo storage.KnowledgeRepository, checkpoints storage.CheckpointRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reindexer, error) {
	if repo == nil {
		return nil, ErrKnowledgeRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		repo:        repo,
		checkpoints: checkpoints,
		config:      config,
		progress:    progress,
		processor:   NewBatchProcessor(repo, embedder, config.MaxRetries, config.RetryDelay),
		iterator:    NewItemIterator(repo, config.BatchSize),
		logger:      slog.Default().With("component", "reindex"),
	}, nil
}

// CheckpointName is the checkpoint key for a partition.
func CheckpointName(kind core.SourceKind) string {
	return "reindex:" + kind.String()
}

// Run re-embeds every active item of each kind, all kinds when none are
// given. A failed or cancelled run leaves a checkpoint behind so the next
// run picks up after the last completed batch.
func (r *Reindexer) Run(ctx context.Context, kinds ...core.SourceKind) ([]Summary, error) {
	if len(kinds) == 0 {
		kinds = core.AllSourceKinds()
	}

	summaries := make([]Summary, 0, len(kinds))
	for _, kind := range kinds {
		if err := core.ValidateSourceKind(kind); err != nil {
			return summaries, err
		}
		summary, err := r.runKind(ctx, kind)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, fmt.Errorf("reindex %s: %w", kind, err)
		}
	}
	return summaries, nil
}

func (r *Reindexer) runKind(ctx context.Context, kind core.SourceKind) (Summary, error) {
	summary := Summary{Kind: kind}
	name := CheckpointName(kind)

	total, err := r.repo.CountItems(ctx, kind)
	if err != nil {
		return summary, fmt.Errorf("failed to count items: %w", err)
	}
	summary.Total = total
	if total == 0 {
		fmt.Fprintf(r.progress, "No %s items found (0 items)\n", kind)
		return summary, nil
	}

	checkpoint, err := r.loadCheckpoint(ctx, name)
	if err != nil {
		return summary, err
	}
	if checkpoint.LastId > 0 {
		summary.Resumed = true
		fmt.Fprintf(r.progress, "Resuming %s reindex after item %d (%d of %d done)\n",
			kind, checkpoint.LastId, checkpoint.Processed, total)
	} else {
		fmt.Fprintf(r.progress, "Starting %s reindex of %d items (batch size: %d)\n",
			kind, total, r.iterator.batchSize)
	}

	tracker := NewProgressTracker(r.progress, kind.String(), total, r.config.ReportInterval)
	tracker.Start(checkpoint.Processed)

	err = r.iterator.ForEach(ctx, kind, checkpoint.LastId, func(items []*core.KnowledgeItem) error {
		embedded, err := r.processor.Process(ctx, items)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		summary.Embedded += embedded
		tracker.Add(len(items))

		checkpoint.LastId = items[len(items)-1].Id
		checkpoint.Processed += len(items)
		return r.saveCheckpoint(ctx, checkpoint)
	})
	if err != nil {
		r.logger.Warn("reindex interrupted", "kind", kind.String(), "lastId", checkpoint.LastId, "err", err)
		return summary, err
	}

	tracker.Finish()
	if r.checkpoints != nil {
		if err := r.checkpoints.DeleteCheckpoint(ctx, name); err != nil {
			return summary, fmt.Errorf("failed to clear checkpoint: %w", err)
		}
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex of %s complete. Embedded %d items in %v\n",
		kind, summary.Embedded, elapsed.Round(time.Millisecond))
	return summary, nil
}

func (r *Reindexer) loadCheckpoint(ctx context.Context, name string) (*core.Checkpoint, error) {
	fresh := &core.Checkpoint{Name: name}
	if r.checkpoints == nil {
		return fresh, nil
	}
	if r.config.Restart {
		if err := r.checkpoints.DeleteCheckpoint(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to clear checkpoint: %w", err)
		}
		return fresh, nil
	}
	checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		return fresh, nil
	}
	return checkpoint, nil
}

func (r *Reindexer) saveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	if r.checkpoints == nil {
		return nil
	}
	if err := r.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
