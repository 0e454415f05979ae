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

package supportrag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/supportrag/ai"
	"github.com/poiesic/supportrag/ai/openai"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/ingestion"
	"github.com/poiesic/supportrag/orchestrator"
	"github.com/poiesic/supportrag/reindex"
	"github.com/poiesic/supportrag/retrieval"
	"github.com/poiesic/supportrag/storage"
	"github.com/poiesic/supportrag/storage/badger"
)

// System wires storage, the AI provider and the query orchestrator into one
// support knowledge base.
type System struct {
	backend        *badger.Backend
	knowledgeRepo  storage.KnowledgeRepository
	answerRepo     storage.AnswerRepository
	checkpointRepo storage.CheckpointRepository
	provider       ai.AIProvider
	queryEmbedder  *ai.CachedEmbedder
	fanout         *retrieval.FanOut
	orchestrator   *orchestrator.Orchestrator
	logger         *slog.Logger
}

// SystemOption configures a System.
type SystemOption func(*systemOptions)

type systemOptions struct {
	aiConfig     *ai.Config
	provider     ai.AIProvider
	config       orchestrator.Config
	inMemory     bool
	cacheBytes   int64
	tokenMeasure bool
	logger       *slog.Logger
}

// WithAIConfig sets the OpenAI-compatible provider configuration.
func WithAIConfig(config *ai.Config) SystemOption {
	return func(o *systemOptions) {
		o.aiConfig = config
	}
}

// WithProvider uses provider instead of creating one from the AI config.
// The System closes it on Close.
func WithProvider(provider ai.AIProvider) SystemOption {
	return func(o *systemOptions) {
		o.provider = provider
	}
}

// WithConfig sets the orchestration policy.
// Default is orchestrator.DefaultConfig().
func WithConfig(config orchestrator.Config) SystemOption {
	return func(o *systemOptions) {
		o.config = config
	}
}

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() SystemOption {
	return func(o *systemOptions) {
		o.inMemory = true
	}
}

// WithQueryCacheBytes bounds the query embedding cache.
// Default is ai.DefaultCacheBytes.
func WithQueryCacheBytes(maxBytes int64) SystemOption {
	return func(o *systemOptions) {
		o.cacheBytes = maxBytes
	}
}

// WithTokenBudget measures the context budget in tokens of the generation
// model instead of characters.
func WithTokenBudget() SystemOption {
	return func(o *systemOptions) {
		o.tokenMeasure = true
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) SystemOption {
	return func(o *systemOptions) {
		o.logger = logger
	}
}

// NewSystem opens the knowledge base at filePath.
func NewSystem(filePath string, opts ...SystemOption) (*System, error) {
	options := &systemOptions{
		aiConfig: ai.DefaultConfig(),
		config:   orchestrator.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if err := options.config.Validate(); err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	s := &System{
		backend:        backend,
		checkpointRepo: badger.NewCheckpointRepository(backend),
		logger:         options.logger.With("component", "system"),
	}
	if err := s.init(options); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *System) init(options *systemOptions) error {
	knowledgeRepo, err := badger.NewKnowledgeRepository(s.backend)
	if err != nil {
		return err
	}
	s.knowledgeRepo = knowledgeRepo

	answerRepo, err := badger.NewAnswerRepository(s.backend)
	if err != nil {
		return err
	}
	s.answerRepo = answerRepo

	s.provider = options.provider
	if s.provider == nil {
		provider, err := openai.NewProvider(options.aiConfig)
		if err != nil {
			return err
		}
		s.provider = provider
	}

	// Query vectors are cached; ingestion and reindex embed uncached
	s.queryEmbedder, err = ai.NewCachedEmbedder(s.provider.Embedder(), options.cacheBytes)
	if err != nil {
		return err
	}

	retrievers, err := retrieval.NewRepositoryRetrievers(knowledgeRepo,
		retrieval.WithMinSimilarity(options.config.SimilarityFloor),
		retrieval.WithRetrieverLogger(options.logger))
	if err != nil {
		return err
	}
	s.fanout, err = retrieval.NewFanOut(retrievers, retrieval.WithFanOutLogger(options.logger))
	if err != nil {
		return err
	}

	orchestratorOpts := []orchestrator.Option{
		orchestrator.WithLogger(options.logger),
		orchestrator.WithRecorder(orchestrator.RecorderFunc(answerRepo.SaveAnswer)),
	}
	if options.tokenMeasure && options.aiConfig != nil {
		orchestratorOpts = append(orchestratorOpts, orchestrator.WithMeasure(openai.TokenMeasure(options.aiConfig.GenerationModel)))
	}
	s.orchestrator, err = orchestrator.New(s.queryEmbedder, s.fanout, s.provider.Generator(), options.config, orchestratorOpts...)
	return err
}

// Close releases the orchestrator's pool, the provider and storage.
func (s *System) Close() error {
	var errs []error

	if s.fanout != nil {
		s.fanout.Release()
	}
	if s.queryEmbedder != nil {
		s.queryEmbedder.Close()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
		}
	}
	if s.answerRepo != nil {
		if err := s.answerRepo.Close(); err != nil {
			s.logger.Error("error closing answer repository", "err", err)
			errs = append(errs, err)
		}
	}
	if s.knowledgeRepo != nil {
		if err := s.knowledgeRepo.Close(); err != nil {
			s.logger.Error("error closing knowledge repository", "err", err)
			errs = append(errs, err)
		}
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Ask answers a support query. Every valid query is answered and recorded,
// including failed ones; the error is non-nil only for an invalid query.
// Items cited by an ok answer have their view counters bumped.
func (s *System) Ask(ctx context.Context, req orchestrator.Request) (*core.Answer, error) {
	answer, err := s.orchestrator.Answer(ctx, req)
	if err != nil {
		return nil, err
	}
	if answer.Status == core.StatusOK {
		for _, ref := range answer.Sources {
			if err := s.knowledgeRepo.IncrementViews(ctx, ref.Kind, ref.Id); err != nil {
				s.logger.Warn("error counting view", "source", ref.String(), "err", err)
			}
		}
	}
	return answer, nil
}

// Feedback attaches feedback to a recorded answer. Helpful feedback bumps
// the helpful counters of the items the answer cited.
func (s *System) Feedback(ctx context.Context, feedback *core.Feedback) (*core.Feedback, error) {
	if err := core.ValidateFeedback(feedback); err != nil {
		return nil, err
	}
	record, err := s.answerRepo.GetAnswer(ctx, feedback.AnswerId)
	if err != nil {
		return nil, fmt.Errorf("answer %s: %w", feedback.AnswerId, err)
	}
	saved, err := s.answerRepo.AddFeedback(ctx, feedback)
	if err != nil {
		return nil, err
	}
	if feedback.Helpful {
		for _, ref := range record.Answer.Sources {
			if err := s.knowledgeRepo.IncrementHelpful(ctx, ref.Kind, ref.Id); err != nil {
				s.logger.Warn("error counting helpful vote", "source", ref.String(), "err", err)
			}
		}
	}
	return saved, nil
}

// Analytics summarizes answers recorded at or after since.
func (s *System) Analytics(ctx context.Context, since time.Time) (*core.Analytics, error) {
	return s.answerRepo.Analytics(ctx, since)
}

// History returns recorded answers newest first. An empty submitterId lists
// every submitter.
func (s *System) History(ctx context.Context, submitterId string, offset, limit int) ([]*core.AnswerRecord, error) {
	if submitterId == "" {
		return s.answerRepo.ListAnswers(ctx, offset, limit)
	}
	return s.answerRepo.ListAnswersBySubmitter(ctx, submitterId, offset, limit)
}

// PopularFAQs returns the most viewed active FAQs.
func (s *System) PopularFAQs(ctx context.Context, limit int) ([]*core.KnowledgeItem, error) {
	return s.knowledgeRepo.PopularItems(ctx, core.SourceFAQ, limit)
}

// Orchestrator returns the query orchestrator.
func (s *System) Orchestrator() *orchestrator.Orchestrator {
	return s.orchestrator
}

// KnowledgeRepository returns the knowledge store.
func (s *System) KnowledgeRepository() storage.KnowledgeRepository {
	return s.knowledgeRepo
}

// AnswerRepository returns the answer and feedback store.
func (s *System) AnswerRepository() storage.AnswerRepository {
	return s.answerRepo
}

// CheckpointRepository returns the batch job checkpoint store.
func (s *System) CheckpointRepository() storage.CheckpointRepository {
	return s.checkpointRepo
}

// NewIngestionPipeline creates a pipeline that embeds with the provider.
func (s *System) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(s.knowledgeRepo, s.provider, opts...)
}

// NewReindexer creates a reindexer that checkpoints into this System.
func (s *System) NewReindexer(config *reindex.Config, progress io.Writer) (*reindex.Reindexer, error) {
	return reindex.NewReindexer(s.knowledgeRepo, s.checkpointRepo, s.provider.Embedder(), config, progress)
}
