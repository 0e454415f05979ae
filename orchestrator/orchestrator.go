package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/supportrag/ai"
	"github.com/poiesic/supportrag/assembly"
	"github.com/poiesic/supportrag/confidence"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/generation"
	"github.com/poiesic/supportrag/retrieval"
)

// recordTimeout bounds a Recorder call. Recording is detached from the
// query's own cancellation so failed and late answers are still stored.
const recordTimeout = 5 * time.Second

var errEmptyVector = errors.New("embedder returned an empty vector")

// Retriever searches every knowledge source with one query vector and waits
// until all of them have settled. *retrieval.FanOut implements it.
type Retriever interface {
	Retrieve(ctx context.Context, vector []float32, limits map[core.SourceKind]int, filter core.Filter) map[core.SourceKind]retrieval.Outcome
}

// Recorder receives every terminal answer, for example an analytics store.
type Recorder interface {
	Record(ctx context.Context, record *core.AnswerRecord) error
}

// RecorderFunc adapts a function, such as an AnswerRepository's SaveAnswer,
// to Recorder.
type RecorderFunc func(ctx context.Context, record *core.AnswerRecord) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, record *core.AnswerRecord) error {
	return f(ctx, record)
}

// Request is a raw support query.
type Request struct {
	Text        string
	SubmitterId string
	Filter      core.Filter
}

// Orchestrator answers support queries. It holds no per-query state and is
// safe for concurrent use.
type Orchestrator struct {
	embedder  ai.Embedder
	retriever Retriever
	assembler *assembly.Assembler
	client    *generation.Client
	estimator *confidence.Estimator
	cfg       Config

	recorder Recorder
	monitor  Monitor
	measure  assembly.Measure
	system   string
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// WithRecorder sends every terminal answer to recorder.
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = recorder
	}
}

// WithMonitor sets the monitor used when a call does not supply its own.
func WithMonitor(monitor Monitor) Option {
	return func(o *Orchestrator) {
		if monitor != nil {
			o.monitor = monitor
		}
	}
}

// WithMeasure sets how the context budget is measured.
// Default is assembly.RuneCount.
func WithMeasure(measure assembly.Measure) Option {
	return func(o *Orchestrator) {
		o.measure = measure
	}
}

// WithSystemPrompt replaces generation.SystemPrompt.
func WithSystemPrompt(system string) Option {
	return func(o *Orchestrator) {
		o.system = system
	}
}

// New creates an Orchestrator from its collaborators and an immutable policy.
func New(embedder ai.Embedder, retriever Retriever, generator ai.Generator, cfg Config, opts ...Option) (*Orchestrator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		embedder:  embedder,
		retriever: retriever,
		cfg:       cfg.clone(),
		monitor:   &noopMonitor{},
		measure:   assembly.RuneCount,
		system:    generation.SystemPrompt,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.assembler = assembly.NewAssembler(
		assembly.WithMeasure(o.measure),
		assembly.WithMaxCandidates(o.cfg.MaxCandidates),
		assembly.WithLogger(o.logger),
	)

	client, err := generation.NewClient(generator, o.cfg.Generation,
		generation.WithSystemPrompt(o.system),
		generation.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	o.client = client

	estimator, err := confidence.NewEstimator(o.cfg.Confidence)
	if err != nil {
		return nil, err
	}
	o.estimator = estimator

	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

// Config returns a copy of the policy the Orchestrator runs with.
func (o *Orchestrator) Config() Config {
	return o.cfg.clone()
}

// Answer creates a Query from req and answers it.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*core.Answer, error) {
	query := core.NewQuery(strings.TrimSpace(req.Text), req.SubmitterId)
	return o.AnswerQuery(ctx, query, req.Filter)
}

// AnswerQuery answers an existing Query.
func (o *Orchestrator) AnswerQuery(ctx context.Context, query core.Query, filter core.Filter) (*core.Answer, error) {
	return o.AnswerQueryWithMonitor(ctx, query, filter, nil)
}

// AnswerQueryWithMonitor answers query, reporting progress to monitor.
// A nil monitor falls back to the one set with WithMonitor.
//
// The returned error is non-nil only when query is invalid. Every valid query
// yields exactly one Answer, which is also passed to the Recorder.
func (o *Orchestrator) AnswerQueryWithMonitor(ctx context.Context, query core.Query, filter core.Filter, monitor Monitor) (*core.Answer, error) {
	if err := core.ValidateQuery(&query); err != nil {
		return nil, err
	}
	if monitor == nil {
		monitor = o.monitor
	}

	monitor.Start(query)
	start := time.Now()

	answer := o.process(ctx, query, filter, monitor)
	answer.CreatedAt = time.Now().UTC()
	answer.Latency = time.Since(start)

	o.logger.Debug("query answered",
		"queryId", query.Id,
		"status", answer.Status.String(),
		"confidence", answer.Confidence,
		"sources", len(answer.Sources),
		"latency", answer.Latency)

	o.record(ctx, query, answer)
	monitor.Finish(answer)
	return answer, nil
}

// run carries the per-query state of one pass through the state machine.
type run struct {
	ctx     context.Context
	query   core.Query
	answer  *core.Answer
	monitor Monitor
	logger  *slog.Logger
}

func (r *run) enter(state State) {
	r.logger.Debug("query state", "state", state.String())
	r.monitor.Enter(state)
}

// fail moves the query to Failed. A context that has ended takes precedence
// over reason: the query is then reported as past its deadline.
func (r *run) fail(reason core.FailureReason, err error) *core.Answer {
	if r.ctx.Err() != nil {
		reason = core.FailureDeadlineExceeded
		err = fmt.Errorf("%w: %w", core.ErrQueryDeadline, err)
	}
	r.answer.Status = core.StatusFailed
	r.answer.FailureReason = reason
	r.answer.Text = ""
	r.answer.Confidence = 0
	r.logger.Warn("query failed", "reason", reason.String(), "err", err)
	r.enter(StateFailed)
	return r.answer
}

func (o *Orchestrator) process(ctx context.Context, query core.Query, filter core.Filter, monitor Monitor) *core.Answer {
	if o.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Deadline)
		defer cancel()
	}

	r := &run{
		ctx:   ctx,
		query: query,
		answer: &core.Answer{
			Id:      uuid.NewString(),
			QueryId: query.Id,
			Sources: []core.SourceRef{},
		},
		monitor: monitor,
		logger:  o.logger.With("queryId", query.Id),
	}

	r.enter(StateEmbedding)
	vector, err := o.embedder.EmbedText(ctx, query.Text)
	if err == nil && len(vector) == 0 {
		err = errEmptyVector
	}
	if err != nil {
		return r.fail(core.FailureEmbeddingUnavailable, fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err))
	}
	monitor.AfterEmbedding(len(vector))

	r.enter(StateRetrieving)
	outcomes := o.retriever.Retrieve(ctx, vector, o.cfg.Limits, filter)
	monitor.AfterRetrieval(outcomes)
	if err := ctx.Err(); err != nil {
		return r.fail(core.FailureDeadlineExceeded, err)
	}

	r.enter(StateAggregating)
	aggregation := retrieval.Aggregate(outcomes, o.cfg.Weights)
	for _, kind := range aggregation.Failed {
		r.logger.Warn("source unavailable", "kind", kind.String(), "err", outcomes[kind].Err)
	}
	monitor.AfterAggregation(aggregation)

	r.enter(StateAssembling)
	rc := o.assembler.Assemble(aggregation.Candidates, o.cfg.ContextBudget)
	r.answer.Sources = rc.Refs()
	r.answer.Truncated = rc.Truncated
	r.answer.ContextFingerprint = rc.Fingerprint()
	monitor.AfterAssembly(&rc)

	r.enter(StateGenerating)
	result, err := o.client.Generate(ctx, query.Text, rc.Text)
	monitor.AfterGeneration(result, err)
	r.answer.Retried = result.Attempts > 1
	if err != nil {
		if errors.Is(err, core.ErrGenerationTimeout) {
			return r.fail(core.FailureGenerationTimeout, err)
		}
		return r.fail(core.FailureGenerationUnavailable, err)
	}

	r.enter(StateScoring)
	r.answer.Text = result.Text
	r.answer.Confidence = o.estimator.Estimate(&rc, confidence.GenerationOutcome{
		Succeeded: true,
		Retried:   result.Retried,
	})
	if rc.Empty() {
		r.answer.Status = core.StatusDegraded
		r.logger.Warn("answered without retrieval evidence", "unavailableSources", len(aggregation.Failed))
	} else {
		r.answer.Status = core.StatusOK
	}

	r.enter(StateDone)
	return r.answer
}

func (o *Orchestrator) record(ctx context.Context, query core.Query, answer *core.Answer) {
	if o.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	record := &core.AnswerRecord{Query: query, Answer: *answer}
	if err := o.recorder.Record(ctx, record); err != nil {
		o.logger.Error("error recording answer", "queryId", query.Id, "answerId", answer.Id, "err", err)
	}
}
