package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/poiesic/supportrag/assembly"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/retrieval"
)

// stubSource is a retrieval.SourceRetriever with canned results.
type stubSource struct {
	kind       core.SourceKind
	candidates []core.Candidate
	err        error
	block      bool
	stall      chan struct{} // when set, waits for close ignoring ctx

	calls      atomic.Int32
	mu         sync.Mutex
	lastFilter core.Filter
}

func (s *stubSource) Kind() core.SourceKind { return s.kind }

func (s *stubSource) Retrieve(ctx context.Context, _ []float32, limit int, filter core.Filter) ([]core.Candidate, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastFilter = filter
	s.mu.Unlock()

	if s.stall != nil {
		<-s.stall
		return nil, nil
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

func (s *stubSource) filter() core.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFilter
}

func hit(kind core.SourceKind, id core.ID, similarity float32, excerpt string) core.Candidate {
	return core.Candidate{Kind: kind, SourceId: id, Excerpt: excerpt, Similarity: similarity}
}

func source(kind core.SourceKind, candidates ...core.Candidate) *stubSource {
	return &stubSource{kind: kind, candidates: candidates}
}

func down(kind core.SourceKind) *stubSource {
	return &stubSource{kind: kind, err: errors.New("vector index offline")}
}

func empty() []*stubSource {
	return []*stubSource{
		source(core.SourceDocument),
		source(core.SourceFAQ),
		source(core.SourceTicket),
	}
}

// memoryRecorder keeps every record it receives.
type memoryRecorder struct {
	mu      sync.Mutex
	records []core.AnswerRecord
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, record *core.AnswerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return m.err
}

func (m *memoryRecorder) all() []core.AnswerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.AnswerRecord(nil), m.records...)
}

// traceMonitor records the states a query passes through.
type traceMonitor struct {
	noopMonitor
	states    []State
	dimension int
	included  int
	finished  int
}

func (m *traceMonitor) Enter(state State)                        { m.states = append(m.states, state) }
func (m *traceMonitor) AfterEmbedding(dimension int)             { m.dimension = dimension }
func (m *traceMonitor) AfterAssembly(rc *assembly.RankedContext) { m.included = len(rc.Candidates) }
func (m *traceMonitor) Finish(_ *core.Answer)                    { m.finished++ }

var (
	_ retrieval.SourceRetriever = (*stubSource)(nil)
	_ Recorder                  = (*memoryRecorder)(nil)
	_ Monitor                   = (*traceMonitor)(nil)
)
