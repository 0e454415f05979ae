package assembly

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"unicode/utf8"

	"github.com/go-crypt/x/blake2b"
	"github.com/gowebpki/jcs"
	"github.com/poiesic/supportrag/core"
)

// blockSeparator separates rendered candidates.
const blockSeparator = "\n\n"

// Measure returns the length of text in budget units.
type Measure func(text string) int

// RuneCount measures text in runes.
func RuneCount(text string) int {
	return utf8.RuneCountInString(text)
}

// RankedContext is the budget-limited, ordered context for one query.
type RankedContext struct {
	Candidates []core.Candidate // Included candidates, in rank order
	Text       string           // Rendered context block
	Length     int              // Measured length of Text
	Budget     int
	Truncated  bool // The top candidate alone exceeded Budget
}

// Empty reports whether no candidate was included.
func (rc *RankedContext) Empty() bool {
	return len(rc.Candidates) == 0
}

// Top returns the highest ranked included candidate.
func (rc *RankedContext) Top() (core.Candidate, bool) {
	if rc.Empty() {
		return core.Candidate{}, false
	}
	return rc.Candidates[0], true
}

// Refs returns references to the included candidates, in rank order.
func (rc *RankedContext) Refs() []core.SourceRef {
	refs := make([]core.SourceRef, len(rc.Candidates))
	for i, c := range rc.Candidates {
		refs[i] = c.Ref()
	}
	return refs
}

type fingerprintEntry struct {
	Ref   string  `json:"ref"`
	Score float32 `json:"score"`
}

// Fingerprint returns a hex BLAKE2b-256 digest of the canonical JSON of the
// included references and their normalized scores. Identical rankings give
// identical fingerprints. An empty context has an empty fingerprint.
func (rc *RankedContext) Fingerprint() string {
	if rc.Empty() {
		return ""
	}
	entries := make([]fingerprintEntry, len(rc.Candidates))
	for i, c := range rc.Candidates {
		entries[i] = fingerprintEntry{Ref: c.Ref().String(), Score: c.NormalizedScore()}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return ""
	}
	h, err := blake2b.New(32, nil)
	if err != nil {
		return ""
	}
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// Render formats one candidate as it appears in the context block.
func Render(c core.Candidate) string {
	return "[" + c.Ref().String() + "] " + c.Excerpt
}

// Assembler selects a prefix of ranked candidates under a length budget.
// It is stateless and safe for concurrent use.
type Assembler struct {
	measure       Measure
	maxCandidates int
	logger        *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithMeasure sets the length function. Default is RuneCount.
func WithMeasure(measure Measure) Option {
	return func(a *Assembler) {
		if measure != nil {
			a.measure = measure
		}
	}
}

// WithMaxCandidates caps how many candidates enter the context regardless of
// budget. Zero or less means no cap.
func WithMaxCandidates(n int) Option {
	return func(a *Assembler) {
		a.maxCandidates = n
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
	}
}

// NewAssembler creates an Assembler.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		measure: RuneCount,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "assembler")
	return a
}

// Assemble walks ranked in order, stopping before the first candidate whose
// inclusion would push the rendered length over budget.
func (a *Assembler) Assemble(ranked []core.Candidate, budget int) RankedContext {
	rc := RankedContext{
		Candidates: []core.Candidate{},
		Budget:     budget,
	}
	if len(ranked) == 0 {
		return rc
	}

	text := ""
	for i, c := range ranked {
		if a.maxCandidates > 0 && i == a.maxCandidates {
			break
		}
		next := Render(c)
		if i > 0 {
			next = text + blockSeparator + next
		}
		length := a.measure(next)
		if length > budget {
			if i == 0 {
				// Never return an empty context when candidates exist
				rc.Truncated = true
			} else {
				break
			}
		}
		text = next
		rc.Candidates = append(rc.Candidates, c)
		rc.Length = length
		if rc.Truncated {
			break
		}
	}

	rc.Text = text
	a.logger.Debug("assembled context",
		"offered", len(ranked),
		"included", len(rc.Candidates),
		"length", rc.Length,
		"budget", budget,
		"truncated", rc.Truncated)
	return rc
}
