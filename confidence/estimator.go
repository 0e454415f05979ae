package confidence

import (
	"errors"
	"fmt"

	"github.com/poiesic/supportrag/assembly"
)

// Defaults for Config.
const (
	DefaultFloor             = 0.1
	DefaultTruncationPenalty = 0.8
	DefaultRetryPenalty      = 0.9
	DefaultSaturation        = 3
	DefaultCorroborationBase = 0.5
)

// Config holds the estimator constants.
type Config struct {
	Floor             float64 // Confidence when there is no evidence
	TruncationPenalty float64 // Multiplier when the context was truncated
	RetryPenalty      float64 // Multiplier when generation was retried
	Saturation        int     // Candidate count at which corroboration stops rising
	CorroborationBase float64 // Corroboration factor of a single candidate before scaling
}

// DefaultConfig returns the default estimator constants.
func DefaultConfig() Config {
	return Config{
		Floor:             DefaultFloor,
		TruncationPenalty: DefaultTruncationPenalty,
		RetryPenalty:      DefaultRetryPenalty,
		Saturation:        DefaultSaturation,
		CorroborationBase: DefaultCorroborationBase,
	}
}

// Validate checks the constants are in range.
func (c Config) Validate() error {
	var errs []error
	if c.Floor < 0 || c.Floor > 1 {
		errs = append(errs, fmt.Errorf("confidence floor must be in [0,1], got %v", c.Floor))
	}
	if c.TruncationPenalty < 0 || c.TruncationPenalty > 1 {
		errs = append(errs, fmt.Errorf("truncation penalty must be in [0,1], got %v", c.TruncationPenalty))
	}
	if c.RetryPenalty < 0 || c.RetryPenalty > 1 {
		errs = append(errs, fmt.Errorf("retry penalty must be in [0,1], got %v", c.RetryPenalty))
	}
	if c.Saturation < 1 {
		errs = append(errs, fmt.Errorf("saturation must be at least 1, got %d", c.Saturation))
	}
	if c.CorroborationBase < 0 || c.CorroborationBase > 1 {
		errs = append(errs, fmt.Errorf("corroboration base must be in [0,1], got %v", c.CorroborationBase))
	}
	return errors.Join(errs...)
}

// GenerationOutcome describes how generation went.
type GenerationOutcome struct {
	Succeeded bool
	Retried   bool
}

// Estimator maps evidence and generation outcome to a confidence in [0,1].
// It is a pure function of its inputs.
type Estimator struct {
	cfg Config
}

// NewEstimator creates an Estimator.
func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg}, nil
}

// Estimate returns the confidence for an answer:
//
//	failed generation  -> 0
//	no candidates      -> floor
//	otherwise          -> max(floor, top × corroboration × penalties)
//
// where corroboration = base + (1-base)·min(n, saturation)/saturation.
func (e *Estimator) Estimate(rc *assembly.RankedContext, outcome GenerationOutcome) float64 {
	if !outcome.Succeeded {
		return 0
	}
	top, ok := rc.Top()
	if !ok {
		return e.cfg.Floor
	}

	score := clamp01(float64(top.NormalizedScore()))

	n := min(len(rc.Candidates), e.cfg.Saturation)
	base := e.cfg.CorroborationBase
	corroboration := base + (1-base)*float64(n)/float64(e.cfg.Saturation)

	confidence := score * corroboration
	if rc.Truncated {
		confidence *= e.cfg.TruncationPenalty
	}
	if outcome.Retried {
		confidence *= e.cfg.RetryPenalty
	}

	return clamp01(max(e.cfg.Floor, confidence))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
