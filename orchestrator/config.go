package orchestrator

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/poiesic/supportrag/confidence"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/generation"
	"github.com/poiesic/supportrag/retrieval"
)

// Defaults for Config.
const (
	DefaultSimilarityFloor = 0.3
	DefaultContextBudget   = 2000
	DefaultMaxCandidates   = 5
	DefaultDeadline        = 60 * time.Second
)

// DefaultWeights ranks documents above FAQs above tickets.
func DefaultWeights() retrieval.Weights {
	return retrieval.Weights{
		core.SourceDocument: 1.0,
		core.SourceFAQ:      0.9,
		core.SourceTicket:   0.8,
	}
}

// DefaultLimits returns the per-source candidate limits.
func DefaultLimits() map[core.SourceKind]int {
	return map[core.SourceKind]int{
		core.SourceDocument: 3,
		core.SourceFAQ:      3,
		core.SourceTicket:   2,
	}
}

// Config is the immutable policy an Orchestrator is built with.
// The Orchestrator keeps its own copy; changing a Config after New has no effect.
type Config struct {
	Limits          map[core.SourceKind]int // Candidates requested per source
	Weights         retrieval.Weights       // Source priority weights
	SimilarityFloor float32                 // Minimum similarity a retriever reports
	ContextBudget   int                     // Rendered context budget, in Measure units
	MaxCandidates   int                     // Cap on context candidates; 0 means no cap
	Deadline        time.Duration           // End-to-end query deadline; 0 disables it
	Generation      generation.Config
	Confidence      confidence.Config
}

// DefaultConfig returns the default orchestration policy.
func DefaultConfig() Config {
	return Config{
		Limits:          DefaultLimits(),
		Weights:         DefaultWeights(),
		SimilarityFloor: DefaultSimilarityFloor,
		ContextBudget:   DefaultContextBudget,
		MaxCandidates:   DefaultMaxCandidates,
		Deadline:        DefaultDeadline,
		Generation:      generation.DefaultConfig(),
		Confidence:      confidence.DefaultConfig(),
	}
}

// Validate checks the policy. All problems are reported together.
func (c Config) Validate() error {
	var errs []error
	for _, kind := range core.AllSourceKinds() {
		if limit, ok := c.Limits[kind]; !ok {
			errs = append(errs, fmt.Errorf("missing limit for %s", kind))
		} else if limit < 0 {
			errs = append(errs, fmt.Errorf("limit for %s must not be negative, got %d", kind, limit))
		}
		if weight, ok := c.Weights[kind]; !ok {
			errs = append(errs, fmt.Errorf("missing weight for %s", kind))
		} else if weight < 0 || weight > 1 {
			errs = append(errs, fmt.Errorf("weight for %s must be in [0,1], got %v", kind, weight))
		}
	}
	if c.SimilarityFloor < 0 || c.SimilarityFloor > 1 {
		errs = append(errs, fmt.Errorf("similarity floor must be in [0,1], got %v", c.SimilarityFloor))
	}
	if c.ContextBudget < 1 {
		errs = append(errs, fmt.Errorf("context budget must be positive, got %d", c.ContextBudget))
	}
	if c.MaxCandidates < 0 {
		errs = append(errs, fmt.Errorf("max candidates must not be negative, got %d", c.MaxCandidates))
	}
	if c.Deadline < 0 {
		errs = append(errs, fmt.Errorf("deadline must not be negative, got %v", c.Deadline))
	}
	if err := c.Generation.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Confidence.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// clone copies the maps so callers cannot mutate a running policy.
func (c Config) clone() Config {
	c.Limits = maps.Clone(c.Limits)
	c.Weights = maps.Clone(c.Weights)
	return c
}
