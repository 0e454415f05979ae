package confidence

import (
	"testing"

	"github.com/poiesic/supportrag/assembly"
	"github.com/poiesic/supportrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankedContext(scores ...float32) *assembly.RankedContext {
	rc := &assembly.RankedContext{Candidates: []core.Candidate{}}
	for i, s := range scores {
		rc.Candidates = append(rc.Candidates, core.Candidate{
			Kind:       core.SourceDocument,
			SourceId:   core.ID(i + 1),
			Similarity: s,
			Weight:     1,
		})
	}
	return rc
}

var succeeded = GenerationOutcome{Succeeded: true}

func newEstimator(t *testing.T) *Estimator {
	t.Helper()
	e, err := NewEstimator(DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"floor above one", func(c *Config) { c.Floor = 1.5 }},
		{"negative truncation penalty", func(c *Config) { c.TruncationPenalty = -0.1 }},
		{"retry penalty above one", func(c *Config) { c.RetryPenalty = 2 }},
		{"zero saturation", func(c *Config) { c.Saturation = 0 }},
		{"base above one", func(c *Config) { c.CorroborationBase = 1.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := NewEstimator(cfg)
			assert.Error(t, err)
		})
	}
}

func TestEstimate_Failed(t *testing.T) {
	e := newEstimator(t)
	assert.Zero(t, e.Estimate(rankedContext(0.9, 0.8), GenerationOutcome{Succeeded: false}))
	assert.Zero(t, e.Estimate(rankedContext(), GenerationOutcome{Succeeded: false, Retried: true}))
}

func TestEstimate_NoCandidatesIsFloor(t *testing.T) {
	e := newEstimator(t)
	assert.Equal(t, DefaultFloor, e.Estimate(rankedContext(), succeeded))
	assert.Equal(t, DefaultFloor, e.Estimate(rankedContext(), GenerationOutcome{Succeeded: true, Retried: true}))
}

func TestEstimate_Values(t *testing.T) {
	e := newEstimator(t)

	tests := []struct {
		name     string
		rc       *assembly.RankedContext
		outcome  GenerationOutcome
		expected float64
	}{
		{"single candidate", rankedContext(0.9), succeeded, 0.9 * (0.5 + 0.5/3)},
		{"saturated", rankedContext(0.9, 0.5, 0.4), succeeded, 0.9},
		{"beyond saturation", rankedContext(0.9, 0.5, 0.4, 0.3, 0.2), succeeded, 0.9},
		{"retried", rankedContext(0.9, 0.5, 0.4), GenerationOutcome{Succeeded: true, Retried: true}, 0.9 * 0.9},
		{"low score hits floor", rankedContext(0.05), succeeded, DefaultFloor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, e.Estimate(tt.rc, tt.outcome), 1e-6)
		})
	}

	t.Run("truncated", func(t *testing.T) {
		rc := rankedContext(0.9)
		rc.Truncated = true
		assert.InDelta(t, 0.9*(0.5+0.5/3)*0.8, e.Estimate(rc, succeeded), 1e-6)
	})
}

func TestEstimate_Monotone(t *testing.T) {
	e := newEstimator(t)

	t.Run("in top score", func(t *testing.T) {
		prev := 0.0
		for _, s := range []float32{0.2, 0.4, 0.6, 0.8, 1.0} {
			c := e.Estimate(rankedContext(s, 0.1), succeeded)
			assert.GreaterOrEqual(t, c, prev)
			prev = c
		}
	})

	t.Run("in corroboration", func(t *testing.T) {
		two := e.Estimate(rankedContext(0.8, 0.7), succeeded)
		three := e.Estimate(rankedContext(0.8, 0.7, 0.7), succeeded)
		assert.Less(t, two, three)
	})

	t.Run("penalties deflate", func(t *testing.T) {
		base := e.Estimate(rankedContext(0.8, 0.7), succeeded)
		retried := e.Estimate(rankedContext(0.8, 0.7), GenerationOutcome{Succeeded: true, Retried: true})
		assert.Less(t, retried, base)
	})
}

func TestEstimate_InRangeAndDeterministic(t *testing.T) {
	e := newEstimator(t)
	rc := rankedContext(1.0, 1.0, 1.0)
	rc.Candidates[0].Weight = 3 // weights above one still clamp
	c := e.Estimate(rc, succeeded)
	assert.LessOrEqual(t, c, 1.0)
	assert.Equal(t, c, e.Estimate(rc, succeeded))
}
