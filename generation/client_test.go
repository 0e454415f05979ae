package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/supportrag/ai/mock"
	"github.com/poiesic/supportrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{Timeout: 40 * time.Millisecond, MaxRetries: 1, Backoff: time.Millisecond}
}

// hang blocks until the attempt context ends.
func hang(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxRetries)
	require.NoError(t, cfg.Validate())

	assert.Error(t, Config{Timeout: 0}.Validate())
	assert.Error(t, Config{Timeout: time.Second, MaxRetries: -1}.Validate())
	assert.Error(t, Config{Timeout: time.Second, Backoff: -time.Second}.Validate())
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrGeneratorRequired)

	_, err = NewClient(mock.NewMockGenerator(), Config{})
	assert.Error(t, err)
}

func TestGenerate_Success(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, system, prompt string) (string, error) {
		assert.Equal(t, SystemPrompt, system)
		return "  Use the reset link.\n", nil
	}
	client, err := NewClient(gen, fastConfig())
	require.NoError(t, err)

	result, err := client.Generate(context.Background(), "How do I reset my password?", "[faq:1] FAQ: Reset\nAnswer: Link")
	require.NoError(t, err)

	assert.Equal(t, "Use the reset link.", result.Text)
	assert.Equal(t, 1, result.Attempts)
	assert.False(t, result.Retried)
	assert.Contains(t, gen.LastPrompt(), "Question: How do I reset my password?")
	assert.Contains(t, gen.LastPrompt(), "[faq:1] FAQ: Reset")
}

func TestGenerate_RetriesOnceOnTimeout(t *testing.T) {
	var calls atomic.Int32
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, system, prompt string) (string, error) {
		if calls.Add(1) == 1 {
			return hang(ctx, system, prompt)
		}
		return "second time lucky", nil
	}
	client, err := NewClient(gen, fastConfig())
	require.NoError(t, err)

	result, err := client.Generate(context.Background(), "q", "c")
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", result.Text)
	assert.Equal(t, 2, result.Attempts)
	assert.True(t, result.Retried)
}

func TestGenerate_TimeoutExhaustsRetries(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = hang
	client, err := NewClient(gen, fastConfig())
	require.NoError(t, err)

	start := time.Now()
	result, err := client.Generate(context.Background(), "q", "c")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGenerationTimeout)
	assert.NotErrorIs(t, err, core.ErrGenerationUnavailable)
	assert.Equal(t, 2, gen.CallCount())
	assert.Equal(t, 2, result.Attempts)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerate_BackoffDoubles(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, system, prompt string) (string, error) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return hang(ctx, system, prompt)
	}
	client, err := NewClient(gen, Config{Timeout: 10 * time.Millisecond, MaxRetries: 2, Backoff: 20 * time.Millisecond})
	require.NoError(t, err)

	result, err := client.Generate(context.Background(), "q", "c")
	assert.ErrorIs(t, err, core.ErrGenerationTimeout)
	assert.Equal(t, 3, result.Attempts)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	// Each gap is the attempt timeout plus a doubling backoff
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 30*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 50*time.Millisecond)
}

func TestGenerate_AbandonsGeneratorIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, system, prompt string) (string, error) {
		<-release
		return "too late", nil
	}
	cfg := fastConfig()
	cfg.MaxRetries = 0
	client, err := NewClient(gen, cfg)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "q", "c")
	assert.ErrorIs(t, err, core.ErrGenerationTimeout)
}

func TestGenerate_ProviderErrorNotRetried(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, system, prompt string) (string, error) {
		return "", errors.New("429 rate limited")
	}
	client, err := NewClient(gen, Config{Timeout: time.Second, MaxRetries: 3})
	require.NoError(t, err)

	result, err := client.Generate(context.Background(), "q", "c")
	assert.ErrorIs(t, err, core.ErrGenerationUnavailable)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, 1, gen.CallCount())
	assert.Equal(t, 1, result.Attempts)
}

func TestGenerate_EmptyAnswerIsUnavailable(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, system, prompt string) (string, error) {
		return "   ", nil
	}
	client, err := NewClient(gen, fastConfig())
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "q", "c")
	assert.ErrorIs(t, err, core.ErrGenerationUnavailable)
	assert.ErrorIs(t, err, ErrEmptyAnswer)
	assert.Equal(t, 1, gen.CallCount())
}

func TestGenerate_ParentCancellation(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = hang
	client, err := NewClient(gen, Config{Timeout: time.Minute, MaxRetries: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Generate(ctx, "q", "c")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, core.ErrGenerationTimeout)
	assert.Equal(t, 1, gen.CallCount())

	t.Run("already cancelled", func(t *testing.T) {
		fresh := mock.NewMockGenerator()
		client, err := NewClient(fresh, DefaultConfig())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = client.Generate(ctx, "q", "c")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, fresh.CallCount())
	})
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("  How do I reset my password? ", "[doc:1] Document: Reset\nSteps")
	assert.True(t, strings.HasPrefix(prompt, "Based on the following context"))
	assert.Contains(t, prompt, "Context:\n[doc:1] Document: Reset\nSteps\n\nQuestion: How do I reset my password?\n\nAnswer:")

	empty := BuildPrompt("q", "")
	assert.Contains(t, empty, noContext)
}
