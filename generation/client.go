package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/supportrag/ai"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/retry"
)

// Defaults for Config.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 1
	DefaultBackoff    = 250 * time.Millisecond
)

var (
	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrEmptyAnswer is returned when the model produced no text.
	ErrEmptyAnswer = errors.New("model returned an empty answer")
)

// Config bounds generation attempts.
type Config struct {
	Timeout    time.Duration // Per-attempt timeout
	MaxRetries int           // Extra attempts allowed after a timeout
	Backoff    time.Duration // Delay before the first retry, doubling after
}

// DefaultConfig returns the default generation policy: one 30s attempt plus
// one retry on timeout.
func DefaultConfig() Config {
	return Config{
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
	}
}

// Validate checks the policy is usable.
func (c Config) Validate() error {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("generation timeout must be positive, got %v", c.Timeout))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("generation retries must not be negative, got %d", c.MaxRetries))
	}
	if c.Backoff < 0 {
		errs = append(errs, fmt.Errorf("generation backoff must not be negative, got %v", c.Backoff))
	}
	return errors.Join(errs...)
}

// Result is a successful generation.
type Result struct {
	Text     string
	Attempts int
	Retried  bool
}

// Client sends query and context to a Generator under the retry policy.
// It is safe for concurrent use.
type Client struct {
	generator ai.Generator
	cfg       Config
	system    string
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithSystemPrompt replaces SystemPrompt.
func WithSystemPrompt(system string) Option {
	return func(c *Client) {
		c.system = system
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// NewClient creates a Client.
func NewClient(generator ai.Generator, cfg Config, opts ...Option) (*Client, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		generator: generator,
		cfg:       cfg,
		system:    SystemPrompt,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "generation")
	return c, nil
}

// Generate answers queryText from contextText.
//
// Errors wrap core.ErrGenerationTimeout when every allowed attempt timed out
// and core.ErrGenerationUnavailable when the provider failed. If ctx itself
// ends, ctx.Err() is returned unclassified.
func (c *Client) Generate(ctx context.Context, queryText, contextText string) (Result, error) {
	prompt := BuildPrompt(queryText, contextText)
	maxAttempts := c.cfg.MaxRetries + 1

	var text string
	attempts, err := retry.Do(ctx, maxAttempts, c.cfg.Backoff, func() error {
		var err error
		text, err = c.attempt(ctx, prompt)
		return err
	}, retry.If(func(err error) bool {
		// Only our own attempt timeouts are retried
		timedOut := ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
		if timedOut {
			c.logger.Warn("generation attempt timed out", "maxAttempts", maxAttempts, "timeout", c.cfg.Timeout)
		}
		return timedOut
	}))

	switch {
	case err == nil:
		if attempts > 1 {
			c.logger.Debug("generation succeeded after retry", "attempt", attempts)
		}
		return Result{Text: text, Attempts: attempts, Retried: attempts > 1}, nil
	case ctx.Err() != nil:
		// The caller's deadline is not ours to classify
		return Result{Attempts: attempts}, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		c.logger.Warn("generation timed out", "attempts", attempts, "timeout", c.cfg.Timeout)
		return Result{Attempts: attempts}, fmt.Errorf("%w: after %d attempts: %w", core.ErrGenerationTimeout, attempts, err)
	default:
		c.logger.Warn("generation failed", "attempt", attempts, "err", err)
		return Result{Attempts: attempts}, fmt.Errorf("%w: %w", core.ErrGenerationUnavailable, err)
	}
}

// attempt runs one bounded call. The call is abandoned when the attempt
// times out, even if the generator ignores its context.
func (c *Client) attempt(ctx context.Context, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		text, err := c.generator.Generate(attemptCtx, c.system, prompt)
		done <- reply{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		text := strings.TrimSpace(r.text)
		if text == "" {
			return "", ErrEmptyAnswer
		}
		return text, nil
	case <-attemptCtx.Done():
		return "", attemptCtx.Err()
	}
}
