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

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/supportrag"
	"github.com/poiesic/supportrag/ai"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := loadEnv(".env"); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadEnv loads environment files that exist. Variables already set in the
// environment win over file values.
func loadEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "supportrag",
		Usage: "Answer support questions from documents, FAQs and tickets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"SUPPORTRAG_LOG_LEVEL"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "Answer a support question",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: append(systemFlags(),
					&cli.StringFlag{
						Name:  "submitter",
						Usage: "Identifier of the person asking",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Only use knowledge in this category",
					},
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Only use knowledge carrying this tag (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:  "ticket-status",
						Usage: "Only use tickets with this status (repeatable)",
					},
					&cli.IntFlag{
						Name:  "budget",
						Usage: "Context budget for retrieved excerpts",
						Value: 2000,
					},
					&cli.BoolFlag{
						Name:  "token-budget",
						Usage: "Measure the context budget in model tokens instead of characters",
					},
					&cli.DurationFlag{
						Name:  "deadline",
						Usage: "End-to-end deadline for the query (0 disables)",
						Value: 60 * time.Second,
					},
					&cli.DurationFlag{
						Name:  "generation-timeout",
						Usage: "Timeout for one generation attempt",
						Value: 30 * time.Second,
					},
				),
			},
			{
				Name:   "ingest",
				Usage:  "Add knowledge items from a JSON file",
				Action: ingestCommand,
				Flags: append(systemFlags(),
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSON file of knowledge items (- for stdin)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of items embedded per request",
						Value: 32,
					},
				),
			},
			{
				Name:      "delete",
				Usage:     "Deactivate knowledge items",
				ArgsUsage: "<id>...",
				Action:    deleteCommand,
				Flags: append(systemFlags(),
					&cli.StringFlag{
						Name:     "kind",
						Aliases:  []string{"k"},
						Usage:    "Source kind of the items (document, faq, ticket)",
						Required: true,
					},
				),
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed knowledge items with the configured embedding model",
				Action: reindexCommand,
				Flags: append(systemFlags(),
					&cli.StringSliceFlag{
						Name:    "kind",
						Aliases: []string{"k"},
						Usage:   "Source kind to reindex (repeatable, default all)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of items to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N items",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "restart",
						Usage: "Ignore saved checkpoints",
					},
				),
			},
			{
				Name:   "feedback",
				Usage:  "Rate a recorded answer",
				Action: feedbackCommand,
				Flags: append(systemFlags(),
					&cli.StringFlag{
						Name:     "answer",
						Aliases:  []string{"a"},
						Usage:    "Answer ID",
						Required: true,
					},
					&cli.IntFlag{
						Name:     "rating",
						Aliases:  []string{"r"},
						Usage:    "Rating from 1 to 5",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "helpful",
						Usage: "The answer resolved the question",
					},
					&cli.StringFlag{
						Name:  "comment",
						Usage: "Free-form comment",
					},
				),
			},
			{
				Name:   "analytics",
				Usage:  "Summarize recorded answers and feedback",
				Action: analyticsCommand,
				Flags: append(systemFlags(),
					&cli.DurationFlag{
						Name:  "since",
						Usage: "Only include answers from this far back (0 for all)",
					},
				),
			},
			{
				Name:   "history",
				Usage:  "List recorded queries, newest first",
				Action: historyCommand,
				Flags: append(systemFlags(),
					&cli.StringFlag{
						Name:  "submitter",
						Usage: "Only list queries from this submitter",
					},
					&cli.IntFlag{
						Name:  "skip",
						Usage: "Number of queries to skip",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of queries to list",
						Value: 20,
					},
				),
			},
			{
				Name:   "popular",
				Usage:  "List the most viewed FAQs",
				Action: popularCommand,
				Flags: append(systemFlags(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of FAQs to list",
						Value: 10,
					},
				),
			},
		},
	}
}

// systemFlags returns the storage and AI service flags every command shares.
func systemFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			EnvVars:  []string{"SUPPORTRAG_DB"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL",
			Value:   "http://localhost:11434/v1",
			EnvVars: []string{"SUPPORTRAG_EMBEDDING_HOST"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			Value:   "all-minilm",
			EnvVars: []string{"SUPPORTRAG_EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "generation-host",
			Usage:   "Generation service host URL (defaults to embedding-host)",
			EnvVars: []string{"SUPPORTRAG_GENERATION_HOST"},
		},
		&cli.StringFlag{
			Name:    "generation-model",
			Usage:   "Generation model name",
			Value:   "qwen2.5:3b",
			EnvVars: []string{"SUPPORTRAG_GENERATION_MODEL"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "API token for the AI services",
			EnvVars: []string{"SUPPORTRAG_API_TOKEN", "OPENAI_API_KEY"},
		},
	}
}

// aiConfig builds the provider configuration from the shared flags.
func aiConfig(c *cli.Context) *ai.Config {
	generationHost := c.String("generation-host")
	if generationHost == "" {
		generationHost = c.String("embedding-host")
	}
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithGenerationHost(generationHost),
		ai.WithGenerationModel(c.String("generation-model")),
		ai.WithToken(c.String("token")),
	)
}

// openSystem opens the database named by --db with the flag AI configuration.
func openSystem(c *cli.Context, opts ...supportrag.SystemOption) (*supportrag.System, error) {
	dbPath := c.String("db")
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	cfg := aiConfig(c)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	opts = append([]supportrag.SystemOption{supportrag.WithAIConfig(cfg)}, opts...)
	sys, err := supportrag.NewSystem(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return sys, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
