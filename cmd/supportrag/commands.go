package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/supportrag"
	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/ingestion"
	"github.com/poiesic/supportrag/orchestrator"
	"github.com/poiesic/supportrag/reindex"
	"github.com/urfave/cli/v2"
)

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}

	cfg := orchestrator.DefaultConfig()
	cfg.ContextBudget = c.Int("budget")
	cfg.Deadline = c.Duration("deadline")
	cfg.Generation.Timeout = c.Duration("generation-timeout")

	opts := []supportrag.SystemOption{supportrag.WithConfig(cfg)}
	if c.Bool("token-budget") {
		opts = append(opts, supportrag.WithTokenBudget())
	}
	sys, err := openSystem(c, opts...)
	if err != nil {
		return err
	}
	defer sys.Close()

	answer, err := sys.Ask(c.Context, orchestrator.Request{
		Text:        question,
		SubmitterId: c.String("submitter"),
		Filter: core.Filter{
			Category: c.String("category"),
			Tags:     c.StringSlice("tag"),
			Statuses: c.StringSlice("ticket-status"),
		},
	})
	if err != nil {
		return err
	}
	printAnswer(c, answer)
	return nil
}

func printAnswer(c *cli.Context, answer *core.Answer) {
	w := c.App.Writer
	if answer.Text != "" {
		fmt.Fprintln(w, answer.Text)
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Answer: %s\n", answer.Id)
	status := answer.Status.String()
	if answer.FailureReason != core.FailureNone {
		status += " (" + answer.FailureReason.String() + ")"
	}
	fmt.Fprintf(w, "Status: %s\n", status)
	fmt.Fprintf(w, "Confidence: %.2f\n", answer.Confidence)
	if len(answer.Sources) > 0 {
		refs := make([]string, len(answer.Sources))
		for i, ref := range answer.Sources {
			refs[i] = ref.String()
		}
		fmt.Fprintf(w, "Sources: %s\n", strings.Join(refs, ", "))
	}
	if answer.Truncated {
		fmt.Fprintln(w, "Context was truncated to fit the budget")
	}
	fmt.Fprintf(w, "Latency: %s\n", answer.Latency.Round(time.Millisecond))
}

func ingestCommand(c *cli.Context) error {
	data, err := readInput(c.String("file"), c.App.Reader)
	if err != nil {
		return fmt.Errorf("failed to read items: %w", err)
	}
	items, err := parseItems(data)
	if err != nil {
		return err
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	pipeline, err := sys.NewIngestionPipeline(ingestion.WithBatchSize(c.Int("batch-size")))
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	result, err := pipeline.Ingest(c.Context, items...)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	pipeline.Wait()

	fmt.Fprintf(c.App.Writer, "Added %d items, skipped %d duplicates\n", len(result.Added), len(result.Duplicates))
	return nil
}

func deleteCommand(c *cli.Context) error {
	kind, err := core.ParseSourceKind(c.String("kind"))
	if err != nil {
		return err
	}
	ids, err := parseIDs(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("at least one item ID is required")
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	pipeline, err := sys.NewIngestionPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	if err := pipeline.Delete(c.Context, kind, ids...); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Deleted %d %s items\n", len(ids), kind)
	return nil
}

func parseIDs(args []string) ([]core.ID, error) {
	ids := make([]core.ID, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid item ID %q: %w", arg, err)
		}
		ids = append(ids, core.ID(id))
	}
	return ids, nil
}

func reindexCommand(c *cli.Context) error {
	var kinds []core.SourceKind
	for _, name := range c.StringSlice("kind") {
		kind, err := core.ParseSourceKind(name)
		if err != nil {
			return err
		}
		kinds = append(kinds, kind)
	}

	config := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Restart:        c.Bool("restart"),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	reindexer, err := sys.NewReindexer(config, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := reindexer.Run(c.Context, kinds...); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func feedbackCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	saved, err := sys.Feedback(c.Context, &core.Feedback{
		AnswerId: c.String("answer"),
		Rating:   c.Int("rating"),
		Helpful:  c.Bool("helpful"),
		Comment:  c.String("comment"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Recorded feedback for %s at %s\n", saved.AnswerId, saved.CreatedAt.Format(time.RFC3339))
	return nil
}

func analyticsCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	var since time.Time
	if d := c.Duration("since"); d > 0 {
		since = time.Now().Add(-d)
	}
	stats, err := sys.Analytics(c.Context, since)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Queries: %d\n", stats.TotalQueries)
	for _, status := range []core.Status{core.StatusOK, core.StatusDegraded, core.StatusFailed} {
		fmt.Fprintf(w, "  %s: %d\n", status, stats.StatusCounts[status])
	}
	for reason, count := range stats.FailureCounts {
		fmt.Fprintf(w, "  %s: %d\n", reason, count)
	}
	fmt.Fprintf(w, "Average confidence: %.2f\n", stats.AverageConfidence)
	fmt.Fprintf(w, "With feedback: %d (%.1f%%)\n", stats.WithFeedback, stats.FeedbackRate*100)
	fmt.Fprintf(w, "Average rating: %.2f\n", stats.AverageRating)
	return nil
}

func historyCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	records, err := sys.History(c.Context, c.String("submitter"), c.Int("skip"), c.Int("limit"))
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%.2f\t%s\n",
			r.Answer.CreatedAt.Format(time.RFC3339), r.Answer.Id, r.Answer.Status, r.Answer.Confidence, r.Query.Text)
	}
	return nil
}

func popularCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	faqs, err := sys.PopularFAQs(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	for _, faq := range faqs {
		fmt.Fprintf(c.App.Writer, "%d\t%d views\t%d helpful\t%s\n", faq.Id, faq.ViewCount, faq.HelpfulCount, faq.Title)
	}
	return nil
}
