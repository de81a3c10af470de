package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/answerdesk/parafuse/internal/config"
	"github.com/answerdesk/parafuse/internal/embed"
	"github.com/answerdesk/parafuse/internal/paraphrase"
	"github.com/answerdesk/parafuse/internal/rank"
	"github.com/answerdesk/parafuse/internal/search"
	"github.com/answerdesk/parafuse/internal/store"
	"github.com/answerdesk/parafuse/internal/telemetry"
)

// askOptions holds CLI flags for ask.
type askOptions struct {
	limit        int
	threshold    float64
	method       string
	format       string // "text", "json"
	noParaphrase bool
	showStats    bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question and get a fused answer ranking",
		Long: `Ask a question against the configured answer collection.

The question is rephrased into several paraphrases, each searched in
parallel, and the ranked lists are fused by consensus voting. When
paraphrasing is disabled or unavailable, a single baseline search runs
instead.

Examples:
  parafuse ask "how do I reset my password"
  parafuse ask "refund policy" --limit 3 --method ensemble
  parafuse ask "opening hours" --format json
  parafuse ask "opening hours" --no-paraphrase`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runAsk(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of answers (default from config)")
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", 0, "Baseline score threshold (default from config)")
	cmd.Flags().StringVarP(&opts.method, "method", "m", "", "Voting method: simple, weighted, ensemble (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noParaphrase, "no-paraphrase", false, "Skip paraphrasing and run a single baseline search")
	cmd.Flags().BoolVar(&opts.showStats, "stats", false, "Print query telemetry after the answers")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, query string, opts askOptions) error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	if opts.noParaphrase {
		cfg.Paraphrase.Enabled = false
	}

	slog.Info("ask_started",
		slog.String("query", query),
		slog.String("voting_method", cfg.Search.VotingMethod))

	svc, cleanup, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	answers, err := svc.FindAnswers(ctx, query, search.Options{
		Limit:          opts.limit,
		ScoreThreshold: opts.threshold,
		VotingMethod:   opts.method,
	})
	if err != nil {
		return err
	}

	if err := printAnswers(cmd, answers, opts.format); err != nil {
		return err
	}
	if opts.showStats {
		return printStats(cmd, svc.Metrics(), opts.format)
	}
	return nil
}

// buildService wires the collaborators from config into a retrieval
// service. The returned cleanup closes the embedder and the store client.
func buildService(cfg *config.Config) (*search.Service, func(), error) {
	embedder, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
		Host:  cfg.Embeddings.Host,
		Model: cfg.Embeddings.Model,
	})
	if err != nil {
		return nil, nil, err
	}
	cached := embed.NewCachedEmbedder(embedder, cfg.Embeddings.CacheSize)

	qdrant, err := store.NewQdrantStore(store.QdrantConfig{
		URL:        cfg.Store.URL,
		Collection: cfg.Store.Collection,
		Timeout:    cfg.Store.TimeoutDuration(),
		RetryMax:   cfg.Store.RetryMax,
	})
	if err != nil {
		cached.Close()
		return nil, nil, err
	}

	cleanup := func() {
		cached.Close()
		qdrant.Close()
	}

	source, err := buildParaphraseSource(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	coordinator := search.NewCoordinator(cached, qdrant,
		search.WithBranchLimit(cfg.Fanout.BranchLimit),
		search.WithBranchTimeout(cfg.Fanout.BranchTimeoutDuration()),
		search.WithRelaxedThresholds(cfg.Fanout.RelaxedThresholdRatio, cfg.Fanout.AbsoluteRelaxedThreshold),
	)

	metrics, err := telemetry.NewQueryMetrics(telemetry.DefaultConfig())
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	svc := search.NewService(coordinator, source,
		search.WithLimit(cfg.Search.Limit),
		search.WithScoreThreshold(cfg.Search.ScoreThreshold),
		search.WithVotingMethod(rank.VotingMethod(cfg.Search.VotingMethod)),
		search.WithParaphraseCount(cfg.Paraphrase.Count),
		search.WithTimeout(cfg.Fanout.TimeoutDuration()),
		search.WithMetrics(metrics),
	)
	return svc, cleanup, nil
}

func buildParaphraseSource(cfg *config.Config) (paraphrase.Source, error) {
	if !cfg.Paraphrase.Enabled {
		return nil, nil
	}
	switch cfg.Paraphrase.Provider {
	case "static":
		return paraphrase.NewStaticSource(), nil
	default:
		return paraphrase.NewLLMSource(paraphrase.LLMConfig{
			Host:        cfg.Paraphrase.Host,
			Model:       cfg.Paraphrase.Model,
			Temperature: cfg.Paraphrase.Temperature,
		})
	}
}

func printAnswers(cmd *cobra.Command, answers []*rank.FusedAnswer, format string) error {
	out := cmd.OutOrStdout()

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answers)
	}

	if len(answers) == 0 {
		_, err := fmt.Fprintln(out, "No answers found.")
		return err
	}
	for i, a := range answers {
		if _, err := fmt.Fprintf(out, "%d. [%.3f] %s\n   %s\n", i+1, a.RankingScore, a.AnswerID, a.Text); err != nil {
			return err
		}
	}
	return nil
}

func printStats(cmd *cobra.Command, metrics *telemetry.QueryMetrics, format string) error {
	out := cmd.OutOrStdout()
	snap := metrics.Snapshot()

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	_, err := fmt.Fprintf(out, "\nqueries: %d, degraded: %d, branch failures: %d, zero results: %d\n",
		snap.TotalQueries, snap.DegradedCount, snap.BranchFailureCount, snap.ZeroResultCount)
	return err
}
