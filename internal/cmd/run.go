package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/metrics"
	"github.com/paperscope/paperscope/internal/output"
	"github.com/paperscope/paperscope/internal/pipeline"
	"github.com/paperscope/paperscope/internal/source"
)

var (
	runSource     string
	runFile       string
	runMaxResults int
	runDryRun     bool
	runWorkers    int
	runNoCache    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch candidate papers, classify them, and store the relevant ones",
	Long: `run fetches candidates from the configured source, screens each with the
quick model, assesses survivors with the detailed model, and stores accepted
papers. Papers already in the store are skipped. A provider rate limit or an
exhausted daily quota ends the run early; the summary still reports what was
done.`,
	Example: `  paperscope run --feed ai-security
  paperscope run --source file --file candidates.jsonl --dry-run --output-format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{withModels: true, withPapers: true})
		if err != nil {
			return err
		}
		defer a.close()

		srcCfg := a.cfg.Source
		if s := strings.TrimSpace(runSource); s != "" {
			srcCfg.Kind = s
		}
		if f := strings.TrimSpace(runFile); f != "" {
			srcCfg.File = f
			if runSource == "" {
				srcCfg.Kind = "file"
			}
		}
		if runMaxResults > 0 {
			srcCfg.MaxResults = runMaxResults
		}

		src, err := source.New(source.Config{
			Kind:       srcCfg.Kind,
			BaseURL:    srcCfg.BaseURL,
			Categories: srcCfg.Categories,
			Feeds:      srcCfg.Feeds,
			MaxResults: srcCfg.MaxResults,
			Since:      srcCfg.Since,
			File:       srcCfg.File,
		})
		if err != nil {
			return err
		}

		papers, err := src.Fetch(cmd.Context())
		if err != nil {
			return err
		}
		metrics.RecordFetched(src.Name(), len(papers))
		a.logger.Info("Fetched candidate papers", zap.String("source", src.Name()), zap.Int("count", len(papers)))

		workers := a.cfg.Workers
		if runWorkers > 0 {
			workers = runWorkers
		}
		feed := a.cfg.FeedType()
		runner := pipeline.New(a.classifier(feed, runNoCache), a.papers(), a.pipelineEmbedder(), pipeline.Options{
			Workers: workers,
			DryRun:  runDryRun,
			Logger:  a.logger,
		})

		summary, runErr := runner.Run(cmd.Context(), papers)
		if summary != nil {
			metrics.RecordRun(string(feed), summary.Stopped != "", summary.Duration)
			if !runDryRun {
				driverName := a.db.Driver()
				if a.vectors != nil {
					driverName = "qdrant"
				}
				for range summary.Papers {
					metrics.RecordStored(string(feed), driverName)
				}
			}
			if err := writeDocument(cmd, "run."+string(feed), output.SummaryDocument(summary), summary); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runSource, "source", "", "source kind: arxiv, rss or file (overrides source.kind)")
	runCmd.Flags().StringVar(&runFile, "file", "", "JSON array or JSON-lines file of candidates")
	runCmd.Flags().IntVar(&runMaxResults, "max-results", 0, "maximum candidates to fetch")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "classify without storing")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "concurrent papers (overrides workers)")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "disable the response cache")
	addOutputFlags(runCmd)
}
