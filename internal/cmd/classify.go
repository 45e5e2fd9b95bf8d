package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/classify"
	"github.com/paperscope/paperscope/internal/core"
	"github.com/paperscope/paperscope/internal/output"
	"github.com/paperscope/paperscope/internal/source"
)

var (
	classifyTitle    string
	classifyAbstract string
	classifyURL      string
	classifySource   string
	classifyFile     string
	classifyNoCache  bool
)

// classifyReport is the JSON shape of `paperscope classify`.
type classifyReport struct {
	Feed    core.FeedType          `json:"feed"`
	Results []output.VerdictView   `json:"results"`
	Cost    classify.CostBreakdown `json:"cost"`
	Stopped string                 `json:"stopped,omitempty"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify one paper or a batch file without storing anything",
	Example: `  paperscope classify --title "Jailbreaking LLM agents" --abstract "We study..."
  paperscope classify --file candidates.jsonl --feed web3-security --output-format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		papers, err := classifyInput(cmd.Context())
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), appOptions{withModels: true})
		if err != nil {
			return err
		}
		defer a.close()

		feed := a.cfg.FeedType()
		classifier := a.classifier(feed, classifyNoCache)

		report := classifyReport{Feed: feed}
		var quickTokens, detailedTokens int
		var fatal error
		for _, p := range papers {
			verdict, err := classifier.Classify(cmd.Context(), p)
			if err != nil && classify.IsFatal(err) {
				fatal = err
				report.Stopped = err.Error()
				break
			}
			if err != nil {
				a.logger.Warn("Classification failed", zap.String("title", p.Title), zap.Error(err))
			}
			quickTokens += verdict.QuickTokens
			detailedTokens += verdict.DetailedTokens
			report.Results = append(report.Results, output.NewVerdictView(p, verdict))
		}
		report.Cost = classify.Breakdown(classifier.QuickModel(), quickTokens, classifier.DetailedModel(), detailedTokens)

		doc := output.VerdictDocument(feed, report.Results)
		doc.Notes = append(doc.Notes, fmt.Sprintf("cost $%.4f", report.Cost.Total))
		if report.Stopped != "" {
			doc.Notes = append(doc.Notes, "stopped early: "+report.Stopped)
		}
		if err := writeDocument(cmd, "classify", doc, report); err != nil {
			return err
		}
		return fatal
	},
}

// classifyInput builds the paper list from --file or the single-paper flags.
func classifyInput(ctx context.Context) ([]core.Paper, error) {
	if path := strings.TrimSpace(classifyFile); path != "" {
		papers, err := (&source.File{Path: path}).Fetch(ctx)
		if err != nil {
			return nil, err
		}
		if len(papers) == 0 {
			return nil, fmt.Errorf("%s contains no papers", path)
		}
		return papers, nil
	}

	title := strings.TrimSpace(classifyTitle)
	if title == "" {
		return nil, fmt.Errorf("--title or --file is required")
	}
	paper := core.Paper{
		Title:    title,
		Abstract: strings.TrimSpace(classifyAbstract),
		URL:      strings.TrimSpace(classifyURL),
		Source:   strings.TrimSpace(classifySource),
	}
	if paper.Source == "" {
		paper.Source = source.SourceArXiv
	}
	return []core.Paper{paper}, nil
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVar(&classifyTitle, "title", "", "paper title")
	classifyCmd.Flags().StringVar(&classifyAbstract, "abstract", "", "paper abstract")
	classifyCmd.Flags().StringVar(&classifyURL, "url", "", "paper URL")
	classifyCmd.Flags().StringVar(&classifySource, "source", "", "paper source (arxiv, acl); acl papers are assessed on title only")
	classifyCmd.Flags().StringVar(&classifyFile, "file", "", "JSON array or JSON-lines file of papers")
	classifyCmd.Flags().BoolVar(&classifyNoCache, "no-cache", false, "disable the response cache")
	addOutputFlags(classifyCmd)
}
