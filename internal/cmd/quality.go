package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paperscope/paperscope/internal/classify"
	"github.com/paperscope/paperscope/internal/core"
	"github.com/paperscope/paperscope/internal/output"
)

var (
	qualityTitle     string
	qualityAbstract  string
	qualityDate      string
	qualityCitations int
	qualityURL       string
	qualityType      string
	qualitySource    string
	qualityRepo      string
	qualityModel     string
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Score a paper's novelty, significance and overall quality",
	Example: `  paperscope quality --title "Prompt injection at scale" --date 2025-03-01 --citations 12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paper := core.Paper{
			Title:           strings.TrimSpace(qualityTitle),
			Abstract:        strings.TrimSpace(qualityAbstract),
			URL:             strings.TrimSpace(qualityURL),
			PublishedDate:   strings.TrimSpace(qualityDate),
			CitedByCount:    qualityCitations,
			PublicationType: strings.TrimSpace(qualityType),
			Source:          strings.TrimSpace(qualitySource),
			CodeRepository:  strings.TrimSpace(qualityRepo),
		}
		if paper.Title == "" {
			return fmt.Errorf("--title is required")
		}

		a, err := newApp(cmd.Context(), appOptions{withModels: true})
		if err != nil {
			return err
		}
		defer a.close()

		model := strings.TrimSpace(qualityModel)
		if model == "" {
			model = a.cfg.AILink.ModelFor("quality")
		}
		reviewer := classify.NewReviewer(a.service, model, a.logger)
		assessment, tokens, err := reviewer.AssessQuality(cmd.Context(), paper)
		if err != nil {
			return err
		}

		view := output.QualityView{
			Title:      paper.Title,
			URL:        paper.URL,
			Assessment: assessment,
			Model:      model,
			Tokens:     tokens,
		}
		return writeDocument(cmd, "quality", output.QualityDocument(view), view)
	},
}

func init() {
	rootCmd.AddCommand(qualityCmd)

	qualityCmd.Flags().StringVar(&qualityTitle, "title", "", "paper title")
	qualityCmd.Flags().StringVar(&qualityAbstract, "abstract", "", "paper abstract")
	qualityCmd.Flags().StringVar(&qualityDate, "date", "", "publication date (YYYY-MM-DD)")
	qualityCmd.Flags().IntVar(&qualityCitations, "citations", 0, "citation count")
	qualityCmd.Flags().StringVar(&qualityURL, "url", "", "paper URL")
	qualityCmd.Flags().StringVar(&qualityType, "publication-type", "", "publication type (journal, conference, preprint)")
	qualityCmd.Flags().StringVar(&qualitySource, "source", "", "paper source")
	qualityCmd.Flags().StringVar(&qualityRepo, "code-repository", "", "link to the paper's code")
	qualityCmd.Flags().StringVar(&qualityModel, "model", "", "override the quality model")
	addOutputFlags(qualityCmd)
}
