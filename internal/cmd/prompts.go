package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/paperscope/paperscope/internal/ailink/prompt"
	"github.com/paperscope/paperscope/internal/output"
)

// promptView is the JSON shape of one listed prompt.
type promptView struct {
	Slug        string `json:"slug"`
	Role        string `json:"role"`
	Model       string `json:"model"`
	Format      string `json:"format,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect classification prompts",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompts with the model each one resolves to",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := prompt.LoadRegistry(cfg.AILink.PromptsDir)
		if err != nil {
			return err
		}

		var views []promptView
		for _, p := range registry.List() {
			if p == nil {
				continue
			}
			views = append(views, promptView{
				Slug:        p.Config.Slug,
				Role:        p.Config.Role,
				Model:       cfg.AILink.ModelFor(p.Config.Role),
				Format:      p.Config.Format,
				Version:     p.Config.Version,
				Description: p.Config.Description,
			})
		}
		sort.Slice(views, func(i, j int) bool { return views[i].Slug < views[j].Slug })

		doc := output.Document{
			Title:  "Prompts",
			Header: []string{"Slug", "Role", "Model", "Format"},
			Empty:  "No prompts found.",
		}
		for _, v := range views {
			doc.Rows = append(doc.Rows, []string{v.Slug, v.Role, v.Model, v.Format})
		}
		return writeDocument(cmd, "prompts", doc, views)
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.AddCommand(promptsListCmd)
	addOutputFlags(promptsListCmd)
}
