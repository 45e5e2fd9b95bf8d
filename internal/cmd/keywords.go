package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paperscope/paperscope/internal/classify"
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords <topic>",
	Short: "Turn a research topic into a boolean search query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := strings.TrimSpace(strings.Join(args, " "))
		if topic == "" {
			return fmt.Errorf("topic is required")
		}

		a, err := newApp(cmd.Context(), appOptions{withModels: true})
		if err != nil {
			return err
		}
		defer a.close()

		query, err := classify.GenerateKeywords(cmd.Context(), a.service, topic, a.cfg.AILink.ModelFor("keywords"), a.logger)
		if err != nil && classify.IsFatal(err) {
			return err
		}
		_, werr := fmt.Fprintln(cmd.OutOrStdout(), query)
		return werr
	},
}

func init() {
	rootCmd.AddCommand(keywordsCmd)
}
