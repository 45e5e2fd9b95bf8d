package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperscope/paperscope/internal/core/store"
	"github.com/paperscope/paperscope/internal/output"
)

var (
	rateLimitListAll      bool
	rateLimitListProvider string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted provider throttle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		query := store.RateLimitQuery{
			All:      rateLimitListAll,
			Provider: strings.TrimSpace(rateLimitListProvider),
		}
		if query.Provider == "" {
			query.All = true
		}

		entries, err := a.db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeDocument(cmd, "rate-limit.list", output.RateLimitDocument(entries, time.Now().UTC()), entries)
	},
}

func init() {
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List all endpoints")
	rateLimitListCmd.Flags().StringVar(&rateLimitListProvider, "provider", "", "List endpoints of one provider")
	addOutputFlags(rateLimitListCmd)
}
