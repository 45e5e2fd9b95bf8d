package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paperscope/paperscope/internal/core/store"
	"github.com/paperscope/paperscope/internal/output"
)

var (
	rateLimitResetAll      bool
	rateLimitResetEndpoint string
	rateLimitResetProvider string
	rateLimitResetYes      bool
	rateLimitResetDryRun   bool
)

type rateLimitResetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear persisted provider throttle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := store.RateLimitQuery{
			All:      rateLimitResetAll,
			Endpoint: strings.TrimSpace(rateLimitResetEndpoint),
			Provider: strings.TrimSpace(rateLimitResetProvider),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		matched, err := a.db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}
		result := rateLimitResetResult{Matched: len(matched), DryRun: rateLimitResetDryRun}
		if !rateLimitResetDryRun {
			deleted, err := a.db.ResetRateLimits(cmd.Context(), query)
			if err != nil {
				return err
			}
			result.Deleted = deleted
		}
		return writeDocument(cmd, "rate-limit.reset", resetDocument(result), result)
	},
}

func resetDocument(r rateLimitResetResult) output.Document {
	summary := fmt.Sprintf("Deleted %d/%d rate limit entr(ies)", r.Deleted, r.Matched)
	if r.DryRun {
		summary = fmt.Sprintf("Would delete %d rate limit entr(ies)", r.Matched)
	}
	return output.Document{Title: "Rate limit reset", Empty: summary}
}

func init() {
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetAll, "all", false, "Reset all endpoints")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetEndpoint, "endpoint", "", "Reset a single endpoint (exact match)")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetProvider, "provider", "", "Reset endpoints of one provider")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be deleted")
	addOutputFlags(rateLimitResetCmd)
}
