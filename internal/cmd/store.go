package cmd

import (
	"github.com/spf13/cobra"

	"github.com/paperscope/paperscope/internal/output"
)

var storeListLimit int

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect classified papers",
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored papers for the selected feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{withPapers: true})
		if err != nil {
			return err
		}
		defer a.close()

		feed := a.cfg.FeedType()
		papers, err := a.listPapers(cmd.Context(), feed, storeListLimit)
		if err != nil {
			return err
		}
		return writeDocument(cmd, "store.list."+string(feed), output.PapersDocument(feed, papers), papers)
	},
}

func init() {
	storeCmd.AddCommand(storeListCmd)
	rootCmd.AddCommand(storeCmd)

	storeListCmd.Flags().IntVar(&storeListLimit, "limit", 50, "maximum papers to list (0 for all)")
	addOutputFlags(storeListCmd)
}
