package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for commit, build date, Go, Gofulmen and Crucible versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()

		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "%s %s\n", identity.BinaryName, versionInfo.Version)
		if !extended {
			return nil
		}

		version := crucible.GetVersion()
		_, _ = fmt.Fprintf(w, "Commit: %s\n", versionInfo.Commit)
		_, _ = fmt.Fprintf(w, "Built: %s\n", versionInfo.BuildDate)
		_, _ = fmt.Fprintf(w, "Go: %s\n", runtime.Version())
		_, _ = fmt.Fprintf(w, "Gofulmen: %s\n", version.Gofulmen)
		_, err := fmt.Fprintf(w, "Crucible: %s\n", version.Crucible)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
