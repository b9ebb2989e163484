package cmd

import (
	"github.com/spf13/cobra"
)

var (
	versionsAll     bool
	versionsRefresh bool
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List installable versions",
	Long: `Lists versions from the remote catalog. By default only stable releases
are shown; --all includes snapshots and other channels. The catalog is cached
locally; --refresh forces a reload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := app.Versions(cmd.Context(), versionsAll, versionsRefresh)
		if err != nil {
			return err
		}

		for _, e := range entries {
			info("%-16s %-10s %s", e.ID, e.Type, e.ReleaseTime.Format("2006-01-02"))
		}
		detail("%d versions", len(entries))
		return nil
	},
}

func init() {
	versionsCmd.Flags().BoolVar(&versionsAll, "all", false, "include non-release channels")
	versionsCmd.Flags().BoolVar(&versionsRefresh, "refresh", false, "force a catalog reload")
	rootCmd.AddCommand(versionsCmd)
}
