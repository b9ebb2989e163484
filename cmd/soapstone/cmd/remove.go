package cmd

import (
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete an installation and its instance folder",
	Long: `Removes the install record and the per-instance folder. Shared artifacts
(versions, libraries, assets, runtimes) stay in place; other installations
may reference them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Remove(args[0]); err != nil {
			return err
		}
		info("removed %s", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
