package cmd

import (
	"github.com/spf13/cobra"
)

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List installations and their lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		list, err := app.Instances()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			info("no installations")
			return nil
		}

		for _, rec := range list {
			info("%-24s %-12s %-10s %s", rec.Name, rec.VersionID, rec.State, rec.Folder)
			detail("id %s, created %s", rec.ID, rec.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(instancesCmd)
}
