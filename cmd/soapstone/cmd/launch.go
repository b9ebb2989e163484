package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soapstonemc/soapstone/internal/launch"
)

var launchCmd = &cobra.Command{
	Use:   "launch <name>",
	Short: "Launch a ready installation",
	Long: `Launches the installation with the given display name using the persisted
account credentials (or an offline identity), streams run-state transitions,
and prints collected diagnostics if the process terminated abnormally.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		inst, rec, err := app.Launch(cmd.Context(), args[0], func(state launch.RunState) {
			info("state: %s", state)
		})
		if err != nil {
			return err
		}
		info("launched %s (%s)", rec.Name, rec.VersionID)

		diags := inst.Wait()
		if len(diags) == 0 {
			info("exited cleanly")
			return nil
		}

		errorf("%s terminated abnormally", rec.Name)
		for _, line := range diags {
			fmt.Println("  " + line)
		}
		return fmt.Errorf("%d diagnostic lines collected", len(diags))
	},
}

func init() {
	rootCmd.AddCommand(launchCmd)
}
