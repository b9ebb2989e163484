package cmd

import (
	"github.com/spf13/cobra"
)

var (
	accountUUID  string
	accountToken string
	accountType  string
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage the launch credentials",
}

var accountSetCmd = &cobra.Command{
	Use:   "set <player name>",
	Short: "Persist the credential set used by launch",
	Long: `Stores the player identity substituted into launch arguments. Obtaining
an access token is up to an external authentication flow; this command only
persists its result. Without a token, launches run an offline session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.SetAccount(args[0], accountUUID, accountToken, accountType); err != nil {
			return err
		}
		info("account set: %s", args[0])
		return nil
	},
}

func init() {
	accountSetCmd.Flags().StringVar(&accountUUID, "uuid", "", "player uuid")
	accountSetCmd.Flags().StringVar(&accountToken, "token", "", "access token")
	accountSetCmd.Flags().StringVar(&accountType, "type", "", "user type (default offline)")
	accountCmd.AddCommand(accountSetCmd)
	rootCmd.AddCommand(accountCmd)
}
