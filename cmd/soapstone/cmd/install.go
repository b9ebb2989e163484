package cmd

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/soapstonemc/soapstone/internal/progress"
)

var (
	installName    string
	installVersion string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install a version under a display name",
	Long: `Runs one end-to-end installation: resolves the version, allocates an
instance folder, downloads the client binary, assets, libraries and a matching
Java runtime in parallel, and records the installation as ready on success.
A failed install leaves its record in the installing state for inspection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		var mu sync.Mutex
		var last progress.Snapshot
		observer := func(s progress.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			if quiet || !s.Valid || s == last {
				return
			}
			last = s
			fmt.Printf("\rbinary %3d%%  assets %3d%%  libraries %3d%%  runtime %3d%%",
				s.Binary, s.Assets, s.Libraries, s.Runtime)
		}

		rec, err := app.Install(cmd.Context(), installName, installVersion, observer)
		if !quiet {
			fmt.Println()
		}
		if err != nil {
			return err
		}

		info("installed %s (%s) in %s", rec.Name, rec.VersionID, rec.Folder)
		detail("id %s, java %d", rec.ID, rec.JavaMajor)
		return nil
	},
}

func init() {
	installCmd.Flags().StringVar(&installName, "name", "", "display name for the installation")
	installCmd.Flags().StringVar(&installVersion, "version", "", "version id to install")
	_ = installCmd.MarkFlagRequired("name")
	_ = installCmd.MarkFlagRequired("version")
	rootCmd.AddCommand(installCmd)
}
