package cmd

import (
	"fmt"
	"os"

	"github.com/soapstonemc/soapstone/pkg/soapstone"
)

// newApp wires the application from the configured (or default) config
// file.
func newApp() (*soapstone.App, error) {
	app, err := soapstone.New(soapstone.Options{
		ConfigPath:      configPath,
		LauncherName:    "soapstone",
		LauncherVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return app, nil
}

// info prints a line unless quiet mode is set.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Printf("  "+format+"\n", args...)
	}
}

// errorf prints an error message to stderr.
func errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
