package main

import (
	"os"

	"github.com/soapstonemc/soapstone/cmd/soapstone/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
