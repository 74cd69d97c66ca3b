package main

import (
	"os"

	"github.com/gredman/run-loop/internal/cli"
)

func main() {
	// Cobra already printed the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
