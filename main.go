package main

import (
	"fmt"
	"os"

	"github.com/Resonant-Jones/WhisperBoard/cmd"
	"github.com/Resonant-Jones/WhisperBoard/internal/conf"
)

func main() {
	settings, err := conf.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
