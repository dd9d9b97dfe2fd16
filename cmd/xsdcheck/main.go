package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/agentflare-ai/xsdcheck/internal/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrInvalid) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
