package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fitforge/fitforge/cmd/planctl/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "planctl",
		Short: "Operations tool for the plan generation service",
		Long:  "CLI tool for inspecting the similarity cache, recovering stuck weeks, and managing rate limit settings",
	}

	rootCmd.AddCommand(commands.NewCacheCmd())
	rootCmd.AddCommand(commands.NewWeeksCmd())
	rootCmd.AddCommand(commands.NewRatelimitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
