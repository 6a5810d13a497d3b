package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "steward",
		Short: "Steward - Autonomous task execution agent",
		Long: `Steward runs a language-model agent over a durable task queue.
It picks up eligible tasks, works them with a set of permissioned
tools, suspends to ask a human when it needs approval or input,
and resumes from a checkpoint when the answer arrives.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
