// Package main implements the copyvara CLI for the copyvarad HTTP API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	serverURL string
	timeout   time.Duration
	jsonOut   bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "copyvara",
		Short: "CLI for the copyvara knowledge workspace",
		Long: `copyvara talks to a running copyvarad. It captures text, asks questions
against the captured knowledge and inspects history.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://127.0.0.1:9292", "copyvarad server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print raw JSON responses")

	root.AddCommand(
		newHealthCmd(opts),
		newStatusCmd(opts),
		newAddCmd(opts),
		newAskCmd(opts),
		newSearchCmd(opts),
		newDocsCmd(opts),
		newHistoryCmd(opts),
		newResetCmd(opts),
		newEventsCmd(opts),
	)
	return root
}
