// Package cmd defines the CLI commands for the hostcrawl executable.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFiles   []string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "hostcrawl",
		Short: "A bounded breadth-first crawler that discovers hosts",
		Long: `hostcrawl starts from one or more seed URLs and follows links breadth first,
visiting each host at most once. It records every visited host with the round
trip time of its fetch and stops once the page budget is spent or no new hosts
remain.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFiles(opts.envFiles)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", defaultEnvFiles, "dotenv files to export before loading config")
	cmd.AddCommand(newCrawlCmd(opts))
	return cmd
}

// Execute runs the CLI until it finishes or the process receives SIGINT or
// SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

// exitCode maps Execute's result to a process exit status.
func exitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

// Main runs Execute and exits the process.
func Main() {
	os.Exit(exitCode(Execute()))
}
