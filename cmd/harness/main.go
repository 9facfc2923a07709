package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/harness/internal/cli"
	"github.com/example/harness/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "harness",
		Short:   "harness - distribute tracker issues across agent workers",
		Version: version.String(),
		Long: `harness is a CLI for running coding agents against an issue tracker.
Issues queue through hook:* labels; workers claim them under a heartbeat
lease, run an agent, and report back. Convoys group related issues and
redirect checks pause a run when the backlog changes underneath it.`,
	}
	cli.ConfigureRoot(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.IssueCmd())
	rootCmd.AddCommand(cli.QueueCmd())
	rootCmd.AddCommand(cli.ConvoyCmd())
	rootCmd.AddCommand(cli.RedirectCmd())

	// Running and observing
	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.AttachCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
