package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/harness/internal/wire"
)

var redirectCmd = &cobra.Command{
	Use:   "redirect",
	Short: "Detect backlog changes that should interrupt a run",
	Long: `Detect backlog changes that should interrupt a run.

The snapshot is stored in the harness checkpoint, the same one 'harness run'
compares against.`,
}

var redirectSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Record the current priority and status of every issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.RedirectAdapter().Snapshot(NewContext(), harnessFlag(cmd))
	},
}

var redirectCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the backlog with the recorded snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := wire.RedirectAdapter().Check(NewContext(), harnessFlag(cmd))
		return err
	},
}

// harnessFlag returns --harness, or the configured harness id.
func harnessFlag(cmd *cobra.Command) string {
	if id, _ := cmd.Flags().GetString("harness"); id != "" {
		return id
	}
	return wire.Config().HarnessID
}

// RedirectCmd returns the redirect command
func RedirectCmd() *cobra.Command {
	redirectSnapshotCmd.Flags().String("harness", "", "Harness id (default from config)")
	redirectCheckCmd.Flags().String("harness", "", "Harness id (default from config)")

	redirectCmd.AddCommand(redirectSnapshotCmd)
	redirectCmd.AddCommand(redirectCheckCmd)
	return redirectCmd
}
