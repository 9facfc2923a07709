package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/harness/internal/wire"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Operate the hook queue by hand",
	Long: `Operate the hook queue by hand.

Queue state lives in hook:ready, hook:in-progress and hook:failed labels.
These commands perform the same transitions workers do.`,
}

var queueClaimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim the most urgent ready issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		labels, _ := cmd.Flags().GetStringSlice("label")
		return wire.QueueAdapter().Claim(NewContext(), labels, intFlag(cmd, "max-priority"))
	},
}

var queueReleaseCmd = &cobra.Command{
	Use:   "release [issue-id]",
	Short: "Return a claimed issue to ready (or failed once retries run out)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return wire.QueueAdapter().Release(NewContext(), args[0], reason)
	},
}

var queueCompleteCmd = &cobra.Command{
	Use:   "complete [issue-id]",
	Short: "Close an issue and clear its hook labels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.QueueAdapter().Complete(NewContext(), args[0])
	},
}

var queueFailCmd = &cobra.Command{
	Use:   "fail [issue-id]",
	Short: "Move an issue straight to hook:failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return wire.QueueAdapter().Fail(NewContext(), args[0], reason)
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue [issue-id]",
	Short: "Move a failed issue back to ready",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reset, _ := cmd.Flags().GetBool("reset")
		return wire.QueueAdapter().Requeue(NewContext(), args[0], reset)
	},
}

var queueSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Release claims whose heartbeat expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.QueueAdapter().Sweep(NewContext())
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count issues per queue state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.QueueAdapter().Stats(NewContext())
	},
}

// QueueCmd returns the queue command
func QueueCmd() *cobra.Command {
	queueClaimCmd.Flags().StringSliceP("label", "l", nil, "Require label (repeatable)")
	queueClaimCmd.Flags().Int("max-priority", 4, "Only claim issues at or above this priority")
	queueReleaseCmd.Flags().StringP("reason", "r", "", "Why the work is being returned")
	queueFailCmd.Flags().StringP("reason", "r", "", "Failure reason")
	_ = queueFailCmd.MarkFlagRequired("reason")
	queueRequeueCmd.Flags().Bool("reset", false, "Reset the retry counter")

	queueCmd.AddCommand(queueClaimCmd)
	queueCmd.AddCommand(queueReleaseCmd)
	queueCmd.AddCommand(queueCompleteCmd)
	queueCmd.AddCommand(queueFailCmd)
	queueCmd.AddCommand(queueRequeueCmd)
	queueCmd.AddCommand(queueSweepCmd)
	queueCmd.AddCommand(queueStatsCmd)
	return queueCmd
}
