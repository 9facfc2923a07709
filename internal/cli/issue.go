package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
	"github.com/example/harness/internal/wire"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues in the tracker",
}

var issueCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new issue",
	Long: `Create a new issue. --ready also queues it with hook:ready.

Examples:
  harness issue create "Fix login redirect" --priority 1 --ready
  harness issue create "Docs pass" --label team:docs --type chore`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		issueType, _ := cmd.Flags().GetString("type")
		labels, _ := cmd.Flags().GetStringSlice("label")
		ready, _ := cmd.Flags().GetBool("ready")

		return wire.IssueAdapter().Create(NewContext(), primary.CreateIssueRequest{
			Title:       args[0],
			Description: description,
			Type:        issueType,
			Priority:    intFlag(cmd, "priority"),
			Labels:      labels,
			Ready:       ready,
		})
	},
}

var issueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		labels, _ := cmd.Flags().GetStringSlice("label")
		status, _ := cmd.Flags().GetString("status")
		issueType, _ := cmd.Flags().GetString("type")

		return wire.IssueAdapter().List(NewContext(), primary.IssueFilters{
			Labels: labels,
			Status: status,
			Type:   issueType,
		})
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show [issue-id]",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := wire.IssueAdapter().Show(NewContext(), args[0])
		return err
	},
}

var issueHistoryCmd = &cobra.Command{
	Use:   "history [issue-id]",
	Short: "Show the audit trail of an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.IssueAdapter().History(NewContext(), args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update [issue-id]",
	Short: "Change the priority or status of an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		return wire.IssueAdapter().Update(NewContext(), primary.UpdateIssueRequest{
			IssueID:  args[0],
			Priority: intFlag(cmd, "priority"),
			Status:   status,
		})
	},
}

// intFlag returns the flag value, or nil when it was not set.
func intFlag(cmd *cobra.Command, name string) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		return nil
	}
	return &v
}

// IssueCmd returns the issue command
func IssueCmd() *cobra.Command {
	issueCreateCmd.Flags().IntP("priority", "p", secondary.DefaultPriority, "Priority, 0 (critical) to 4 (backlog)")
	issueCreateCmd.Flags().StringP("description", "d", "", "Issue description")
	issueCreateCmd.Flags().StringP("type", "t", "", "Issue type (default task)")
	issueCreateCmd.Flags().StringSliceP("label", "l", nil, "Label to add (repeatable)")
	issueCreateCmd.Flags().Bool("ready", false, "Queue the issue for workers")
	issueListCmd.Flags().StringSliceP("label", "l", nil, "Require label (repeatable)")
	issueListCmd.Flags().StringP("status", "s", "", "Filter by status (open, in_progress, blocked, closed)")
	issueListCmd.Flags().StringP("type", "t", "", "Filter by type")
	issueUpdateCmd.Flags().IntP("priority", "p", secondary.DefaultPriority, "New priority")
	issueUpdateCmd.Flags().StringP("status", "s", "", "New status")

	issueCmd.AddCommand(issueCreateCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueHistoryCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	return issueCmd
}
