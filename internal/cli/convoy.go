package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/wire"
)

var convoyCmd = &cobra.Command{
	Use:   "convoy",
	Short: "Group issues into convoys and track their progress",
	Long: `A convoy is a named group of issues that ship together. Members carry a
convoy:<name> label; a sentinel issue of type convoy holds the title.`,
}

var convoyCreateCmd = &cobra.Command{
	Use:   "create [name] [issue-id...]",
	Short: "Create a convoy from existing issues",
	Long: `Create a convoy from existing issues.

Examples:
  harness convoy create launch hs-1 hs-2 hs-3 --title "Public launch"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")

		return wire.ConvoyAdapter().Create(NewContext(), primary.CreateConvoyRequest{
			Name:        args[0],
			Title:       title,
			Description: description,
			IssueIDs:    args[1:],
		})
	},
}

var convoyStatusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show progress of one convoy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.ConvoyAdapter().Status(NewContext(), args[0])
	},
}

var convoyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List convoys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.ConvoyAdapter().List(NewContext())
	},
}

var convoyAddCmd = &cobra.Command{
	Use:   "add [name] [issue-id...]",
	Short: "Add issues to a convoy",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.ConvoyAdapter().Add(NewContext(), args[0], args[1:])
	},
}

var convoyRemoveCmd = &cobra.Command{
	Use:   "remove [name] [issue-id...]",
	Short: "Remove issues from a convoy",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.ConvoyAdapter().Remove(NewContext(), args[0], args[1:])
	},
}

var convoyNextCmd = &cobra.Command{
	Use:   "next [name]",
	Short: "Show the convoy's next ready issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.ConvoyAdapter().Next(NewContext(), args[0])
	},
}

// ConvoyCmd returns the convoy command
func ConvoyCmd() *cobra.Command {
	convoyCreateCmd.Flags().StringP("title", "t", "", "Convoy title (default: the name)")
	convoyCreateCmd.Flags().StringP("description", "d", "", "Convoy description")

	convoyCmd.AddCommand(convoyCreateCmd)
	convoyCmd.AddCommand(convoyStatusCmd)
	convoyCmd.AddCommand(convoyListCmd)
	convoyCmd.AddCommand(convoyAddCmd)
	convoyCmd.AddCommand(convoyRemoveCmd)
	convoyCmd.AddCommand(convoyNextCmd)
	return convoyCmd
}
