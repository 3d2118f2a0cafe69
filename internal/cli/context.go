package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/models"
)

var (
	contextSetList     string
	contextSetQuery    string
	contextSetUnread   bool
	contextSetMuted    bool
	contextSetMentions bool
)

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.AddCommand(contextShowCmd, contextSetCmd, contextClearCmd)

	contextSetCmd.Flags().StringVar(&contextSetList, "set-list", "", "list to select")
	contextSetCmd.Flags().StringVar(&contextSetQuery, "query", "", "title filter")
	contextSetCmd.Flags().BoolVar(&contextSetUnread, "unread", false, "only unread chats")
	contextSetCmd.Flags().BoolVar(&contextSetMuted, "muted", false, "only muted chats")
	contextSetCmd.Flags().BoolVar(&contextSetMentions, "mentions", false, "only chats with mentions")
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage the saved view",
	Long:  "The saved view selects the list and filter used when --list is not given. watch updates it on exit.",
}

var contextShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		saved, err := contextStore().Load()
		if err != nil {
			return fmt.Errorf("failed to load context: %w", err)
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), saved)
		}
		fmt.Fprintln(cmd.OutOrStdout(), saved.String())
		return nil
	},
}

var contextSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Select a list and filter",
	Long: `Select the list (--set-list, or the global --list) and replace its
filter. Selecting another list drops the previous filter.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := contextStore()
		saved, err := store.Load()
		if err != nil {
			return fmt.Errorf("failed to load context: %w", err)
		}

		list := strings.TrimSpace(contextSetList)
		if list == "" {
			list = strings.TrimSpace(listFlag)
		}
		if list != "" {
			saved.SetList(models.ListID(list))
		}
		if saved.List == "" {
			return &PreflightError{
				Message:  "no list selected",
				Hint:     "A filter belongs to a list",
				NextStep: "chatsync context set --set-list main",
			}
		}

		flags := cmd.Flags()
		if flags.Changed("query") || flags.Changed("unread") || flags.Changed("muted") || flags.Changed("mentions") {
			saved.SetFilter(models.Filter{
				Query:        strings.TrimSpace(contextSetQuery),
				UnreadOnly:   contextSetUnread,
				MutedOnly:    contextSetMuted,
				MentionsOnly: contextSetMentions,
			})
		}

		if err := store.Save(saved); err != nil {
			return fmt.Errorf("failed to save context: %w", err)
		}
		if !IsQuiet() {
			fmt.Fprintf(cmd.OutOrStdout(), "Context: %s\n", saved.String())
		}
		return nil
	},
}

var contextClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the saved view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := contextStore().Clear(); err != nil {
			return fmt.Errorf("failed to clear context: %w", err)
		}
		if !IsQuiet() {
			fmt.Fprintln(cmd.OutOrStdout(), "Context cleared.")
		}
		return nil
	},
}
