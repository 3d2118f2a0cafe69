package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/session"
)

var (
	chatTitle    string
	chatUnread   int
	chatMentions int
	chatMuted    bool
	chatDraft    bool
	chatArchived bool
	chatSpecial  bool
	chatTag      string

	chatOrder  uint64
	chatPinned bool
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.AddCommand(chatShowCmd, chatPutCmd, chatAddCmd, chatPinCmd, chatUnpinCmd,
		chatRemoveCmd, chatTouchCmd, chatReadCmd, chatMuteCmd)

	chatPutCmd.Flags().StringVar(&chatTitle, "title", "", "chat title")
	chatPutCmd.Flags().IntVar(&chatUnread, "unread", 0, "unread message count")
	chatPutCmd.Flags().IntVar(&chatMentions, "mentions", 0, "unread mention count")
	chatPutCmd.Flags().BoolVar(&chatMuted, "muted", false, "mute the chat")
	chatPutCmd.Flags().BoolVar(&chatDraft, "draft", false, "mark a draft as present")
	chatPutCmd.Flags().BoolVar(&chatArchived, "archived", false, "archive the chat")
	chatPutCmd.Flags().BoolVar(&chatSpecial, "special", false, "show the chat in the top block")
	chatPutCmd.Flags().StringVar(&chatTag, "tag", "", "opaque client tag")

	chatAddCmd.Flags().Uint64Var(&chatOrder, "order", 0, "order key (default: current time)")
	chatAddCmd.Flags().BoolVar(&chatPinned, "pinned", false, "pin the chat")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Inspect and change chats",
}

var chatShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a chat in the selected list",
	Args:  cobra.ExactArgs(1),
	RunE: withChat(func(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error {
		entry, err := local.Entry(ctx, list, id)
		if err != nil {
			return err
		}
		return printEntry(cmd, entry)
	}),
}

var chatPutCmd = &cobra.Command{
	Use:   "put <id>",
	Short: "Create or replace a chat",
	Long:  "Create or replace the metadata of a chat. Every list holding the chat is notified.",
	Args:  cobra.ExactArgs(1),
	RunE: withChat(func(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error {
		snap := models.Snapshot{
			Title:        chatTitle,
			LastActivity: time.Now().UTC(),
			UnreadCount:  chatUnread,
			MentionCount: chatMentions,
			HasDraft:     chatDraft,
			Muted:        chatMuted,
			Tag:          chatTag,
			Archived:     chatArchived,
			Special:      chatSpecial,
		}
		if err := local.PutChat(ctx, id, snap); err != nil {
			return fmt.Errorf("failed to store chat %d: %w", id, err)
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), models.Entry{ID: id, Metadata: snap})
		}
		if !IsQuiet() {
			fmt.Fprintf(cmd.OutOrStdout(), "Stored chat %d\n", id)
		}
		PrintNextSteps(cmd.OutOrStdout(), HintContext{Action: "put", List: list, ChatID: id})
		return nil
	}),
}

var chatAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Place a chat in the selected list",
	Args:  cobra.ExactArgs(1),
	RunE: withChat(func(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error {
		order := chatOrder
		if order == 0 {
			order = uint64(time.Now().UnixNano())
		}
		pos := models.Position{Pinned: chatPinned, Order: order, TieBreak: int64(id)}
		if err := local.SetPosition(ctx, list, id, pos); err != nil {
			return fmt.Errorf("failed to place chat %d: %w", id, err)
		}
		return reportPosition(ctx, cmd, local, list, id)
	}),
}

var chatPinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Pin a chat in the selected list",
	Args:  cobra.ExactArgs(1),
	RunE: withChat(func(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error {
		return setPinned(ctx, cmd, local, list, id, true)
	}),
}

var chatUnpinCmd = &cobra.Command{
	Use:   "unpin <id>",
	Short: "Unpin a chat in the selected list",
	Args:  cobra.ExactArgs(1),
	RunE: withChat(func(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error {
		return setPinned(ctx, cmd, local, list, id, false)
	}),
}

var chatRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Take a chat out of the selected list",
	Args:    cobra.ExactArgs(1),
	RunE: withChat(func(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error {
		if err := local.RemoveFromList(ctx, list, id); err != nil {
			return fmt.Errorf("failed to remove chat %d: %w", id, err)
		}
		if !IsQuiet() && !IsJSONOutput() && !IsJSONLOutput() {
			fmt.Fprintf(cmd.OutOrStdout(), "Removed chat %d from %s\n", id, list)
		}
		PrintNextSteps(cmd.OutOrStdout(), HintContext{Action: "remove", List: list, ChatID: id})
		return nil
	}),
}

var chatTouchCmd = &cobra.Command{
	Use:   "touch <id>",
	Short: "Move a chat to the top of its block, as new activity does",
	Args:  cobra.ExactArgs(1),
	RunE: withChat(func(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error {
		if _, err := local.Touch(ctx, list, id); err != nil {
			return fmt.Errorf("failed to touch chat %d: %w", id, err)
		}
		if _, err := local.UpdateChat(ctx, id, func(s *models.Snapshot) {
			s.LastActivity = time.Now().UTC()
		}); err != nil {
			return fmt.Errorf("failed to touch chat %d: %w", id, err)
		}
		return reportPosition(ctx, cmd, local, list, id)
	}),
}

var chatReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a chat as read",
	Args:  cobra.ExactArgs(1),
	RunE: withChat(func(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error {
		return updateChat(ctx, cmd, local, id, func(s *models.Snapshot) {
			s.UnreadCount = 0
			s.MentionCount = 0
		})
	}),
}

var chatMuteCmd = &cobra.Command{
	Use:   "mute <id>",
	Short: "Toggle mute on a chat",
	Args:  cobra.ExactArgs(1),
	RunE: withChat(func(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error {
		return updateChat(ctx, cmd, local, id, func(s *models.Snapshot) {
			s.Muted = !s.Muted
		})
	}),
}

type chatAction func(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error

// withChat parses the chat id, resolves the list and opens the session.
func withChat(action chatAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseChatID(args[0])
		if err != nil {
			return err
		}
		list, err := resolveList()
		if err != nil {
			return err
		}

		ctx := context.Background()
		local, closeFn, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		err = action(ctx, cmd, local, list, id)
		if errors.Is(err, session.ErrChatNotFound) {
			return &PreflightError{
				Message:  err.Error(),
				Hint:     fmt.Sprintf("Create the chat and place it in %s first", list),
				NextStep: fmt.Sprintf("chatsync chat put %d --title ... && chatsync chat add %d --list %s", id, id, list),
			}
		}
		return err
	}
}

func parseChatID(value string) (models.ChatID, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chat id %q: %w", value, models.ErrInvalidChatID)
	}
	return models.ChatID(id), nil
}

func setPinned(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID, pinned bool) error {
	entry, err := local.Entry(ctx, list, id)
	if err != nil {
		return err
	}
	if entry.Position.Pinned != pinned {
		pos := entry.Position
		pos.Pinned = pinned
		if err := local.SetPosition(ctx, list, id, pos); err != nil {
			return fmt.Errorf("failed to update chat %d: %w", id, err)
		}
	}
	return reportPosition(ctx, cmd, local, list, id)
}

func updateChat(ctx context.Context, cmd *cobra.Command, local *session.Local, id models.ChatID, fn func(*models.Snapshot)) error {
	snap, err := local.UpdateChat(ctx, id, fn)
	if err != nil {
		return fmt.Errorf("failed to update chat %d: %w", id, err)
	}
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(cmd.OutOrStdout(), models.Entry{ID: id, Metadata: snap})
	}
	if !IsQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), "Updated chat %d\n", id)
	}
	return nil
}

func reportPosition(ctx context.Context, cmd *cobra.Command, local *session.Local, list models.ListID, id models.ChatID) error {
	entry, err := local.Entry(ctx, list, id)
	if err != nil {
		return err
	}
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(cmd.OutOrStdout(), entry)
	}
	if !IsQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), "Chat %d in %s at %s\n", id, list, entry.Position)
	}
	return nil
}

func printEntry(cmd *cobra.Command, entry models.Entry) error {
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(cmd.OutOrStdout(), entry)
	}
	m := entry.Metadata
	rows := [][]string{
		{"ID", strconv.FormatInt(int64(entry.ID), 10)},
		{"Title", m.Title},
		{"Position", entry.Position.String()},
		{"Pinned", formatYesNo(entry.Position.Pinned)},
		{"Unread", strconv.Itoa(m.UnreadCount)},
		{"Mentions", strconv.Itoa(m.MentionCount)},
		{"Muted", formatYesNo(m.Muted)},
		{"Draft", formatYesNo(m.HasDraft)},
		{"Archived", formatYesNo(m.Archived)},
		{"Last activity", formatTime(m.LastActivity)},
	}
	return writeTable(cmd.OutOrStdout(), nil, rows)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
