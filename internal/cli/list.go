package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/bulk"
	"github.com/tOgg1/chatsync/internal/chatlist"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/session"
)

const windowTimeout = 30 * time.Second

var (
	filterQuery    string
	filterUnread   bool
	filterMuted    bool
	filterMentions bool

	listWindow int
	listLimit  int
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(listsCmd)

	for _, cmd := range []*cobra.Command{listCmd, countCmd} {
		cmd.Flags().StringVar(&filterQuery, "query", "", "only chats whose title contains the text")
		cmd.Flags().BoolVar(&filterUnread, "unread", false, "only chats with unread messages")
		cmd.Flags().BoolVar(&filterMuted, "muted", false, "only muted chats")
		cmd.Flags().BoolVar(&filterMentions, "mentions", false, "only chats with unread mentions")
	}
	listCmd.Flags().IntVar(&listWindow, "window", 0, "load one window of this size through a list slice instead of the whole list")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "stop printing after this many chats (0 prints all)")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the chats of a list in order",
	Long: `Print the chats of a list in list order. By default the whole list is
enumerated page by page; --window loads a single window the way a chat list
screen does.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := resolveList()
		if err != nil {
			return err
		}
		filter := resolveFilter(cmd, list)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		local, closeFn, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		var entries []models.Entry
		if listWindow > 0 {
			entries, err = loadWindow(ctx, local, list, filter, listWindow)
		} else {
			entries, err = enumerate(ctx, local, list, filter, cmd)
		}
		if err != nil {
			return err
		}
		if listLimit > 0 && len(entries) > listLimit {
			entries = entries[:listLimit]
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No chats found.")
			return nil
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				strconv.FormatInt(int64(e.ID), 10),
				e.Position.String(),
				e.Metadata.Title,
				strconv.Itoa(e.Metadata.UnreadCount),
				formatFlags(e),
			})
		}
		return writeTable(out, []string{"ID", "POSITION", "TITLE", "UNREAD", "FLAGS"}, rows)
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count the chats of a list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := resolveList()
		if err != nil {
			return err
		}
		filter := resolveFilter(cmd, list)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		local, closeFn, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		enumerator := bulk.New(local, bulk.Options{PageSize: appConfig.Bulk.PageSize})
		count, err := enumerator.Count(ctx, bulk.Request{List: list, Filter: filter})
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", list, err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), map[string]any{"list": list, "count": count})
		}
		fmt.Fprintln(cmd.OutOrStdout(), count)
		return nil
	},
}

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Show every list with its size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		local, closeFn, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		lists, err := local.Lists(ctx)
		if err != nil {
			return fmt.Errorf("failed to read lists: %w", err)
		}

		type listInfo struct {
			List  models.ListID `json:"list"`
			Count int           `json:"count"`
		}
		infos := make([]listInfo, 0, len(lists))
		for _, list := range lists {
			count, err := local.Count(ctx, list, models.Filter{})
			if err != nil {
				return fmt.Errorf("failed to count %s: %w", list, err)
			}
			infos = append(infos, listInfo{List: list, Count: count})
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, infos)
		}
		if len(infos) == 0 {
			fmt.Fprintln(out, "No lists found.")
			return nil
		}
		rows := make([][]string, 0, len(infos))
		for _, info := range infos {
			rows = append(rows, []string{string(info.List), strconv.Itoa(info.Count)})
		}
		return writeTable(out, []string{"LIST", "CHATS"}, rows)
	},
}

// resolveFilter builds the filter from flags. Without filter flags the
// saved filter applies when it belongs to list.
func resolveFilter(cmd *cobra.Command, list models.ListID) models.Filter {
	flags := cmd.Flags()
	if flags.Changed("query") || flags.Changed("unread") || flags.Changed("muted") || flags.Changed("mentions") {
		return models.Filter{
			Query:        strings.TrimSpace(filterQuery),
			UnreadOnly:   filterUnread,
			MutedOnly:    filterMuted,
			MentionsOnly: filterMentions,
		}
	}
	saved := loadContext()
	if saved.List == string(list) {
		return saved.Filter
	}
	return models.Filter{}
}

// enumerate walks the whole list. With bulk.progress set, page progress
// goes to stderr.
func enumerate(ctx context.Context, sess session.Session, list models.ListID, filter models.Filter, cmd *cobra.Command) ([]models.Entry, error) {
	enumerator := bulk.New(sess, bulk.Options{
		PageSize: appConfig.Bulk.PageSize,
		Progress: appConfig.Bulk.Progress,
	})

	var entries []models.Entry
	var failure error
	token := enumerator.Enumerate(ctx, bulk.Request{List: list, Filter: filter}, bulk.Callbacks{
		OnMatch: func(e models.Entry) { entries = append(entries, e) },
		OnError: func(err error) { failure = err },
		OnComplete: func(final bool) {
			if !final && !IsQuiet() {
				fmt.Fprintf(cmd.ErrOrStderr(), "... %d chats\n", len(entries))
			}
		},
	})
	<-token.Done()

	if token.Canceled() {
		return nil, context.Canceled
	}
	if failure != nil {
		return nil, failure
	}
	return entries, nil
}

// loadWindow initializes a slice of size entries, waits for the first page
// and returns what it holds.
func loadWindow(ctx context.Context, sess session.Session, list models.ListID, filter models.Filter, size int) ([]models.Entry, error) {
	ctrl, err := chatlist.New(sess, chatlist.Config{List: list, Filter: filter, BatchSize: size})
	if err != nil {
		return nil, err
	}
	defer ctrl.Destroy()

	done := make(chan error, 1)
	if err := ctrl.Initialize(nil, size, func(err error) { done <- err }); err != nil {
		return nil, err
	}

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(windowTimeout):
		return nil, fmt.Errorf("timed out loading %s", list)
	}
	return ctrl.Entries(), nil
}

func formatFlags(e models.Entry) string {
	var flags []string
	if e.Position.Pinned {
		flags = append(flags, "pinned")
	}
	if e.Metadata.MentionCount > 0 {
		flags = append(flags, "mention")
	}
	if e.Metadata.Muted {
		flags = append(flags, "muted")
	}
	if e.Metadata.HasDraft {
		flags = append(flags, "draft")
	}
	if e.Metadata.HasScheduled {
		flags = append(flags, "scheduled")
	}
	if e.Metadata.Archived {
		flags = append(flags, "archived")
	}
	if e.Metadata.Special {
		flags = append(flags, "special")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
