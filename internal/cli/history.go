package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/db"
	"github.com/tOgg1/chatsync/internal/models"
)

var (
	historyChat  int64
	historyAfter int64
	historyLimit int
	historyAll   bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(tailCmd)

	historyCmd.Flags().Int64Var(&historyChat, "chat", 0, "only changes of this chat")
	historyCmd.Flags().Int64Var(&historyAfter, "after", 0, "only changes after this sequence number")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of changes")
	historyCmd.Flags().BoolVar(&historyAll, "all-lists", false, "include every list")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the recorded change log",
	Long: `Show the notifications recorded for a list, oldest first. The log is
capped at database.history_limit entries.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := db.ChangeQuery{
			ChatID: models.ChatID(historyChat),
			After:  historyAfter,
			Limit:  historyLimit,
		}
		if !historyAll {
			list, err := resolveList()
			if err != nil {
				return err
			}
			query.List = list
		}

		ctx := context.Background()
		local, closeFn, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		page, err := local.History(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, page.Changes)
		}
		if len(page.Changes) == 0 {
			fmt.Fprintln(out, "No changes recorded.")
			return nil
		}

		rows := make([][]string, 0, len(page.Changes))
		for _, change := range page.Changes {
			n := change.Notification
			position, title := "-", "-"
			if n.Position != nil {
				position = n.Position.String()
			}
			if n.Metadata != nil {
				title = n.Metadata.Title
			}
			rows = append(rows, []string{
				strconv.FormatInt(change.Seq, 10),
				change.RecordedAt.Local().Format(time.TimeOnly),
				string(n.List),
				string(n.Kind),
				strconv.FormatInt(int64(n.ChatID), 10),
				position,
				title,
			})
		}
		if err := writeTable(out, []string{"SEQ", "TIME", "LIST", "KIND", "CHAT", "POSITION", "TITLE"}, rows); err != nil {
			return err
		}
		if page.NextAfter != 0 && !IsQuiet() {
			fmt.Fprintf(out, "\nMore changes: chatsync history --after %d\n", page.NextAfter)
		}
		return nil
	},
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print change notifications of a list as they happen",
	Long: `Subscribe to a list and print every change notification as a JSON line
until interrupted. With the redis feed backend this follows changes made
by other chatsync processes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := resolveList()
		if err != nil {
			return err
		}
		var filter models.Filter
		if saved := loadContext(); saved.List == string(list) {
			filter = saved.Filter
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		local, closeFn, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		ch, cancel := local.Subscribe(list, filter)
		defer cancel()

		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			select {
			case <-ctx.Done():
				return nil
			case n, ok := <-ch:
				if !ok {
					return nil
				}
				if err := enc.Encode(n); err != nil {
					return err
				}
			}
		}
	},
}
