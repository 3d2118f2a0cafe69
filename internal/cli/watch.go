package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/chatsync/internal/chatui"
	"github.com/tOgg1/chatsync/internal/grouping"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
)

var watchTheme string

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchTheme, "theme", "", "color theme (default, high-contrast, ocean, sunset)")
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"ui"},
	Short:   "Follow a list in the terminal",
	Long: `Open the list in a terminal view that loads pages as you scroll and
applies changes as they arrive. The list, filter and archive state are
saved as the context on exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !hasTTY() {
			return &PreflightError{
				Message:  "watch requires an interactive terminal",
				Hint:     "Use list or tail when output is redirected",
				NextStep: "chatsync tail",
			}
		}

		list, err := resolveList()
		if err != nil {
			return err
		}
		filter := resolveWatchFilter(list)

		ctx := cmd.Context()
		local, closeFn, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		store := contextStore()
		saved := loadContext()

		theme := appConfig.TUI.Theme
		if watchTheme != "" {
			theme = watchTheme
		}
		collapsed := appConfig.TUI.CollapseArchive
		if saved.List == string(list) && saved.Collapsed {
			collapsed = true
		}

		// Log lines would tear the alternate screen.
		if logFile == nil {
			logging.Disable()
		}

		result, err := chatui.Run(local, chatui.Config{
			List:           list,
			Filter:         filter,
			BatchSize:      appConfig.Sync.BatchSize,
			LoadMoreSize:   appConfig.Sync.LoadMoreSize,
			Theme:          theme,
			ShowTimestamps: appConfig.TUI.ShowTimestamps,
			Grouping: grouping.Options{
				ArchiveRow: appConfig.TUI.ArchiveRow,
				Collapsed:  collapsed,
			},
		})
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}

		saved.SetList(list)
		saved.SetFilter(filter)
		saved.Collapsed = result.Collapsed
		if err := store.Save(saved); err != nil {
			logger := logging.Component("cli")
			logger.Warn().Err(err).Msg("failed to save context")
		}

		if !IsQuiet() {
			stats := result.Stats
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages, %d changes applied, %d outside the window\n",
				list, stats.Pages, stats.Applied, stats.Ignored)
		}
		return nil
	},
}

func resolveWatchFilter(list models.ListID) models.Filter {
	if saved := loadContext(); saved.List == string(list) {
		return saved.Filter
	}
	return models.Filter{}
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
