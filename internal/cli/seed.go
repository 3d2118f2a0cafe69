package cli

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/models"
)

var (
	seedCount    int
	seedPinned   int
	seedArchived int
	seedStartID  int64
	seedRandSeed int64
)

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 50, "number of chats to create")
	seedCmd.Flags().IntVar(&seedPinned, "pinned", 2, "number of pinned chats")
	seedCmd.Flags().IntVar(&seedArchived, "archived", 0, "number of archived chats at the bottom")
	seedCmd.Flags().Int64Var(&seedStartID, "start-id", 1, "id of the first chat")
	seedCmd.Flags().Int64Var(&seedRandSeed, "seed", 1, "random seed for titles and counters")
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill a list with sample chats",
	Long: `Create sample chats and place them in a list. The first --pinned chats
are pinned and the last --archived chats are archived. Existing chats with
the same ids are overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedCount <= 0 {
			return fmt.Errorf("--count must be positive")
		}
		if seedStartID <= 0 {
			return models.ErrInvalidChatID
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

		chats := sampleChats(seedCount, seedPinned, seedArchived, seedStartID, rand.New(rand.NewSource(seedRandSeed)))
		for _, chat := range chats {
			if err := local.PutChat(ctx, chat.ID, chat.Metadata); err != nil {
				return fmt.Errorf("failed to store chat %d: %w", chat.ID, err)
			}
			if err := local.SetPosition(ctx, list, chat.ID, chat.Position); err != nil {
				return fmt.Errorf("failed to place chat %d: %w", chat.ID, err)
			}
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), chats)
		}
		if !IsQuiet() {
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d chats into %s\n", len(chats), list)
		}
		PrintNextSteps(cmd.OutOrStdout(), HintContext{Action: "seed", List: list})
		return nil
	},
}

var sampleTitles = []string{
	"Family", "Book club", "Release planning", "Climbing", "Landlord",
	"Design review", "Weekend trip", "On-call", "Neighbours", "Chess",
}

// sampleChats builds count entries in list order. Orders descend from
// count*10 so they sort as generated.
func sampleChats(count, pinned, archived int, startID int64, rng *rand.Rand) []models.Entry {
	now := time.Now().UTC().Truncate(time.Second)
	out := make([]models.Entry, 0, count)
	for i := 0; i < count; i++ {
		id := startID + int64(i)
		snap := models.Snapshot{
			Title:        fmt.Sprintf("%s %d", sampleTitles[rng.Intn(len(sampleTitles))], id),
			LastActivity: now.Add(-time.Duration(i) * time.Minute),
			Archived:     i >= count-archived,
		}
		if rng.Intn(3) == 0 {
			snap.UnreadCount = 1 + rng.Intn(20)
			if rng.Intn(4) == 0 {
				snap.MentionCount = 1
			}
		}
		snap.Muted = rng.Intn(8) == 0
		snap.HasDraft = rng.Intn(10) == 0

		out = append(out, models.Entry{
			ID: models.ChatID(id),
			Position: models.Position{
				Pinned:   i < pinned,
				Order:    uint64(count-i) * 10,
				TieBreak: id,
			},
			Metadata: snap,
		})
	}
	return out
}
