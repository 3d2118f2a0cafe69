package cli

import (
	"fmt"
	"io"

	"github.com/tOgg1/chatsync/internal/models"
)

// HintContext provides context for generating relevant next steps.
type HintContext struct {
	// Action is the command that was executed (e.g., "seed", "put").
	Action string

	List   models.ListID
	ChatID models.ChatID
}

// PrintNextSteps prints contextual next steps after a successful command.
// Does nothing for JSON output or --quiet.
func PrintNextSteps(out io.Writer, ctx HintContext) {
	if IsJSONOutput() || IsJSONLOutput() || IsQuiet() {
		return
	}

	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(out, "  %s\n", hint)
	}
}

func generateHints(ctx HintContext) []string {
	list := string(ctx.List)
	switch ctx.Action {
	case "seed":
		return []string{
			fmt.Sprintf("chatsync list --list %s      # page through the list", list),
			fmt.Sprintf("chatsync watch --list %s     # follow it live", list),
		}
	case "put":
		return []string{
			fmt.Sprintf("chatsync chat add %d --list %s   # place the chat in a list", ctx.ChatID, list),
		}
	case "remove":
		return []string{
			fmt.Sprintf("chatsync history --chat %d       # see what changed", ctx.ChatID),
		}
	default:
		return nil
	}
}
