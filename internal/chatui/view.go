package chatui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/grouping"
	"github.com/tOgg1/chatsync/internal/models"
)

// listView mirrors the slice from the events it receives. It is only
// touched on the UI goroutine.
type listView struct {
	entries []models.Entry
	state   models.ListState
	events  int64
	lastErr error
	notice  string
}

func (v *listView) apply(e events.Event) {
	v.events++

	switch e.Type {
	case events.EventAdded:
		if e.Index <= len(v.entries) {
			v.entries = slices.Insert(v.entries, e.Index, e.Entry)
		}
	case events.EventRemoved:
		if e.Index < len(v.entries) {
			v.entries = slices.Delete(v.entries, e.Index, e.Index+1)
		}
	case events.EventMoved:
		if e.From < len(v.entries) {
			v.entries = slices.Delete(v.entries, e.From, e.From+1)
			if e.To <= len(v.entries) {
				v.entries = slices.Insert(v.entries, e.To, e.Entry)
			}
		}
	case events.EventChanged:
		if e.Index < len(v.entries) {
			v.entries[e.Index] = e.Entry
		}
	case events.EventStateChanged:
		v.state = e.State
	}
}

func (v *listView) indexOf(id models.ChatID) int {
	for i, e := range v.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// rowMetrics are terminal lines: one per row, one per separator.
var rowMetrics = grouping.Metrics{RowHeight: 1, SeparatorHeight: 1}

func renderRow(p palette, row grouping.Row, selected bool, width int, timestamps bool) string {
	var line string
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Text))

	if row.Kind == grouping.GroupArchiveRow {
		line = fmt.Sprintf("  Archived chats (%d)", row.ArchivedCount)
		if row.ArchivedUnread > 0 {
			line += fmt.Sprintf("  %d unread", row.ArchivedUnread)
		}
		style = style.Foreground(lipgloss.Color(p.TextMuted)).Italic(true)
	} else {
		line = entryLine(row.Entry, timestamps)
		switch {
		case row.Entry.Metadata.Muted:
			style = style.Foreground(lipgloss.Color(p.TextMuted))
		case row.Entry.Metadata.MentionCount > 0:
			style = style.Foreground(lipgloss.Color(p.Warning)).Bold(true)
		case row.Entry.Metadata.UnreadCount > 0:
			style = style.Bold(true)
		}
	}

	line = truncate(line, width)
	if selected {
		style = style.Foreground(lipgloss.Color(p.Focus)).Reverse(true)
	}
	return style.Render(line)
}

func entryLine(e models.Entry, timestamps bool) string {
	var b strings.Builder
	if e.Position.Pinned {
		b.WriteString("* ")
	} else {
		b.WriteString("  ")
	}

	title := e.Metadata.Title
	if title == "" {
		title = fmt.Sprintf("chat %d", e.ID)
	}
	b.WriteString(title)

	if e.Metadata.UnreadCount > 0 {
		fmt.Fprintf(&b, " (%d)", e.Metadata.UnreadCount)
	}
	if e.Metadata.MentionCount > 0 {
		b.WriteString(" @")
	}
	if e.Metadata.HasDraft {
		b.WriteString(" [draft]")
	}
	if e.Metadata.HasScheduled {
		b.WriteString(" [scheduled]")
	}
	if e.Metadata.Muted {
		b.WriteString(" ~")
	}
	if timestamps && !e.Metadata.LastActivity.IsZero() {
		b.WriteString("  " + e.Metadata.LastActivity.Local().Format("Jan 2 15:04"))
	}
	return b.String()
}

func truncate(text string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
