// Package grouping derives presentation rows (pinned block, archive,
// separators) from an ordered slice of entries.
package grouping

import "github.com/tOgg1/chatsync/internal/models"

// Kind identifies which block a row belongs to.
type Kind int

const (
	GroupPinned Kind = iota
	GroupMain
	GroupArchive
	GroupArchiveRow // synthetic row standing for the archive
)

func (k Kind) String() string {
	switch k {
	case GroupPinned:
		return "pinned"
	case GroupMain:
		return "main"
	case GroupArchive:
		return "archive"
	case GroupArchiveRow:
		return "archive_row"
	default:
		return "unknown"
	}
}

// Options controls how archived chats are shown.
type Options struct {
	// ArchiveRow inserts one synthetic row where the first archived chat
	// sits.
	ArchiveRow bool

	// Collapsed folds every archived chat into the synthetic row.
	// It implies ArchiveRow.
	Collapsed bool
}

// Row is one presentation row.
type Row struct {
	Entry models.Entry // zero for the synthetic archive row
	Kind  Kind

	// Boundary is set when a separator is drawn above the row.
	Boundary bool

	// Set on the synthetic archive row only.
	ArchivedCount  int
	ArchivedUnread int
}

func (r Row) archived() bool {
	return r.Kind == GroupArchive || r.Kind == GroupArchiveRow
}

func (r Row) pinnedOrSpecial() bool {
	return r.Kind != GroupArchiveRow && r.Entry.PinnedOrSpecial()
}

func kindOf(e models.Entry) Kind {
	switch {
	case e.Metadata.Archived:
		return GroupArchive
	case e.PinnedOrSpecial():
		return GroupPinned
	default:
		return GroupMain
	}
}

// Derive maps ordered entries to rows. It does not reorder entries.
func Derive(entries []models.Entry, opts Options) []Row {
	showArchiveRow := opts.ArchiveRow || opts.Collapsed

	var archivedCount, archivedUnread int
	for _, e := range entries {
		if e.Metadata.Archived {
			archivedCount++
			if e.Metadata.UnreadCount > 0 {
				archivedUnread++
			}
		}
	}

	rows := make([]Row, 0, len(entries)+1)
	placed := false
	for _, e := range entries {
		if e.Metadata.Archived && showArchiveRow && !placed {
			rows = append(rows, Row{
				Kind:           GroupArchiveRow,
				ArchivedCount:  archivedCount,
				ArchivedUnread: archivedUnread,
			})
			placed = true
		}
		if e.Metadata.Archived && opts.Collapsed {
			continue
		}
		rows = append(rows, Row{Entry: e, Kind: kindOf(e)})
	}

	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		rows[i].Boundary = prev.archived() != cur.archived() ||
			prev.pinnedOrSpecial() != cur.pinnedOrSpecial()
	}
	return rows
}

// RowIndex returns the row showing id. Chats folded into a collapsed
// archive have no row of their own.
func RowIndex(rows []Row, id models.ChatID) (int, bool) {
	for i, row := range rows {
		if row.Kind != GroupArchiveRow && row.Entry.ID == id {
			return i, true
		}
	}
	return -1, false
}

// ArchiveRowIndex returns the index of the synthetic archive row.
func ArchiveRowIndex(rows []Row) (int, bool) {
	for i, row := range rows {
		if row.Kind == GroupArchiveRow {
			return i, true
		}
	}
	return -1, false
}

// Metrics are the heights used to compute scroll offsets.
type Metrics struct {
	RowHeight       int
	SeparatorHeight int
}

// Offset returns the vertical offset of the top of rows[index].
// Indexes past the end return the total height.
func Offset(rows []Row, index int, m Metrics) int {
	if index <= 0 {
		return 0
	}
	if index > len(rows) {
		index = len(rows)
	}
	offset := index * m.RowHeight
	for i := 1; i < index; i++ {
		if rows[i].Boundary {
			offset += m.SeparatorHeight
		}
	}
	if index < len(rows) && rows[index].Boundary {
		offset += m.SeparatorHeight
	}
	return offset
}

// Height returns the total height of rows.
func Height(rows []Row, m Metrics) int {
	return Offset(rows, len(rows), m)
}
