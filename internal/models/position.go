// Package models defines the core domain types for chatsync.
package models

import "fmt"

// Position is the ordering key of a chat within one list.
type Position struct {
	// Pinned entries sort before every non-pinned entry.
	Pinned bool `json:"pinned"`

	// Order sorts descending within the same pinned-ness. Zero means the
	// chat is not a member of the list.
	Order uint64 `json:"order"`

	// TieBreak sorts ascending when Pinned and Order are equal.
	TieBreak int64 `json:"tie_break"`
}

// IsMember reports whether the position places the chat in its list.
func (p Position) IsMember() bool {
	return p.Order != 0
}

// Before reports whether p sorts strictly before other.
func (p Position) Before(other Position) bool {
	return ComparePositions(p, other) < 0
}

func (p Position) String() string {
	pin := ""
	if p.Pinned {
		pin = "pinned:"
	}
	return fmt.Sprintf("%s%d/%d", pin, p.Order, p.TieBreak)
}

// ComparePositions returns a negative number when a sorts before b, a
// positive number when a sorts after b and zero when they are equal.
func ComparePositions(a, b Position) int {
	if a.Pinned != b.Pinned {
		if a.Pinned {
			return -1
		}
		return 1
	}
	if a.Order != b.Order {
		// Most recent first.
		if a.Order > b.Order {
			return -1
		}
		return 1
	}
	switch {
	case a.TieBreak < b.TieBreak:
		return -1
	case a.TieBreak > b.TieBreak:
		return 1
	default:
		return 0
	}
}
