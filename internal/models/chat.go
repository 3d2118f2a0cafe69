package models

import (
	"strconv"
	"strings"
	"time"
)

// ChatID is the stable, globally unique identifier of a chat.
type ChatID int64

// ListID names a remotely ordered chat list.
type ListID string

const (
	ListMain    ListID = "main"
	ListArchive ListID = "archive"
)

// FolderList returns the list id of a chat folder.
func FolderList(folder int) ListID {
	return ListID("folder:" + strconv.Itoa(folder))
}

// Snapshot holds the chat fields whose change triggers a typed notification.
type Snapshot struct {
	Title        string    `json:"title"`
	LastActivity time.Time `json:"last_activity"`
	UnreadCount  int       `json:"unread_count"`
	MentionCount int       `json:"mention_count"`
	HasDraft     bool      `json:"has_draft"`
	Muted        bool      `json:"muted"`
	HasScheduled bool      `json:"has_scheduled"`
	Tag          string    `json:"tag,omitempty"` // client-opaque

	// Archived and Special drive presentation grouping.
	Archived bool `json:"archived"`
	Special  bool `json:"special"`
}

// ChangeKind is a bitmask describing which Snapshot fields changed.
type ChangeKind uint16

const (
	ChangeTitle ChangeKind = 1 << iota
	ChangeLastActivity
	ChangeUnread
	ChangeMentions
	ChangeDraft
	ChangeMute
	ChangeScheduled
	ChangeTag
	ChangeArchived
	ChangeSpecial

	ChangeNone ChangeKind = 0
)

var changeKindNames = []struct {
	kind ChangeKind
	name string
}{
	{ChangeTitle, "title"},
	{ChangeLastActivity, "last_activity"},
	{ChangeUnread, "unread"},
	{ChangeMentions, "mentions"},
	{ChangeDraft, "draft"},
	{ChangeMute, "mute"},
	{ChangeScheduled, "scheduled"},
	{ChangeTag, "tag"},
	{ChangeArchived, "archived"},
	{ChangeSpecial, "special"},
}

// Has reports whether all bits of other are set.
func (k ChangeKind) Has(other ChangeKind) bool {
	return other != 0 && k&other == other
}

func (k ChangeKind) String() string {
	if k == ChangeNone {
		return "none"
	}
	parts := make([]string, 0, 4)
	for _, item := range changeKindNames {
		if k&item.kind != 0 {
			parts = append(parts, item.name)
		}
	}
	return strings.Join(parts, "|")
}

// Diff returns the fields that differ between s and next.
func (s Snapshot) Diff(next Snapshot) ChangeKind {
	var kind ChangeKind
	if s.Title != next.Title {
		kind |= ChangeTitle
	}
	if !s.LastActivity.Equal(next.LastActivity) {
		kind |= ChangeLastActivity
	}
	if s.UnreadCount != next.UnreadCount {
		kind |= ChangeUnread
	}
	if s.MentionCount != next.MentionCount {
		kind |= ChangeMentions
	}
	if s.HasDraft != next.HasDraft {
		kind |= ChangeDraft
	}
	if s.Muted != next.Muted {
		kind |= ChangeMute
	}
	if s.HasScheduled != next.HasScheduled {
		kind |= ChangeScheduled
	}
	if s.Tag != next.Tag {
		kind |= ChangeTag
	}
	if s.Archived != next.Archived {
		kind |= ChangeArchived
	}
	if s.Special != next.Special {
		kind |= ChangeSpecial
	}
	return kind
}

// Entry is one chat as materialized in a list.
type Entry struct {
	ID       ChatID   `json:"id"`
	Position Position `json:"position"`
	Metadata Snapshot `json:"metadata"`
}

// PinnedOrSpecial reports whether the entry belongs to the top block.
func (e Entry) PinnedOrSpecial() bool {
	return e.Position.Pinned || e.Metadata.Special
}

// Filter narrows a list to the chats matching every set criterion.
type Filter struct {
	Query        string `json:"query,omitempty" yaml:"query,omitempty"`
	UnreadOnly   bool   `json:"unread_only,omitempty" yaml:"unread_only,omitempty"`
	MutedOnly    bool   `json:"muted_only,omitempty" yaml:"muted_only,omitempty"`
	MentionsOnly bool   `json:"mentions_only,omitempty" yaml:"mentions_only,omitempty"`
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.Query) == "" && !f.UnreadOnly && !f.MutedOnly && !f.MentionsOnly
}

// Matches reports whether a snapshot passes the filter.
func (f Filter) Matches(s Snapshot) bool {
	if f.UnreadOnly && s.UnreadCount == 0 {
		return false
	}
	if f.MutedOnly && !s.Muted {
		return false
	}
	if f.MentionsOnly && s.MentionCount == 0 {
		return false
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))
	if query != "" && !strings.Contains(strings.ToLower(s.Title), query) {
		return false
	}
	return true
}

// ListState is the pagination state of a slice.
type ListState int

const (
	StateUnstarted ListState = iota
	StateLoading
	StateEndNotReached
	StateEndReached
	StateUnsubscribed
)

func (s ListState) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateLoading:
		return "loading"
	case StateEndNotReached:
		return "end_not_reached"
	case StateEndReached:
		return "end_reached"
	case StateUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}
