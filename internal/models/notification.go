package models

import (
	"errors"
	"fmt"
)

// NotificationKind is the cause reported by the backend for a change.
type NotificationKind string

const (
	NotifyAdded           NotificationKind = "added"
	NotifyRemoved         NotificationKind = "removed"
	NotifyMoved           NotificationKind = "moved"
	NotifyMetadataChanged NotificationKind = "metadata_changed"
)

// Notification validation errors.
var (
	ErrInvalidList     = errors.New("list id is required")
	ErrInvalidChatID   = errors.New("chat id must be positive")
	ErrInvalidKind     = errors.New("unknown notification kind")
	ErrMissingPosition = errors.New("position is required")
)

// ChangeNotification is one raw change observed on a backend list.
//
// Position is nil when the backend did not report one: the chat keeps its
// current position unless Kind is NotifyRemoved. Metadata is nil when the
// snapshot did not change.
type ChangeNotification struct {
	List     ListID           `json:"list"`
	Kind     NotificationKind `json:"kind"`
	ChatID   ChatID           `json:"chat_id"`
	Position *Position        `json:"position,omitempty"`
	Metadata *Snapshot        `json:"metadata,omitempty"`
}

// Removes reports whether the notification takes the chat out of its list.
func (n ChangeNotification) Removes() bool {
	if n.Kind == NotifyRemoved {
		return true
	}
	return n.Position != nil && !n.Position.IsMember()
}

// Validate checks the notification shape.
func (n ChangeNotification) Validate() error {
	validation := &ValidationErrors{}
	if n.List == "" {
		validation.Add("list", ErrInvalidList)
	}
	if n.ChatID <= 0 {
		validation.Add("chat_id", ErrInvalidChatID)
	}
	switch n.Kind {
	case NotifyRemoved, NotifyMetadataChanged:
	case NotifyAdded, NotifyMoved:
		if n.Position == nil {
			validation.Add("position", ErrMissingPosition)
		}
	default:
		validation.Add("kind", fmt.Errorf("%w: %q", ErrInvalidKind, n.Kind))
	}
	return validation.Err()
}

// Clone returns a deep copy of the notification.
func (n ChangeNotification) Clone() ChangeNotification {
	out := n
	if n.Position != nil {
		pos := *n.Position
		out.Position = &pos
	}
	if n.Metadata != nil {
		meta := *n.Metadata
		out.Metadata = &meta
	}
	return out
}

// EntryNotification builds a notification carrying the full state of entry.
func EntryNotification(list ListID, kind NotificationKind, entry Entry) ChangeNotification {
	pos := entry.Position
	meta := entry.Metadata
	return ChangeNotification{
		List:     list,
		Kind:     kind,
		ChatID:   entry.ID,
		Position: &pos,
		Metadata: &meta,
	}
}
