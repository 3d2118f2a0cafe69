package models

import (
	"errors"
	"testing"
)

func TestValidationErrorsIs(t *testing.T) {
	validation := &ValidationErrors{}
	validation.Add("chat_id", ErrInvalidChatID)

	err := validation.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrInvalidChatID) {
		t.Fatalf("expected errors.Is to match ErrInvalidChatID, got %v", err)
	}
}

func TestValidationErrorsEmpty(t *testing.T) {
	validation := &ValidationErrors{}
	if err := validation.Err(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestEntryValidate(t *testing.T) {
	entry := Entry{ID: 0, Position: Position{Order: 0}}
	err := entry.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrInvalidChatID) || !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected both causes, got %v", err)
	}
	if got := err.Error(); got != "id: chat id must be positive; position.order: order 0 is not a list member" {
		t.Fatalf("unexpected message %q", got)
	}

	ok := Entry{ID: 7, Position: Position{Order: 1, TieBreak: 7}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid entry, got %v", err)
	}
}

func TestChangeNotificationValidate(t *testing.T) {
	pos := Position{Order: 10, TieBreak: 1}
	tests := []struct {
		name    string
		n       ChangeNotification
		wantErr error
	}{
		{
			name: "valid added",
			n:    ChangeNotification{List: ListMain, Kind: NotifyAdded, ChatID: 1, Position: &pos},
		},
		{
			name: "valid removed without position",
			n:    ChangeNotification{List: ListMain, Kind: NotifyRemoved, ChatID: 1},
		},
		{
			name:    "moved requires position",
			n:       ChangeNotification{List: ListMain, Kind: NotifyMoved, ChatID: 1},
			wantErr: ErrMissingPosition,
		},
		{
			name:    "missing list",
			n:       ChangeNotification{Kind: NotifyRemoved, ChatID: 1},
			wantErr: ErrInvalidList,
		},
		{
			name:    "unknown kind",
			n:       ChangeNotification{List: ListMain, Kind: "bogus", ChatID: 1},
			wantErr: ErrInvalidKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.n.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestChangeNotificationRemoves(t *testing.T) {
	zero := Position{Order: 0, TieBreak: 3}
	live := Position{Order: 4, TieBreak: 3}
	if !(ChangeNotification{Kind: NotifyRemoved}).Removes() {
		t.Fatal("removed kind should remove")
	}
	if !(ChangeNotification{Kind: NotifyMoved, Position: &zero}).Removes() {
		t.Fatal("order 0 should remove")
	}
	if (ChangeNotification{Kind: NotifyMoved, Position: &live}).Removes() {
		t.Fatal("live position should not remove")
	}
	if (ChangeNotification{Kind: NotifyMetadataChanged}).Removes() {
		t.Fatal("metadata change without position should not remove")
	}
}

func TestChangeNotificationClone(t *testing.T) {
	pos := Position{Order: 5}
	meta := Snapshot{Title: "a"}
	n := ChangeNotification{List: ListMain, Kind: NotifyAdded, ChatID: 1, Position: &pos, Metadata: &meta}
	clone := n.Clone()
	clone.Position.Order = 6
	clone.Metadata.Title = "b"
	if n.Position.Order != 5 || n.Metadata.Title != "a" {
		t.Fatal("clone shares pointers with original")
	}
}
