// Package store holds the materialized, ordered chat sequence of one slice.
package store

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tOgg1/chatsync/internal/models"
)

// Store errors.
var (
	ErrDuplicateID      = errors.New("chat already in store")
	ErrNotMember        = errors.New("position is not a list member")
	ErrPositionConflict = errors.New("position already taken by another chat")
	ErrUnordered        = errors.New("entries out of order")
)

// Store is an ordered sequence of entries keyed by chat id.
//
// Entries are kept strictly ascending by Position. Lookups are binary
// searches driven by the id → position index; inserts and removals shift
// the backing slice. A Store is not safe for concurrent use: it belongs to
// exactly one owner.
type Store struct {
	entries   []models.Entry
	positions map[models.ChatID]models.Position
}

// New creates an empty store.
func New() *Store {
	return &Store{
		positions: make(map[models.ChatID]models.Position),
	}
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// At returns the entry at index.
func (s *Store) At(index int) (models.Entry, bool) {
	if index < 0 || index >= len(s.entries) {
		return models.Entry{}, false
	}
	return s.entries[index], true
}

// Get returns the entry with the given id.
func (s *Store) Get(id models.ChatID) (models.Entry, bool) {
	index, ok := s.IndexOf(id)
	if !ok {
		return models.Entry{}, false
	}
	return s.entries[index], true
}

// Contains reports whether id is stored.
func (s *Store) Contains(id models.ChatID) bool {
	_, ok := s.positions[id]
	return ok
}

// IndexOf returns the index of id.
func (s *Store) IndexOf(id models.ChatID) (int, bool) {
	pos, ok := s.positions[id]
	if !ok {
		return -1, false
	}
	index := s.search(pos)
	if index >= len(s.entries) || s.entries[index].ID != id {
		return -1, false
	}
	return index, true
}

// Tail returns the position of the last entry.
func (s *Store) Tail() (models.Position, bool) {
	if len(s.entries) == 0 {
		return models.Position{}, false
	}
	return s.entries[len(s.entries)-1].Position, true
}

// Head returns the first entry whose pinned flag matches pinned.
func (s *Store) Head(pinned bool) (models.Entry, bool) {
	index := 0
	if !pinned {
		index = s.search(models.Position{Order: math.MaxUint64, TieBreak: math.MinInt64})
	}
	if index >= len(s.entries) || s.entries[index].Position.Pinned != pinned {
		return models.Entry{}, false
	}
	return s.entries[index], true
}

// Entries returns a copy of the ordered entries.
func (s *Store) Entries() []models.Entry {
	out := make([]models.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Conflict returns the id of another entry occupying pos, if any.
func (s *Store) Conflict(id models.ChatID, pos models.Position) (models.ChatID, bool) {
	index := s.search(pos)
	if index >= len(s.entries) {
		return 0, false
	}
	other := s.entries[index]
	if other.ID != id && models.ComparePositions(other.Position, pos) == 0 {
		return other.ID, true
	}
	return 0, false
}

// Insert adds a new entry and returns its index.
func (s *Store) Insert(entry models.Entry) (int, error) {
	if !entry.Position.IsMember() {
		return -1, fmt.Errorf("insert chat %d: %w", entry.ID, ErrNotMember)
	}
	if s.Contains(entry.ID) {
		return -1, fmt.Errorf("insert chat %d: %w", entry.ID, ErrDuplicateID)
	}
	if other, ok := s.Conflict(entry.ID, entry.Position); ok {
		return -1, fmt.Errorf("insert chat %d at %s (held by %d): %w", entry.ID, entry.Position, other, ErrPositionConflict)
	}

	index := s.search(entry.Position)
	s.insertAt(index, entry)
	s.positions[entry.ID] = entry.Position
	return index, nil
}

// Remove deletes id and returns its former index and entry.
func (s *Store) Remove(id models.ChatID) (int, models.Entry, bool) {
	index, ok := s.IndexOf(id)
	if !ok {
		return -1, models.Entry{}, false
	}
	entry := s.entries[index]
	s.removeAt(index)
	delete(s.positions, id)
	return index, entry, true
}

// Move repositions id as one logical operation and returns the index it
// left and the index it now occupies. A move to a non-member or occupied
// position fails without mutating the store.
func (s *Store) Move(id models.ChatID, pos models.Position) (from, to int, err error) {
	from, ok := s.IndexOf(id)
	if !ok {
		return -1, -1, fmt.Errorf("move chat %d: not found", id)
	}
	if !pos.IsMember() {
		return -1, -1, fmt.Errorf("move chat %d: %w", id, ErrNotMember)
	}
	if other, ok := s.Conflict(id, pos); ok {
		return -1, -1, fmt.Errorf("move chat %d to %s (held by %d): %w", id, pos, other, ErrPositionConflict)
	}

	entry := s.entries[from]
	s.removeAt(from)
	entry.Position = pos
	to = s.search(pos)
	s.insertAt(to, entry)
	s.positions[id] = pos
	return from, to, nil
}

// UpdateMetadata replaces the snapshot of id and reports what changed.
func (s *Store) UpdateMetadata(id models.ChatID, snapshot models.Snapshot) (int, models.ChangeKind, bool) {
	index, ok := s.IndexOf(id)
	if !ok {
		return -1, models.ChangeNone, false
	}
	changes := s.entries[index].Metadata.Diff(snapshot)
	if changes != models.ChangeNone {
		s.entries[index].Metadata = snapshot
	}
	return index, changes, true
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.entries = nil
	s.positions = make(map[models.ChatID]models.Position)
}

// Validate checks the ordering and index invariants.
func (s *Store) Validate() error {
	if len(s.entries) != len(s.positions) {
		return fmt.Errorf("index holds %d ids for %d entries", len(s.positions), len(s.entries))
	}
	for i, entry := range s.entries {
		if !entry.Position.IsMember() {
			return fmt.Errorf("entry %d (chat %d): %w", i, entry.ID, ErrNotMember)
		}
		if pos, ok := s.positions[entry.ID]; !ok || pos != entry.Position {
			return fmt.Errorf("entry %d (chat %d): stale index", i, entry.ID)
		}
		if i > 0 && !s.entries[i-1].Position.Before(entry.Position) {
			return fmt.Errorf("entries %d and %d: %w", i-1, i, ErrUnordered)
		}
	}
	return nil
}

// search returns the first index whose position does not sort before pos.
func (s *Store) search(pos models.Position) int {
	return sort.Search(len(s.entries), func(i int) bool {
		return !s.entries[i].Position.Before(pos)
	})
}

func (s *Store) insertAt(index int, entry models.Entry) {
	s.entries = append(s.entries, models.Entry{})
	copy(s.entries[index+1:], s.entries[index:])
	s.entries[index] = entry
}

func (s *Store) removeAt(index int) {
	copy(s.entries[index:], s.entries[index+1:])
	s.entries[len(s.entries)-1] = models.Entry{}
	s.entries = s.entries[:len(s.entries)-1]
}
