package store

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/models"
)

func entry(id int64, pinned bool, order uint64) models.Entry {
	return models.Entry{
		ID:       models.ChatID(id),
		Position: models.Position{Pinned: pinned, Order: order, TieBreak: id},
		Metadata: models.Snapshot{Title: "chat"},
	}
}

func ids(s *Store) []models.ChatID {
	out := make([]models.ChatID, 0, s.Len())
	for _, e := range s.Entries() {
		out = append(out, e.ID)
	}
	return out
}

func TestInsertKeepsOrder(t *testing.T) {
	s := New()

	idx, err := s.Insert(entry(1, false, 50))
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	idx, err = s.Insert(entry(2, false, 90))
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	idx, err = s.Insert(entry(3, true, 1))
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	idx, err = s.Insert(entry(4, false, 50))
	require.NoError(t, err)
	require.Equal(t, 3, idx)

	require.Equal(t, []models.ChatID{3, 2, 1, 4}, ids(s))
	require.NoError(t, s.Validate())
}

func TestInsertRejectsInvalidEntries(t *testing.T) {
	s := New()
	_, err := s.Insert(entry(1, false, 10))
	require.NoError(t, err)

	_, err = s.Insert(entry(1, false, 20))
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = s.Insert(entry(2, false, 0))
	require.ErrorIs(t, err, ErrNotMember)

	clash := entry(3, false, 10)
	clash.Position.TieBreak = 1
	_, err = s.Insert(clash)
	require.ErrorIs(t, err, ErrPositionConflict)

	require.Equal(t, 1, s.Len())
	require.NoError(t, s.Validate())
}

func TestRemove(t *testing.T) {
	s := New()
	for i := int64(1); i <= 3; i++ {
		_, err := s.Insert(entry(i, false, uint64(100-i)))
		require.NoError(t, err)
	}

	idx, removed, ok := s.Remove(2)
	require.True(t, ok)
	require.Equal(t, 1, idx)
	require.Equal(t, models.ChatID(2), removed.ID)
	require.Equal(t, []models.ChatID{1, 3}, ids(s))

	_, _, ok = s.Remove(2)
	require.False(t, ok)
	require.False(t, s.Contains(2))
	require.NoError(t, s.Validate())
}

func TestMoveIsSingleOperation(t *testing.T) {
	s := New()
	_, err := s.Insert(entry(1, true, 100))
	require.NoError(t, err)
	_, err = s.Insert(entry(2, false, 90))
	require.NoError(t, err)

	from, to, err := s.Move(2, models.Position{Pinned: true, Order: 110, TieBreak: 2})
	require.NoError(t, err)
	require.Equal(t, 1, from)
	require.Equal(t, 0, to)
	require.Equal(t, []models.ChatID{2, 1}, ids(s))

	got, ok := s.Get(2)
	require.True(t, ok)
	require.True(t, got.Position.Pinned)
	require.NoError(t, s.Validate())
}

func TestMoveFailuresLeaveStoreUntouched(t *testing.T) {
	s := New()
	_, err := s.Insert(entry(1, false, 100))
	require.NoError(t, err)
	_, err = s.Insert(entry(2, false, 90))
	require.NoError(t, err)

	_, _, err = s.Move(2, models.Position{Order: 100, TieBreak: 1})
	require.ErrorIs(t, err, ErrPositionConflict)

	_, _, err = s.Move(2, models.Position{Order: 0, TieBreak: 2})
	require.ErrorIs(t, err, ErrNotMember)

	_, _, err = s.Move(9, models.Position{Order: 5, TieBreak: 9})
	require.Error(t, err)

	require.Equal(t, []models.ChatID{1, 2}, ids(s))
	require.NoError(t, s.Validate())
}

func TestUpdateMetadataReportsChanges(t *testing.T) {
	s := New()
	_, err := s.Insert(entry(1, false, 10))
	require.NoError(t, err)

	next := models.Snapshot{Title: "renamed", UnreadCount: 3}
	idx, changes, ok := s.UpdateMetadata(1, next)
	require.True(t, ok)
	require.Equal(t, 0, idx)
	require.True(t, changes.Has(models.ChangeTitle|models.ChangeUnread))

	_, changes, ok = s.UpdateMetadata(1, next)
	require.True(t, ok)
	require.Equal(t, models.ChangeNone, changes)

	_, _, ok = s.UpdateMetadata(2, next)
	require.False(t, ok)
}

func TestHeadAndTail(t *testing.T) {
	s := New()
	_, ok := s.Tail()
	require.False(t, ok)
	_, ok = s.Head(false)
	require.False(t, ok)

	_, err := s.Insert(entry(1, true, 5))
	require.NoError(t, err)
	_, err = s.Insert(entry(2, false, 40))
	require.NoError(t, err)
	_, err = s.Insert(entry(3, false, 30))
	require.NoError(t, err)

	head, ok := s.Head(true)
	require.True(t, ok)
	require.Equal(t, models.ChatID(1), head.ID)

	head, ok = s.Head(false)
	require.True(t, ok)
	require.Equal(t, models.ChatID(2), head.ID)

	tail, ok := s.Tail()
	require.True(t, ok)
	require.Equal(t, uint64(30), tail.Order)
}

func TestRandomOperationsPreserveInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := New()

	for step := 0; step < 2000; step++ {
		id := int64(rng.Intn(60) + 1)
		pos := models.Position{
			Pinned:   rng.Intn(5) == 0,
			Order:    uint64(rng.Intn(40)),
			TieBreak: id,
		}
		switch rng.Intn(4) {
		case 0:
			_, _ = s.Insert(models.Entry{ID: models.ChatID(id), Position: pos})
		case 1:
			_, _, _ = s.Remove(models.ChatID(id))
		case 2:
			_, _, _ = s.Move(models.ChatID(id), pos)
		case 3:
			_, _, _ = s.UpdateMetadata(models.ChatID(id), models.Snapshot{UnreadCount: rng.Intn(3)})
		}
		require.NoError(t, s.Validate(), "step %d", step)
	}

	entries := s.Entries()
	for i := range entries {
		for j := range entries {
			if i == j {
				continue
			}
			require.NotZero(t, models.ComparePositions(entries[i].Position, entries[j].Position))
		}
		idx, ok := s.IndexOf(entries[i].ID)
		require.True(t, ok)
		require.Equal(t, i, idx)
	}
}
