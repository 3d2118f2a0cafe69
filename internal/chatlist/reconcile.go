package chatlist

import (
	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/models"
)

// target is the final known state of one chat after coalescing.
type target struct {
	id      models.ChatID
	removed bool
	pos     *models.Position
	meta    *models.Snapshot
}

func notificationTarget(n models.ChangeNotification) target {
	t := target{id: n.ChatID, meta: n.Metadata}
	if n.Removes() {
		t.removed = true
	} else {
		t.pos = n.Position
	}
	return t
}

func entryTarget(e models.Entry) target {
	pos := e.Position
	meta := e.Metadata
	if !pos.IsMember() {
		return target{id: e.ID, removed: true, meta: &meta}
	}
	return target{id: e.ID, pos: &pos, meta: &meta}
}

// merge folds a later state into t. A nil position keeps the previous one
// and a nil snapshot keeps the latest non-nil snapshot.
func (t *target) merge(next target) {
	switch {
	case next.removed:
		t.removed = true
		t.pos = nil
	case next.pos != nil:
		t.removed = false
		t.pos = next.pos
	}
	if next.meta != nil {
		t.meta = next.meta
	}
}

// targetSet keeps one target per chat in first-arrival order.
type targetSet struct {
	order []models.ChatID
	byID  map[models.ChatID]*target
}

func newTargetSet() *targetSet {
	return &targetSet{byID: make(map[models.ChatID]*target)}
}

func (s *targetSet) add(t target) {
	if cur, ok := s.byID[t.id]; ok {
		cur.merge(t)
		return
	}
	stored := t
	s.byID[t.id] = &stored
	s.order = append(s.order, t.id)
}

func (s *targetSet) get(id models.ChatID) (target, bool) {
	t, ok := s.byID[id]
	if !ok {
		return target{}, false
	}
	return *t, true
}

func (s *targetSet) len() int {
	return len(s.order)
}

func (s *targetSet) list() []target {
	out := make([]target, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

func coalesce(batch []models.ChangeNotification) *targetSet {
	set := newTargetSet()
	for _, n := range batch {
		set.add(notificationTarget(n))
	}
	return set
}

type outcome int

const (
	outcomeNoop outcome = iota
	outcomeApplied
	outcomeIgnored
	outcomeViolation
)

// inWindowLocked reports whether pos falls inside the loaded window.
func (c *Controller) inWindowLocked(pos models.Position) bool {
	if c.endReached {
		return true
	}
	if c.cursor == nil {
		return false
	}
	return models.ComparePositions(pos, *c.cursor) <= 0
}

// applyLocked reconciles t against the store, appends the resulting
// events to out and counts the outcome.
func (c *Controller) applyLocked(t target, out *[]events.Event) outcome {
	result, err := c.tryApplyLocked(t, out)
	c.countLocked(t, result, err)
	return result
}

// tryApplyLocked is applyLocked without the counters. A violation leaves
// the store untouched.
func (c *Controller) tryApplyLocked(t target, out *[]events.Event) (outcome, error) {
	evts, result, err := c.reconcileLocked(t)
	if result == outcomeApplied {
		*out = append(*out, evts...)
	}
	return result, err
}

func (c *Controller) countLocked(t target, result outcome, err error) {
	switch result {
	case outcomeApplied:
		c.stats.Applied++
	case outcomeIgnored:
		c.stats.Ignored++
	case outcomeViolation:
		c.stats.Violations++
		pos := models.Position{}
		if t.pos != nil {
			pos = *t.pos
		}
		c.violation(t.id, pos, err)
	}
}

func (c *Controller) reconcileLocked(t target) ([]events.Event, outcome, error) {
	current, present := c.store.Get(t.id)

	if t.removed {
		if !present {
			return nil, outcomeNoop, nil
		}
		index, entry, _ := c.store.Remove(t.id)
		return []events.Event{events.Removed(index, entry)}, outcomeApplied, nil
	}

	var pos models.Position
	switch {
	case t.pos != nil:
		pos = *t.pos
	case present:
		pos = current.Position
	default:
		// Metadata for a chat outside the slice.
		return nil, outcomeIgnored, nil
	}
	meta := current.Metadata
	if t.meta != nil {
		meta = *t.meta
	}

	if !present {
		if !c.inWindowLocked(pos) {
			return nil, outcomeIgnored, nil
		}
		entry := models.Entry{ID: t.id, Position: pos, Metadata: meta}
		index, err := c.store.Insert(entry)
		if err != nil {
			return nil, outcomeViolation, err
		}
		return []events.Event{events.Added(index, entry)}, outcomeApplied, nil
	}

	var out []events.Event
	index, _ := c.store.IndexOf(t.id)
	if pos != current.Position {
		if !c.inWindowLocked(pos) {
			removedAt, entry, _ := c.store.Remove(t.id)
			return []events.Event{events.Removed(removedAt, entry)}, outcomeApplied, nil
		}
		from, to, err := c.store.Move(t.id, pos)
		if err != nil {
			return nil, outcomeViolation, err
		}
		moved, _ := c.store.At(to)
		out = append(out, events.Moved(from, to, moved))
		index = to
	}
	if t.meta != nil {
		if _, changes, _ := c.store.UpdateMetadata(t.id, meta); changes != models.ChangeNone {
			updated, _ := c.store.At(index)
			out = append(out, events.Changed(index, updated, changes))
		}
	}
	if len(out) == 0 {
		return nil, outcomeNoop, nil
	}
	return out, outcomeApplied, nil
}

func (c *Controller) violation(id models.ChatID, pos models.Position, err error) {
	c.logger.Error().
		Err(err).
		Int64("chat_id", int64(id)).
		Str("position", pos.String()).
		Msg("dropping change that breaks list order")
}
