// Package events delivers slice diffs to presentation subscribers.
package events

import (
	"fmt"

	"github.com/tOgg1/chatsync/internal/models"
)

// EventType tags the variant carried by an Event.
type EventType string

const (
	EventAdded        EventType = "added"
	EventRemoved      EventType = "removed"
	EventMoved        EventType = "moved"
	EventChanged      EventType = "changed"
	EventStateChanged EventType = "state_changed"
)

// Event is one operation applied to a slice, or a list state transition.
//
// Field use per type:
//
//	Added:        Index, Entry
//	Removed:      Index, Entry (as it was before removal)
//	Moved:        From, To, Entry (at its new position)
//	Changed:      Index, Entry, Changes
//	StateChanged: State, PrevState
type Event struct {
	Type EventType
	List models.ListID

	// Seq increases by one for every event published by the same slice.
	Seq uint64

	Index   int
	From    int
	To      int
	Entry   models.Entry
	Changes models.ChangeKind

	State     models.ListState
	PrevState models.ListState
}

func (e Event) String() string {
	switch e.Type {
	case EventAdded, EventRemoved:
		return fmt.Sprintf("%s(%d, chat %d)", e.Type, e.Index, e.Entry.ID)
	case EventMoved:
		return fmt.Sprintf("moved(%d→%d, chat %d)", e.From, e.To, e.Entry.ID)
	case EventChanged:
		return fmt.Sprintf("changed(%d, chat %d, %s)", e.Index, e.Entry.ID, e.Changes)
	case EventStateChanged:
		return fmt.Sprintf("state(%s→%s)", e.PrevState, e.State)
	default:
		return string(e.Type)
	}
}

// Added builds an Added event.
func Added(index int, entry models.Entry) Event {
	return Event{Type: EventAdded, Index: index, Entry: entry}
}

// Removed builds a Removed event.
func Removed(index int, entry models.Entry) Event {
	return Event{Type: EventRemoved, Index: index, Entry: entry}
}

// Moved builds a Moved event.
func Moved(from, to int, entry models.Entry) Event {
	return Event{Type: EventMoved, From: from, To: to, Index: to, Entry: entry}
}

// Changed builds a Changed event.
func Changed(index int, entry models.Entry, changes models.ChangeKind) Event {
	return Event{Type: EventChanged, Index: index, Entry: entry, Changes: changes}
}

// StateChanged builds a StateChanged event.
func StateChanged(state, prev models.ListState) Event {
	return Event{Type: EventStateChanged, State: state, PrevState: prev}
}

// Handler receives events.
type Handler func(event Event)

// Callbacks adapts the tagged Event to per-operation callbacks. Nil
// callbacks are skipped.
type Callbacks struct {
	OnAdded            func(index int, entry models.Entry)
	OnRemoved          func(index int, entry models.Entry)
	OnMoved            func(from, to int, entry models.Entry)
	OnChanged          func(index int, entry models.Entry, changes models.ChangeKind)
	OnListStateChanged func(state, prev models.ListState)
}

// Handle dispatches event to the matching callback.
func (c Callbacks) Handle(event Event) {
	switch event.Type {
	case EventAdded:
		if c.OnAdded != nil {
			c.OnAdded(event.Index, event.Entry)
		}
	case EventRemoved:
		if c.OnRemoved != nil {
			c.OnRemoved(event.Index, event.Entry)
		}
	case EventMoved:
		if c.OnMoved != nil {
			c.OnMoved(event.From, event.To, event.Entry)
		}
	case EventChanged:
		if c.OnChanged != nil {
			c.OnChanged(event.Index, event.Entry, event.Changes)
		}
	case EventStateChanged:
		if c.OnListStateChanged != nil {
			c.OnListStateChanged(event.State, event.PrevState)
		}
	}
}

// Handler returns c.Handle as a Handler.
func (c Callbacks) Handler() Handler {
	return c.Handle
}
