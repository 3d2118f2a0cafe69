package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/serial"
)

func testEntry(id int64) models.Entry {
	return models.Entry{
		ID:       models.ChatID(id),
		Position: models.Position{Order: uint64(100 - id), TieBreak: id},
	}
}

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		filter *Filter
		event  Event
		want   bool
	}{
		{
			name:   "nil filter matches any event",
			filter: nil,
			event:  Added(0, testEntry(1)),
			want:   true,
		},
		{
			name:   "empty filter matches any event",
			filter: &Filter{},
			event:  StateChanged(models.StateLoading, models.StateUnstarted),
			want:   true,
		},
		{
			name:   "type filter matches",
			filter: &Filter{EventTypes: []EventType{EventMoved}},
			event:  Moved(3, 0, testEntry(1)),
			want:   true,
		},
		{
			name:   "type filter rejects non-matching",
			filter: &Filter{EventTypes: []EventType{EventMoved}},
			event:  Removed(0, testEntry(1)),
			want:   false,
		},
		{
			name:   "multiple types match any",
			filter: &Filter{EventTypes: []EventType{EventAdded, EventRemoved}},
			event:  Removed(0, testEntry(1)),
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.event); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatcher_SubscribeErrors(t *testing.T) {
	d := NewDispatcher(nil)
	noop := func(Event) {}

	require.ErrorIs(t, d.Subscribe("", Filter{}, noop), ErrInvalidSubscriptionID)
	require.ErrorIs(t, d.Subscribe("a", Filter{}, nil), ErrNilHandler)
	require.NoError(t, d.Subscribe("a", Filter{}, noop))
	require.ErrorIs(t, d.Subscribe("a", Filter{}, noop), ErrSubscriptionExists)
	require.Equal(t, 1, d.SubscriberCount())

	require.ErrorIs(t, d.Unsubscribe("missing"), ErrSubscriptionNotFound)
	require.NoError(t, d.Unsubscribe("a"))
	require.Equal(t, 0, d.SubscriberCount())
}

func TestDispatcher_RegistrationAndPublishOrder(t *testing.T) {
	d := NewDispatcher(nil, WithList(models.ListMain))

	var got []string
	record := func(name string) Handler {
		return func(e Event) {
			got = append(got, name+":"+e.String())
		}
	}
	require.NoError(t, d.Subscribe("second", Filter{}, record("b")))
	require.NoError(t, d.Subscribe("first", Filter{}, record("a")))

	d.Publish(Added(0, testEntry(1)), Moved(1, 0, testEntry(2)))
	d.Publish(StateChanged(models.StateEndReached, models.StateLoading))

	require.Equal(t, []string{
		"b:added(0, chat 1)",
		"a:added(0, chat 1)",
		"b:moved(1→0, chat 2)",
		"a:moved(1→0, chat 2)",
		"b:state(loading→end_reached)",
		"a:state(loading→end_reached)",
	}, got)
}

func TestDispatcher_SequenceAndList(t *testing.T) {
	d := NewDispatcher(nil, WithList(models.ListArchive))

	var seen []Event
	require.NoError(t, d.Subscribe("s", Filter{}, func(e Event) { seen = append(seen, e) }))

	d.Publish(Added(0, testEntry(1)))
	d.Publish(Removed(0, testEntry(1)), Added(0, testEntry(2)))

	require.Len(t, seen, 3)
	for i, e := range seen {
		require.Equal(t, uint64(i+1), e.Seq)
		require.Equal(t, models.ListArchive, e.List)
	}
}

func TestDispatcher_FilterByType(t *testing.T) {
	d := NewDispatcher(nil)

	var states []models.ListState
	require.NoError(t, d.Subscribe("states", Filter{EventTypes: []EventType{EventStateChanged}}, func(e Event) {
		states = append(states, e.State)
	}))

	d.Publish(
		Added(0, testEntry(1)),
		StateChanged(models.StateEndNotReached, models.StateLoading),
		Changed(0, testEntry(1), models.ChangeUnread),
	)
	require.Equal(t, []models.ListState{models.StateEndNotReached}, states)
}

func TestDispatcher_MarshalsOntoExecutor(t *testing.T) {
	exec := &serial.Manual{}
	d := NewDispatcher(exec)

	var got []EventType
	require.NoError(t, d.Subscribe("s", Filter{}, func(e Event) { got = append(got, e.Type) }))

	require.True(t, d.Publish(Added(0, testEntry(1))))
	done := false
	require.True(t, d.Post(func() { done = true }))

	require.Empty(t, got)
	require.False(t, done)
	require.Equal(t, 2, exec.Pending())

	exec.Run()
	require.Equal(t, []EventType{EventAdded}, got)
	require.True(t, done)
}

func TestDispatcher_UnsubscribeSkipsQueuedBatches(t *testing.T) {
	exec := &serial.Manual{}
	d := NewDispatcher(exec)

	var a, b int
	require.NoError(t, d.Subscribe("a", Filter{}, func(Event) { a++ }))
	require.NoError(t, d.Subscribe("b", Filter{}, func(Event) { b++ }))

	d.Publish(Added(0, testEntry(1)))
	require.NoError(t, d.Unsubscribe("a"))
	exec.Run()

	require.Equal(t, 0, a)
	require.Equal(t, 1, b)
}

func TestDispatcher_SubscriberAddedAfterPublishMissesBatch(t *testing.T) {
	exec := &serial.Manual{}
	d := NewDispatcher(exec)

	var early, late int
	require.NoError(t, d.Subscribe("early", Filter{}, func(Event) { early++ }))
	d.Publish(Added(0, testEntry(1)))
	require.NoError(t, d.Subscribe("late", Filter{}, func(Event) { late++ }))
	exec.Run()

	require.Equal(t, 1, early)
	require.Equal(t, 0, late)
}

func TestDispatcher_CloseStopsQueuedDelivery(t *testing.T) {
	exec := &serial.Manual{}
	d := NewDispatcher(exec)

	var calls int
	require.NoError(t, d.Subscribe("s", Filter{}, func(Event) { calls++ }))

	d.Publish(Added(0, testEntry(1)))
	ran := false
	d.Post(func() { ran = true })

	d.Close()
	d.Close()
	require.True(t, d.Closed())
	require.False(t, d.Publish(Added(0, testEntry(2))))
	require.False(t, d.Post(func() {}))

	exec.Run()
	require.Equal(t, 0, calls)
	require.False(t, ran)
	require.Equal(t, 0, d.SubscriberCount())

	_, dropped := d.Stats()
	require.Equal(t, int64(2), dropped)
}

func TestDispatcher_CloseFromHandlerStopsRestOfBatch(t *testing.T) {
	d := NewDispatcher(nil)

	var calls int
	require.NoError(t, d.Subscribe("s", Filter{}, func(Event) {
		calls++
		d.Close()
	}))

	d.Publish(Added(0, testEntry(1)), Added(1, testEntry(2)))
	require.Equal(t, 1, calls)
}

func TestDispatcher_HandlerPanicDoesNotStopOthers(t *testing.T) {
	d := NewDispatcher(nil)

	var got int
	require.NoError(t, d.Subscribe("bad", Filter{}, func(Event) { panic("boom") }))
	require.NoError(t, d.Subscribe("good", Filter{}, func(Event) { got++ }))

	d.Publish(Added(0, testEntry(1)))
	require.Equal(t, 1, got)

	delivered, _ := d.Stats()
	require.Equal(t, int64(1), delivered)
}

func TestDispatcher_ConcurrentPublishOnQueue(t *testing.T) {
	q := serial.NewQueue("test-presentation")
	defer q.Close()
	d := NewDispatcher(q)

	var mu sync.Mutex
	var seqs []uint64
	require.NoError(t, d.Subscribe("s", Filter{}, func(e Event) {
		mu.Lock()
		seqs = append(seqs, e.Seq)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				d.Publish(Added(0, testEntry(int64(i*25+j+1))))
			}
		}(i)
	}
	wg.Wait()
	require.True(t, q.Flush())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seqs, 200)
	unique := make(map[uint64]struct{}, len(seqs))
	for _, seq := range seqs {
		unique[seq] = struct{}{}
	}
	require.Len(t, unique, 200)
}

func TestCallbacks_Handle(t *testing.T) {
	var log []string
	cb := Callbacks{
		OnAdded: func(index int, entry models.Entry) {
			log = append(log, "added")
		},
		OnMoved: func(from, to int, entry models.Entry) {
			require.Equal(t, 4, from)
			require.Equal(t, 1, to)
			log = append(log, "moved")
		},
		OnListStateChanged: func(state, prev models.ListState) {
			log = append(log, prev.String()+">"+state.String())
		},
	}

	h := cb.Handler()
	h(Added(0, testEntry(1)))
	h(Removed(0, testEntry(1)))
	h(Moved(4, 1, testEntry(2)))
	h(StateChanged(models.StateEndReached, models.StateLoading))

	require.Equal(t, []string{"added", "moved", "loading>end_reached"}, log)
}
