package serial

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueRunsInPostOrder(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 500; i++ {
		i := i
		require.True(t, q.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.True(t, q.Flush())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 500)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestQueueConcurrentPostersKeepPerPosterOrder(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	const posters = 8
	const perPoster = 200
	var mu sync.Mutex
	seen := make(map[int][]int)

	var wg sync.WaitGroup
	for p := 0; p < posters; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPoster; i++ {
				i := i
				q.Post(func() {
					mu.Lock()
					seen[p] = append(seen[p], i)
					mu.Unlock()
				})
			}
		}(p)
	}
	wg.Wait()
	require.True(t, q.Flush())

	mu.Lock()
	defer mu.Unlock()
	for p := 0; p < posters; p++ {
		require.Len(t, seen[p], perPoster)
		for i, v := range seen[p] {
			require.Equal(t, i, v)
		}
	}
}

func TestQueueCloseDrainsAndRejects(t *testing.T) {
	q := NewQueue("test")
	ran := 0
	for i := 0; i < 10; i++ {
		q.Post(func() { ran++ })
	}
	q.Close()
	require.Equal(t, 10, ran)

	require.False(t, q.Post(func() { ran++ }))
	require.False(t, q.Flush())
	require.Equal(t, 10, ran)

	posted, processed, dropped := q.Stats()
	require.Equal(t, int64(10), posted)
	require.Equal(t, int64(10), processed)
	require.Equal(t, int64(2), dropped)
}

func TestQueueSurvivesPanics(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	q.Post(func() { panic("boom") })
	ok := false
	q.Post(func() { ok = true })
	require.True(t, q.Flush())
	require.True(t, ok)
}

func TestManualRunsNestedPosts(t *testing.T) {
	m := &Manual{}
	var order []string
	m.Post(func() {
		order = append(order, "a")
		m.Post(func() { order = append(order, "c") })
	})
	m.Post(func() { order = append(order, "b") })

	require.Equal(t, 2, m.Pending())
	require.Equal(t, 3, m.Run())
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Zero(t, m.Pending())
}

func TestInlineRunsImmediately(t *testing.T) {
	ran := false
	require.True(t, Inline{}.Post(func() { ran = true }))
	require.True(t, ran)
	require.False(t, Inline{}.Post(nil))
}
