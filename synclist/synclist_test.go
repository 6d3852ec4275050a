package synclist

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestList_pushFindRemove(t *testing.T) {
	l := New[int]()
	_, ok := l.FindFirstIf(func(int) bool { return true })
	require.False(t, ok)

	l.PushFront(1)
	l.PushFront(2)
	l.PushFront(3)

	v, ok := l.FindFirstIf(func(v int) bool { return v%2 == 0 })
	require.True(t, ok)
	require.Equal(t, 2, v)

	require.True(t, l.RemoveFirstIf(func(v int) bool { return v == 2 }))
	require.False(t, l.RemoveFirstIf(func(v int) bool { return v == 2 }))

	var got []int
	l.ForEach(func(v int) { got = append(got, v) })
	require.Equal(t, []int{3, 1}, got)
}

func TestList_forEachUntil(t *testing.T) {
	l := New[int]()
	for i := 5; i > 0; i-- {
		l.PushFront(i)
	}
	var got []int
	l.ForEachUntil(func(v int) bool {
		got = append(got, v)
		return v < 3
	})
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestList_insertOrUpdate(t *testing.T) {
	l := New[string]()
	require.True(t, l.InsertOrUpdate(func(s string) bool { return s == "a" }, "a"))
	require.False(t, l.InsertOrUpdate(func(s string) bool { return s == "a" }, "a"))
	require.True(t, l.InsertOrUpdate(func(s string) bool { return s == "b" }, "b"))

	var got []string
	l.ForEach(func(s string) { got = append(got, s) })
	require.Equal(t, []string{"a", "b"}, got, `inserts append at the tail`)
}

// For any predicate, after racing InsertOrUpdate calls the list must contain
// exactly one matching node.
func TestList_insertOrUpdate_converges(t *testing.T) {
	l := New[int]()
	const workers = 16
	var wg sync.WaitGroup
	var inserted sync.Map
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if l.InsertOrUpdate(func(v int) bool { return v%1000 == i }, i+1000*w) {
					if _, loaded := inserted.LoadOrStore(i, w); loaded {
						t.Errorf(`double insert for key %d`, i)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	counts := make(map[int]int)
	l.ForEach(func(v int) { counts[v%1000]++ })
	require.Len(t, counts, 200)
	for k, n := range counts {
		require.Equal(t, 1, n, `key %d must appear exactly once`, k)
	}
}

func TestList_concurrentMixed(t *testing.T) {
	l := New[int]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				switch i % 3 {
				case 0:
					l.PushFront(w*1000 + i)
				case 1:
					l.FindFirstIf(func(v int) bool { return v == w*1000+i-1 })
				default:
					l.RemoveFirstIf(func(v int) bool { return v%8 == w })
				}
			}
		}(w)
	}
	wg.Wait()
	// liveness only: a full traversal still terminates
	n := 0
	l.ForEach(func(int) { n++ })
	require.GreaterOrEqual(t, n, 0)
}
