package syncqueue

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_fifoOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	require.False(t, ok)
}

func TestQueue_popBlocksUntilPush(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		v, ok := q.Pop()
		if !ok {
			got <- `!closed`
			return
		}
		got <- v
	}()
	select {
	case v := <-got:
		t.Fatalf(`pop returned early: %q`, v)
	case <-time.After(50 * time.Millisecond):
	}
	q.Push(`hello`)
	select {
	case v := <-got:
		require.Equal(t, `hello`, v)
	case <-time.After(time.Second):
		t.Fatal(`pop did not wake`)
	}
}

func TestQueue_closeWakesAllPoppers(t *testing.T) {
	q := New[int]()
	const blocked = 4
	var wg sync.WaitGroup
	for i := 0; i < blocked; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := q.Pop(); ok {
				t.Error(`pop after close must report not ok`)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	q.Close()
	q.Close() // idempotent
	wg.Wait()
	require.True(t, q.Closed())
}

func TestQueue_popAfterCloseReturnsEmptySentinel(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Close()
	// blocking pop yields the empty sentinel even though an element remains
	_, ok := q.Pop()
	require.False(t, ok)
	// the element is still reachable via TryPop
	v, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestQueue_concurrentMultiset(t *testing.T) {
	const producers, consumers, perProducer = 4, 4, 2500
	q := New[int]()

	var produced sync.WaitGroup
	for p := 0; p < producers; p++ {
		produced.Add(1)
		go func(p int) {
			defer produced.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}(p)
	}

	var mu sync.Mutex
	var all []int
	var consumed sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consumed.Add(1)
		go func() {
			defer consumed.Done()
			for {
				v, ok := q.Pop()
				if !ok {
					return
				}
				mu.Lock()
				all = append(all, v)
				mu.Unlock()
			}
		}()
	}

	produced.Wait()
	// drain by consumers, then release them
	for {
		mu.Lock()
		n := len(all)
		mu.Unlock()
		if n == producers*perProducer {
			break
		}
		time.Sleep(time.Millisecond)
	}
	q.Close()
	consumed.Wait()

	require.Len(t, all, producers*perProducer)
	sort.Ints(all)
	for i, v := range all {
		require.Equal(t, i, v)
	}
}
