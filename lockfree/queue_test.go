package lockfree

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTwoPhase_lifecycle(t *testing.T) {
	var tp twoPhase
	tp.reset()

	// Single borrower detaches from both head and tail.
	require.False(t, tp.finishPhase(1), `one phase still outstanding`)
	require.True(t, tp.finishPhase(1), `both phases complete, no borrows`)
}

func TestTwoPhase_outstandingBorrows(t *testing.T) {
	var tp twoPhase
	tp.reset()

	// Three borrowers on the head side: the winner merges ext=3, the two
	// losers release individually; the tail side detaches with one borrower.
	require.False(t, tp.finishPhase(3), `count is -2, phase 1 outstanding`)
	require.False(t, tp.release())
	require.False(t, tp.finishPhase(1), `count -1, phases 0`)
	require.True(t, tp.release(), `last release observes death`)
}

func TestQueue_sequentialFIFO(t *testing.T) {
	q := NewQueue[int]()
	if _, ok := q.Pop(); ok {
		t.Fatal(`pop on empty queue must report not ok`)
	}
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	for i := 0; i < 100; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.Pop()
	require.False(t, ok)
}

func TestQueue_singleProducerOrder(t *testing.T) {
	q := NewQueue[int]()
	const n = 5000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			q.Push(i)
		}
	}()
	var got []int
	for len(got) < n {
		if v, ok := q.Pop(); ok {
			got = append(got, v)
		}
	}
	<-done
	for i, v := range got {
		require.Equal(t, i, v, `single-producer FIFO order`)
	}
}

func TestQueue_concurrentMultiset(t *testing.T) {
	const producers, consumers, perProducer = 4, 4, 2000
	q := NewQueue[int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}(p)
	}

	popped := make([][]int, consumers)
	var done sync.WaitGroup
	stop := make(chan struct{})
	for c := 0; c < consumers; c++ {
		done.Add(1)
		go func(c int) {
			defer done.Done()
			for {
				if v, ok := q.Pop(); ok {
					popped[c] = append(popped[c], v)
					continue
				}
				select {
				case <-stop:
					for {
						v, ok := q.Pop()
						if !ok {
							return
						}
						popped[c] = append(popped[c], v)
					}
				default:
				}
			}
		}(c)
	}

	wg.Wait()
	close(stop)
	done.Wait()

	var all []int
	for _, vs := range popped {
		all = append(all, vs...)
	}
	require.Len(t, all, producers*perProducer)
	sort.Ints(all)
	for i, v := range all {
		require.Equal(t, i, v)
	}
}

func TestQueue_interleavedReuse(t *testing.T) {
	q := NewQueue[int]()
	for round := 0; round < 10; round++ {
		for i := 0; i < 100; i++ {
			q.Push(i)
		}
		for i := 0; i < 100; i++ {
			v, ok := q.Pop()
			require.True(t, ok)
			require.Equal(t, i, v)
		}
	}
}

func BenchmarkQueue_pushPop(b *testing.B) {
	q := NewQueue[int]()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			q.Push(1)
			q.Pop()
		}
	})
}
