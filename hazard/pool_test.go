package hazard

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_defaultSize(t *testing.T) {
	assert.Equal(t, DefaultPoolSize, NewPool(0).Size())
	assert.Equal(t, DefaultPoolSize, NewPool(-3).Size())
	assert.Equal(t, 7, NewPool(7).Size())
}

func TestPool_Acquire_exhausted(t *testing.T) {
	pool := NewPool(2)
	a, err := pool.Acquire()
	require.NoError(t, err)
	b, err := pool.Acquire()
	require.NoError(t, err)
	_, err = pool.Acquire()
	require.ErrorIs(t, err, ErrExhausted)
	a.Release()
	c, err := pool.Acquire()
	require.NoError(t, err)
	c.Release()
	b.Release()
}

func TestSlot_Release_idempotent(t *testing.T) {
	pool := NewPool(1)
	s, err := pool.Acquire()
	require.NoError(t, err)
	s.Release()
	s.Release() // must not panic or double-free the slot
	s2, err := pool.Acquire()
	require.NoError(t, err)
	s2.Release()
	(&Slot{}).Release()
}

func TestPool_Protected(t *testing.T) {
	pool := NewPool(4)
	v := new(int)
	p := unsafe.Pointer(v)
	require.False(t, pool.Protected(p))

	s, err := pool.Acquire()
	require.NoError(t, err)
	s.Protect(p)
	require.True(t, pool.Protected(p))

	s.Protect(nil)
	require.False(t, pool.Protected(p))

	s.Protect(p)
	s.Release()
	require.False(t, pool.Protected(p), `release must clear the slot`)
}

func TestDustbin_Scan_respectsProtection(t *testing.T) {
	pool := NewPool(4)
	bin := NewDustbin(pool)

	var recycled []unsafe.Pointer
	var mu sync.Mutex
	recycle := func(p unsafe.Pointer) {
		mu.Lock()
		defer mu.Unlock()
		recycled = append(recycled, p)
	}

	a, b := unsafe.Pointer(new(int)), unsafe.Pointer(new(int))
	slot, err := pool.Acquire()
	require.NoError(t, err)
	slot.Protect(a)

	bin.Defer(a, recycle)
	bin.Defer(b, recycle)

	require.Equal(t, 1, bin.Scan(), `only the unprotected pointer may be recycled`)
	require.Equal(t, []unsafe.Pointer{b}, recycled)
	require.False(t, bin.Empty(), `protected entry must be spliced back`)

	slot.Release()
	require.Equal(t, 1, bin.Scan())
	require.True(t, bin.Empty())
	require.Len(t, recycled, 2)
}

func TestDustbin_concurrentDeferScan(t *testing.T) {
	pool := NewPool(8)
	bin := NewDustbin(pool)

	const perG, workers = 200, 8
	var count sync.WaitGroup
	var recycled [workers]int
	count.Add(workers)
	for g := 0; g < workers; g++ {
		go func(g int) {
			defer count.Done()
			for i := 0; i < perG; i++ {
				bin.Defer(unsafe.Pointer(new(int)), func(unsafe.Pointer) {})
				recycled[g] += bin.Scan()
			}
		}(g)
	}
	count.Wait()

	total := bin.Scan()
	for _, n := range recycled {
		total += n
	}
	require.Equal(t, perG*workers, total, `every deferred entry is recycled exactly once`)
	require.True(t, bin.Empty())
}

func TestPool_Acquire_concurrent(t *testing.T) {
	pool := NewPool(64)
	var wg sync.WaitGroup
	for g := 0; g < 64; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s, err := pool.Acquire()
				if err != nil {
					t.Error(err)
					return
				}
				s.Protect(unsafe.Pointer(pool))
				s.Release()
			}
		}()
	}
	wg.Wait()
	require.False(t, pool.Protected(unsafe.Pointer(pool)))
}
