package interrupt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlag_requestIdempotent(t *testing.T) {
	f := NewFlag()
	require.False(t, f.Requested())
	require.NoError(t, f.Point())

	f.Request()
	f.Request() // must not panic on double close
	require.True(t, f.Requested())
	require.ErrorIs(t, f.Point(), ErrInterrupted)

	select {
	case <-f.Done():
	default:
		t.Fatal(`done channel must be closed after request`)
	}
}

func TestSpawn_nilCallable(t *testing.T) {
	require.Panics(t, func() { Spawn(nil) })
}

func TestThread_interruptAtPoint(t *testing.T) {
	iterated := make(chan int, 1)
	th := Spawn(func(f *Flag) {
		n := 0
		for ; f.Point() == nil; n++ {
			time.Sleep(time.Millisecond)
		}
		iterated <- n
	})
	time.Sleep(20 * time.Millisecond)
	th.Interrupt()
	th.Join()
	assert.Positive(t, <-iterated)
	assert.True(t, th.Flag().Requested())
}

func TestThread_interruptUnhooksChannelWait(t *testing.T) {
	th := Spawn(func(f *Flag) {
		blocked := make(chan struct{})
		select {
		case <-blocked:
			t.Error(`unreachable`)
		case <-f.Done():
		}
	})
	th.Interrupt()
	select {
	case <-th.Done():
	case <-time.After(time.Second):
		t.Fatal(`interrupt did not unblock the channel wait`)
	}
}

func TestThread_joinWithoutInterrupt(t *testing.T) {
	th := Spawn(func(*Flag) {})
	th.Join()
	require.False(t, th.Flag().Requested())
}
