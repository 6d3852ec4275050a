package channel

import (
	"errors"
	"sort"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

var (
	// ErrDuplicateDefault is returned by Select.AddDefault when a default
	// clause is already present.
	ErrDuplicateDefault = errors.New(`channel: multiple default clauses in select`)

	// ErrRegisterAfterWait is returned when a case is added to a Select
	// whose Wait has begun.
	ErrRegisterAfterWait = errors.New(`channel: case registered after wait`)
)

type (
	// Select waits on several channel operations, commits to exactly one,
	// and runs its bound action. Cases are added with AddReceive and
	// AddSend before Wait; an optional default clause runs when no case is
	// immediately ready.
	//
	// A Select is single-use: after Wait returns it must not be reused.
	// Construct with NewSelect.
	Select struct {
		cases         []caseArm
		defaultAction func()
		waitStarted   bool
		shared        *selectShared
		log           *logiface.Logger[logiface.Event]
	}

	// selectShared is the participant record shared by every queue entry a
	// select registers: the wake primitive, the compare-and-set-once
	// resolved case index, and the select's process-unique identity used to
	// clean stale entries out of the other channels.
	selectShared struct {
		wake     chan struct{}
		resolved atomic.Int32
		err      error
		owner    uint64
	}

	// caseArm is the type-erased face of one registered case; the generic
	// arm types below bind it to a concrete channel element type. All
	// methods except lock, act and channelID require the channel mutex.
	caseArm interface {
		channelID() uint64
		lock()
		unlock()
		// try performs the non-blocking channel op, reporting resolution;
		// a send case on a closed channel surfaces ErrClosed.
		try() (bool, error)
		register()
		cleanup()
		act()
	}

	recvArm[T any] struct {
		ch     *Channel[T]
		slot   *T
		action func()
		w      *waiter[T]
	}

	sendArm[T any] struct {
		ch     *Channel[T]
		action func()
		w      *waiter[T]
	}

	// SelectOption configures NewSelect.
	SelectOption interface {
		applySelect(*selectOptions)
	}

	selectOptions struct {
		log *logiface.Logger[logiface.Event]
	}

	selectOptionImpl struct {
		applySelectFunc func(*selectOptions)
	}
)

func (x *selectOptionImpl) applySelect(opts *selectOptions) { x.applySelectFunc(opts) }

// WithSelectLogger attaches a structured logger for registration and
// cleanup events. The logger may be nil (the default), which disables
// logging.
func WithSelectLogger(log *logiface.Logger[logiface.Event]) SelectOption {
	return &selectOptionImpl{func(opts *selectOptions) {
		opts.log = log
	}}
}

// NewSelect creates an empty select.
func NewSelect(options ...SelectOption) *Select {
	var cfg selectOptions
	for _, o := range options {
		if o != nil {
			o.applySelect(&cfg)
		}
	}
	x := &Select{
		shared: &selectShared{
			wake:  make(chan struct{}),
			owner: idCounter.Add(1),
		},
		log: cfg.log,
	}
	x.shared.resolved.Store(-1)
	return x
}

// AddReceive registers a receive case. When the case fires, the received
// value is placed in slot before action runs; a receive resolved by Close
// places the zero value. slot must not be nil.
func AddReceive[T any](x *Select, ch *Channel[T], slot *T, action func()) error {
	if x.waitStarted {
		return ErrRegisterAfterWait
	}
	x.cases = append(x.cases, &recvArm[T]{
		ch:     ch,
		slot:   slot,
		action: action,
		w:      &waiter[T]{sel: x.shared, caseID: int32(len(x.cases))},
	})
	return nil
}

// AddSend registers a send case offering value. action runs after the value
// is accepted. A send case resolved by Close causes Wait to return
// ErrClosed without running action.
func AddSend[T any](x *Select, ch *Channel[T], value T, action func()) error {
	if x.waitStarted {
		return ErrRegisterAfterWait
	}
	x.cases = append(x.cases, &sendArm[T]{
		ch:     ch,
		action: action,
		w:      &waiter[T]{sel: x.shared, caseID: int32(len(x.cases)), val: &value},
	})
	return nil
}

// AddDefault registers the default clause, which runs when no case is
// immediately ready. Only one default is permitted.
func (x *Select) AddDefault(action func()) error {
	if x.waitStarted {
		return ErrRegisterAfterWait
	}
	if x.defaultAction != nil {
		return ErrDuplicateDefault
	}
	x.defaultAction = action
	return nil
}

// Wait blocks until exactly one case fires, runs its bound action, and
// returns. When no case is immediately ready and a default clause is
// present, the default runs instead and Wait never sleeps.
//
// Channel mutexes are acquired in ascending channel-id order, which
// prevents deadlock between selects sharing channels. No lock is held while
// an action or the default clause runs, so actions must not assume the
// tried state still holds, but may themselves operate on channels.
//
// Wait returns ErrClosed when the select is resolved by a send case on a
// closed channel (eagerly, or via Close while registered).
func (x *Select) Wait() error {
	x.waitStarted = true

	// One lock per distinct channel, in ascending id order.
	chans := x.uniqueChannels()
	lockAll(chans)
	locked := true
	defer func() {
		if locked {
			unlockAll(chans)
		}
	}()

	// Eager attempt, in declaration order.
	for _, arm := range x.cases {
		done, err := arm.try()
		if err != nil {
			return err
		}
		if done {
			unlockAll(chans)
			locked = false
			arm.act()
			return nil
		}
	}

	if x.defaultAction != nil {
		unlockAll(chans)
		locked = false
		x.defaultAction()
		return nil
	}

	// Register into every channel's queue, then sleep. Exactly one other
	// goroutine wins the compare-and-set on the resolved index and closes
	// the wake channel; later contenders observe the index and skip us.
	for _, arm := range x.cases {
		arm.register()
	}
	unlockAll(chans)
	locked = false

	<-x.shared.wake
	resolved := x.shared.resolved.Load()
	x.log.Trace().Uint64(`select`, x.shared.owner).Int(`case`, int(resolved)).Log(`select resolved`)

	// Scrub our stale entries from every channel we registered in; the
	// resolving channel already dropped its own entry, but this select may
	// appear in any queue any number of times.
	lockAll(chans)
	for _, arm := range chans {
		arm.cleanup()
	}
	unlockAll(chans)

	if x.shared.err != nil {
		return x.shared.err
	}
	x.cases[resolved].act()
	return nil
}

// uniqueChannels returns one representative arm per distinct channel,
// sorted by channel id.
func (x *Select) uniqueChannels() []caseArm {
	byID := make(map[uint64]caseArm, len(x.cases))
	for _, arm := range x.cases {
		if _, ok := byID[arm.channelID()]; !ok {
			byID[arm.channelID()] = arm
		}
	}
	arms := make([]caseArm, 0, len(byID))
	for _, arm := range byID {
		arms = append(arms, arm)
	}
	sort.Slice(arms, func(i, j int) bool { return arms[i].channelID() < arms[j].channelID() })
	return arms
}

func lockAll(arms []caseArm) {
	for _, arm := range arms {
		arm.lock()
	}
}

func unlockAll(arms []caseArm) {
	for i := len(arms) - 1; i >= 0; i-- {
		arms[i].unlock()
	}
}

func (x *recvArm[T]) channelID() uint64 { return x.ch.id }
func (x *recvArm[T]) lock()             { x.ch.mu.Lock() }
func (x *recvArm[T]) unlock()           { x.ch.mu.Unlock() }

func (x *recvArm[T]) try() (bool, error) {
	val, ok := x.ch.tryReceiveLocked()
	if !ok {
		return false, nil
	}
	x.w.val = val
	return true, nil
}

func (x *recvArm[T]) register() { x.ch.registerConsumer(x.w) }
func (x *recvArm[T]) cleanup()  { x.ch.removeSelectWaiters(x.w.sel.owner) }

func (x *recvArm[T]) act() {
	if x.w.val != nil {
		*x.slot = *x.w.val
	} else {
		// receive resolved by close delivers the zero placeholder
		var zero T
		*x.slot = zero
	}
	if x.action != nil {
		x.action()
	}
}

func (x *sendArm[T]) channelID() uint64 { return x.ch.id }
func (x *sendArm[T]) lock()             { x.ch.mu.Lock() }
func (x *sendArm[T]) unlock()           { x.ch.mu.Unlock() }

func (x *sendArm[T]) try() (bool, error) {
	return x.ch.trySendLocked(x.w.val)
}

func (x *sendArm[T]) register() { x.ch.registerProducer(x.w) }
func (x *sendArm[T]) cleanup()  { x.ch.removeSelectWaiters(x.w.sel.owner) }

func (x *sendArm[T]) act() {
	if x.action != nil {
		x.action()
	}
}
