package kernel

import (
	"fmt"

	"github.com/littlekernel/lk-sub014/hal"
)

// State is one of the thread states of spec §3.
type State uint8

const (
	StateSuspended State = iota
	StateReady
	StateRunning
	StateBlocked
	StateSleeping
	StateDeath
)

func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSleeping:
		return "sleeping"
	case StateDeath:
		return "death"
	default:
		return "unknown"
	}
}

// Flags are per-thread lifecycle flags, per spec §3.
type Flags uint8

const (
	FlagDetached Flags = 1 << iota
	FlagFreeStack
)

// EntryFunc is a thread's body. self is the thread's own handle — Go has
// no portable way to recover "which thread is calling me" by inspecting
// the calling goroutine, so every operation that needs the current
// thread as a capability (Sleep, Yield, Exit, Block, PreemptionCheck)
// takes self explicitly instead, starting here. Its return value
// becomes the thread's exit code, retrievable by Join.
type EntryFunc func(self *Thread, arg any) int

const threadMagic = 0x74687244 // 'thrD', checked the way LK tags every core object

// Thread is the kernel's thread descriptor (spec §3's Thread entity).
// Every field below is only ever touched with Kernel.mu held, except
// resumeCh, which is the hand-off primitive itself and is deliberately
// lock-free (a buffered channel of capacity 1): it is the mechanism by
// which Kernel.dispatch hands this thread the right to run without
// needing the lock held across the hand-off.
type Thread struct {
	magic uint32

	k    *Kernel
	id   uint64
	name string

	priority uint8
	state    State

	entry   EntryFunc
	arg     any
	retcode int

	stackSize int

	affinity  hal.CPUMask
	pinned    bool
	pinnedCPU uint32

	cpu *PerCPU

	preemptDisableCount int32
	pendingReschedule   bool

	flags Flags

	resumeCh chan struct{}
	started  bool

	// doneCh closes when trampoline returns, i.e. once this thread's
	// goroutine has actually stopped running. The reaper waits on it
	// before freeing a detached thread's descriptor, so reaping can
	// never race with the last instructions of the exiting goroutine.
	doneCh chan struct{}

	// qNext/qPrev intrusively link this thread into at most one of: a
	// priority run queue or a WaitQueue, per the "on at most one"
	// invariant of spec §3. A Sleeping thread is on neither; only its
	// sleepTimer refers to it.
	qNext, qPrev *Thread
	inQueue      bool

	joinWQ WaitQueue

	sleepDeadline uint32
	sleepTimer    *Timer

	wakeStatus Status

	stats ThreadStats
}

// ThreadStats are the observational per-thread counters of §4.2.
type ThreadStats struct {
	ContextSwitches uint64
	TimeScheduledUs uint64
}

func (t *Thread) String() string {
	return fmt.Sprintf("thread(%d:%s prio=%d state=%s)", t.id, t.name, t.priority, t.state)
}

// ID returns the thread's stable numeric id.
func (t *Thread) ID() uint64 { return t.id }

// Name returns the thread's name.
func (t *Thread) Name() string { return t.name }

// Priority returns the thread's current priority.
func (t *Thread) Priority() uint8 {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.priority
}

// State returns the thread's current state.
func (t *Thread) State() State {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.state
}

func (t *Thread) checkMagic() {
	if t.magic != threadMagic {
		fatal("thread: corrupt descriptor (bad magic)", t)
	}
}

// Create allocates a new thread in state Suspended, per §4.1. The
// thread does not run until Resume is called. stackSize is retained
// only as bookkeeping (the core allocates no real stack in this
// implementation — the "stack" is the Go goroutine's own) but a zero
// or negative size is still an invalid-argument error, matching the
// real allocator's contract.
func (k *Kernel) Create(name string, entry EntryFunc, arg any, priority uint8, stackSize int) (*Thread, Status) {
	if entry == nil || priority == 0 || priority >= NumPriorities || stackSize <= 0 {
		return nil, StatusError(ErrInvalidArgs)
	}
	k.mu.Lock()
	full := len(k.threads) >= maxThreads
	k.mu.Unlock()
	if full {
		return nil, StatusError(ErrNoMemory)
	}
	return k.createThread(name, entry, arg, priority, stackSize), StatusOK
}

// createIdleThread constructs cpu's idle thread at the reserved idle
// priority, bypassing Create's priority validation (priority 0 is only
// ever valid for the thread pickNextLocked falls back to).
func (k *Kernel) createIdleThread(name string, entry EntryFunc, arg any, stackSize int) *Thread {
	return k.createThread(name, entry, arg, IdlePriority, stackSize)
}

func (k *Kernel) createThread(name string, entry EntryFunc, arg any, priority uint8, stackSize int) *Thread {
	k.mu.Lock()
	k.nextThread++
	id := k.nextThread
	k.mu.Unlock()

	t := &Thread{
		magic:     threadMagic,
		k:         k,
		id:        id,
		name:      name,
		priority:  priority,
		state:     StateSuspended,
		entry:     entry,
		arg:       arg,
		stackSize: stackSize,
		affinity:  hal.CPUMask(^uint64(0)),
		resumeCh:  make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}
	t.joinWQ = newWaitQueue()

	k.mu.Lock()
	k.threads[id] = t
	k.logEventLocked(EventThreadCreate, ^uint32(0), id)
	k.mu.Unlock()

	go t.trampoline()

	return t
}

// trampoline is the Go-goroutine analogue of the arch context-switch
// trampoline described in §4.1: it is launched at Create time, parks
// immediately waiting for its first dispatch, and only then calls into
// the user entry function — mirroring "the arch context_switch returns
// into the trampoline holding the scheduler lock... the trampoline
// releases the lock and enables interrupts before calling the user
// entry function". In this implementation the "lock release" already
// happened in Kernel.reschedule before it called dispatch to signal
// resumeCh, so the
// trampoline's only remaining job is to run the entry function and
// feed its return value to Exit.
func (t *Thread) trampoline() {
	defer close(t.doneCh)
	<-t.resumeCh
	ret := t.entry(t, t.arg)
	t.k.Exit(t, ret)
}

// Resume moves t from Suspended to Ready and enqueues it onto its
// priority's run queue, per §4.1. It is idempotent on an already-Ready
// thread. Resuming a Running, Blocked, Sleeping, or Death thread is a
// no-op distinguishable only by the returned status (NotReady) — the
// core does not support resuming those states.
func (k *Kernel) Resume(t *Thread) Status {
	t.checkMagic()
	k.mu.Lock()
	switch t.state {
	case StateReady:
		k.mu.Unlock()
		return StatusOK
	case StateSuspended:
		t.state = StateReady
		k.enqueueReadyLocked(t)
		k.maybePreemptLocked(t)
		k.mu.Unlock()
		return StatusOK
	default:
		k.mu.Unlock()
		return StatusError(ErrNotReady)
	}
}

// Suspend moves a Ready thread back to Suspended and removes it from
// its run queue. Suspending a Running, Blocked, Sleeping, or Death
// thread is unsupported by the core, per §4.1 and the DESIGN NOTES'
// resolution of that open question.
func (k *Kernel) Suspend(t *Thread) Status {
	t.checkMagic()
	k.mu.Lock()
	defer k.mu.Unlock()
	if t.state != StateReady {
		return StatusError(ErrNotReady)
	}
	k.runQueue[t.priority].remove(t)
	k.updateReadyMaskLocked(t.priority)
	t.state = StateSuspended
	return StatusOK
}

// SetPriority changes t's priority, re-enqueuing it if Ready or
// triggering a reschedule check against the new priority if Running,
// per §4.1.
func (k *Kernel) SetPriority(t *Thread, priority uint8) Status {
	t.checkMagic()
	if priority == 0 || priority >= NumPriorities {
		return StatusError(ErrInvalidArgs)
	}
	k.mu.Lock()
	old := t.priority
	if old == priority {
		k.mu.Unlock()
		return StatusOK
	}
	switch t.state {
	case StateReady:
		k.runQueue[old].remove(t)
		k.updateReadyMaskLocked(old)
		t.priority = priority
		k.enqueueReadyLocked(t)
		k.mu.Unlock()
	case StateRunning:
		t.priority = priority
		k.mu.Unlock()
		k.mu.Lock()
		k.maybePreemptLocked(t)
		k.mu.Unlock()
	default:
		t.priority = priority
		k.mu.Unlock()
	}
	return StatusOK
}

// SetAffinity restricts the CPUs t may run on.
func (k *Kernel) SetAffinity(t *Thread, mask hal.CPUMask) Status {
	t.checkMagic()
	if mask == 0 {
		return StatusError(ErrInvalidArgs)
	}
	k.mu.Lock()
	t.affinity = mask
	t.pinned = false
	k.mu.Unlock()
	return StatusOK
}

// Pin restricts t to run only on cpu.
func (k *Kernel) Pin(t *Thread, cpu uint32) Status {
	t.checkMagic()
	if cpu >= k.NumCPUs() {
		return StatusError(ErrInvalidArgs)
	}
	k.mu.Lock()
	t.pinned = true
	t.pinnedCPU = cpu
	t.affinity = hal.CPUMask(1) << cpu
	k.mu.Unlock()
	return StatusOK
}

// Detach marks t self-freeing: its descriptor is discarded by the
// reaper without requiring a Join.
func (k *Kernel) Detach(t *Thread) Status {
	t.checkMagic()
	k.mu.Lock()
	defer k.mu.Unlock()
	if t.state == StateDeath {
		return StatusError(ErrNotReady)
	}
	t.flags |= FlagDetached
	return StatusOK
}

// Join blocks self until t reaches Death and returns its stored exit
// code. A non-detached thread is reaped as part of Join; a detached
// thread cannot be joined. self is the calling thread's own handle, per
// the same current-thread-as-capability rule EntryFunc documents.
func (k *Kernel) Join(self *Thread, t *Thread, timeout Timeout) (int, Status) {
	t.checkMagic()
	self.checkMagic()
	k.mu.Lock()
	if t.flags&FlagDetached != 0 {
		k.mu.Unlock()
		return 0, StatusError(ErrInvalidArgs)
	}
	if t.state == StateDeath {
		ret := t.retcode
		k.mu.Unlock()
		<-t.doneCh
		k.reap(t)
		return ret, StatusOK
	}
	k.mu.Unlock()

	st := k.Block(&t.joinWQ, self, timeout)
	if !st.OK() {
		return 0, st
	}
	k.mu.Lock()
	ret := t.retcode
	k.mu.Unlock()
	<-t.doneCh
	k.reap(t)
	return ret, StatusOK
}
