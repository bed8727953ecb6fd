package kernel

import (
	"sync/atomic"

	"github.com/littlekernel/lk-sub014/hal"
)

// SpinLock is the lowest-level mutual-exclusion primitive (§4.4): on a
// single simulated CPU it degenerates to an interrupt-mask token (the
// only other thing that could preempt the holder is an IRQ on the same
// CPU); with more than one CPU it additionally needs a real
// test-and-set so a second CPU spinning on the same lock actually
// waits. Holding a SpinLock across any call that can block (Block,
// Acquire, Wait, Sleep, Join) is a programming error the core cannot
// detect cheaply and simply forbids by convention, matching the source.
type SpinLock struct {
	k      *Kernel
	locked atomic.Bool
}

// NewSpinLock returns an initialized, unheld spinlock.
func (k *Kernel) NewSpinLock() *SpinLock {
	return &SpinLock{k: k}
}

// SpinLockState is the save_state/restore_state token of §4.4: it
// captures the interrupt-mask state from immediately before Acquire, so
// a nested Acquire/Release pair on the same CPU composes correctly
// regardless of what the outer critical section had already done to
// interrupts.
type SpinLockState struct {
	cpu      uint32
	intState hal.IntState
}

// Acquire masks interrupts on cpu and, if more than one CPU is in play,
// spins until the test-and-set bit is clear before taking it.
func (l *SpinLock) Acquire(cpu uint32) SpinLockState {
	st := l.k.hal.DisableInts(cpu)
	if l.k.NumCPUs() > 1 {
		for !l.locked.CompareAndSwap(false, true) {
			// busy-wait: a real spin, since the core never blocks here.
		}
	} else {
		l.locked.Store(true)
	}
	return SpinLockState{cpu: cpu, intState: st}
}

// Release clears the lock and restores the interrupt state Acquire
// captured, in that order, mirroring save_state/restore_state nesting.
func (l *SpinLock) Release(state SpinLockState) {
	l.locked.Store(false)
	l.k.hal.InterruptRestore(state.cpu, state.intState)
}
