package kernel

import (
	"math/bits"

	"github.com/littlekernel/lk-sub014/hal"
)

// Timeout expresses the blocking-call deadline parameter used across
// §4.1/§4.3/§4.4: either "wait forever" or "wait up to N milliseconds".
type Timeout struct {
	finite bool
	ms     uint32
}

// Infinite never expires.
func Infinite() Timeout { return Timeout{} }

// After expires ms milliseconds from the call that receives it.
func After(ms uint32) Timeout { return Timeout{finite: true, ms: ms} }

func (k *Kernel) enqueueReadyLocked(t *Thread) {
	k.runQueue[t.priority].pushBack(t)
	k.readyMask |= 1 << t.priority
}

func (k *Kernel) updateReadyMaskLocked(priority uint8) {
	if k.runQueue[priority].empty() {
		k.readyMask &^= 1 << priority
	} else {
		k.readyMask |= 1 << priority
	}
}

func eligible(t *Thread, cpuID uint32) bool {
	if t.pinned {
		return t.pinnedCPU == cpuID
	}
	return t.affinity&(hal.CPUMask(1)<<cpuID) != 0
}

// pickNextLocked implements the selection rules of §4.2: highest
// non-empty priority queue wins; FIFO within a priority; a thread not
// eligible for cpu is skipped over (leaving queue order intact for
// everyone else) rather than blocking selection; the per-CPU idle
// thread is the fallback when nothing user-level is eligible.
func (k *Kernel) pickNextLocked(cpu *PerCPU) *Thread {
	mask := k.readyMask
	for mask != 0 {
		// highest set bit = highest priority; bits.Len gives 1-indexed
		// position of the top bit.
		p := bits.Len32(mask) - 1
		q := &k.runQueue[p]
		for n := q.head; n != nil; n = n.qNext {
			if eligible(n, cpu.id) {
				q.remove(n)
				k.updateReadyMaskLocked(uint8(p))
				return n
			}
		}
		mask &^= 1 << p
	}
	return cpu.idle
}

func (k *Kernel) requestRescheduleLocked(cpu *PerCPU, fromCPU uint32, realtime bool) {
	cur := cpu.current
	if cur == nil {
		return
	}
	cur.pendingReschedule = true
	if cur.preemptDisableCount > 0 {
		return
	}
	if cpu.id == fromCPU {
		return // local: the running thread will notice at its own next safe point
	}
	if !realtime && k.realtimeCPUs&(hal.CPUMask(1)<<cpu.id) != 0 {
		return // avoid disturbing a realtime CPU unless explicitly asked to
	}
	cpu.stats.RescheduleIPIs++
	k.reschedulers++
	k.logEventLocked(EventIPI, cpu.id, 0)
	k.hal.SendIPI(hal.CPUMask(1)<<cpu.id, hal.IPIReschedule)
}

// maybePreemptLocked requests a reschedule on the first eligible CPU
// whose Running thread t now outranks, per §4.2's preemption rule.
// It passes maybePreemptFromLocked an out-of-range fromCPU, so it never
// treats the target as the caller's own CPU: a reschedule it requests
// is always delivered by IPI, even when the target CPU is the one the
// caller is running on.
func (k *Kernel) maybePreemptLocked(t *Thread) {
	k.maybePreemptFromLocked(t, ^uint32(0), false)
}

func (k *Kernel) maybePreemptFromLocked(t *Thread, fromCPU uint32, realtime bool) {
	for _, cpu := range k.cpus {
		if !cpu.active || cpu.current == nil {
			continue
		}
		if !eligible(t, cpu.id) {
			continue
		}
		if t.priority > cpu.current.priority {
			k.requestRescheduleLocked(cpu, fromCPU, realtime)
			return
		}
	}
}

// dispatch hands next the right to run by signaling its resume
// channel. next's goroutine is either parked in trampoline (first-ever
// dispatch) or parked inside a prior call to reschedule (every dispatch
// after the first).
func (k *Kernel) dispatch(next *Thread) {
	next.resumeCh <- struct{}{}
}

// reschedule must be called by self's own goroutine, with self already
// removed from the run queue (or left enqueued, for a plain Yield) by
// the caller. It picks the next thread to run on cpu, dispatches it,
// and — unless self is exiting — parks self until it is dispatched
// again, at which point reschedule returns.
func (k *Kernel) reschedule(cpu *PerCPU, self *Thread) {
	k.mu.Lock()
	next := k.pickNextLocked(cpu)
	cpu.current = next
	next.state = StateRunning
	next.cpu = cpu
	next.pendingReschedule = false
	cpu.stats.ContextSwitches++
	next.stats.ContextSwitches++
	k.logEventLocked(EventContextSwitch, cpu.id, next.id)
	k.mu.Unlock()

	if next == self {
		return
	}
	k.dispatch(next)
	if self.state == StateDeath {
		return
	}
	<-self.resumeCh
}

// PreemptionCheck is a safe point a CPU-bound thread body can call
// periodically to let a pending reschedule actually take effect. Real
// hardware forces this at the next timer tick or IPI, which physically
// interrupts whatever instruction the CPU was executing; this process
// has no such asynchronous suspend capability for an arbitrary
// goroutine, so a thread that never
// blocks, sleeps, or yields must call PreemptionCheck itself to remain
// preemptible. This is the one deliberate, documented divergence from
// real hardware semantics (see DESIGN.md).
func (k *Kernel) PreemptionCheck(self *Thread) {
	self.checkMagic()
	k.mu.Lock()
	cpu := self.cpu
	pending := self.pendingReschedule && self.preemptDisableCount == 0
	if !pending {
		k.mu.Unlock()
		return
	}
	self.state = StateReady
	k.enqueueReadyLocked(self)
	k.mu.Unlock()

	k.reschedule(cpu, self)
}

// Yield transitions self from Running to Ready at its current
// priority, enqueued at the tail of its level, and reschedules, per
// §4.1.
func (k *Kernel) Yield(self *Thread) {
	self.checkMagic()
	k.mu.Lock()
	cpu := self.cpu
	self.state = StateReady
	k.enqueueReadyLocked(self)
	k.mu.Unlock()

	k.reschedule(cpu, self)
}

// Sleep transitions self to Sleeping for ms milliseconds and
// reschedules; wake restores Ready, per §4.1.
func (k *Kernel) Sleep(self *Thread, ms uint32) Status {
	self.checkMagic()
	if ms == 0 {
		k.Yield(self)
		return StatusOK
	}
	k.mu.Lock()
	cpu := self.cpu
	self.state = StateSleeping
	tm := k.newTimerLocked()
	deadline := k.nowMsLocked() + ms
	k.armOneshotLocked(tm, deadline, 0, wakeSleepCB(k, self))
	self.sleepTimer = tm
	k.mu.Unlock()

	k.reschedule(cpu, self)
	return StatusOK
}

func wakeSleepCB(k *Kernel, self *Thread) func() {
	return func() {
		k.mu.Lock()
		if self.state == StateSleeping {
			self.state = StateReady
			self.sleepTimer = nil
			k.enqueueReadyLocked(self)
			k.maybePreemptLocked(self)
		}
		k.mu.Unlock()
	}
}

// Exit stores retcode, wakes any joiners, and re-enters the scheduler;
// the caller's goroutine never runs user code again, per §4.1.
func (k *Kernel) Exit(self *Thread, retcode int) {
	self.checkMagic()
	k.mu.Lock()
	self.retcode = retcode
	self.state = StateDeath
	cpu := self.cpu
	detached := self.flags&FlagDetached != 0
	k.logEventLocked(EventThreadExit, cpu.id, self.id)
	k.mu.Unlock()

	k.WakeAll(&self.joinWQ, StatusOK, true)

	// A detached thread has no joiner to reap it, so it is handed to
	// the background reaper instead. Join reaps a joined thread itself
	// once it has observed state Death, under the same reasoning.
	if detached {
		k.enqueueZombie(self)
	}

	k.reschedule(cpu, self)
}

func (k *Kernel) reap(t *Thread) {
	k.mu.Lock()
	delete(k.threads, t.id)
	k.mu.Unlock()
}
