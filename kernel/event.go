package kernel

const eventMagic = 0x65766e74 // 'evnt'

// Event is a signal/wait flag with two flavors (§4.4): manual-reset
// (Signal wakes every waiter and stays signaled until Unsignal) and
// auto-reset (Signal wakes exactly one waiter and immediately clears).
type Event struct {
	magic    uint32
	k        *Kernel
	wq       WaitQueue
	signaled bool
	auto     bool
}

// NewEvent returns an initialized, unsignaled event. auto selects
// auto-unsignal semantics (Signal wakes one waiter then clears);
// otherwise Signal wakes every waiter and remains signaled.
func (k *Kernel) NewEvent(auto bool) *Event {
	return &Event{magic: eventMagic, k: k, wq: newWaitQueue(), auto: auto}
}

func (e *Event) checkMagic() {
	if e.magic != eventMagic {
		fatal("event: corrupt descriptor (bad magic)", e)
	}
}

// Wait blocks self while the event is unsignaled.
func (e *Event) Wait(self *Thread, timeout Timeout) Status {
	e.checkMagic()
	self.checkMagic()
	e.k.mu.Lock()
	if e.signaled {
		if e.auto {
			e.signaled = false
		}
		e.k.mu.Unlock()
		return StatusOK
	}
	e.k.mu.Unlock()
	return e.k.Block(&e.wq, self, timeout)
}

// Signal sets the event. A manual-reset event wakes every waiter and
// stays signaled for any future Wait; an auto-reset event wakes at
// most one waiter (preferring a thread already blocked over leaving the
// event signaled) and never stays signaled.
func (e *Event) Signal(reschedule bool) Status {
	return e.SignalRT(reschedule, false)
}

// SignalRT is Signal with an explicit realtime flag threaded into the
// wake decision; see Semaphore.PostRT.
//
// The auto-reset branch decides "leave signaled" vs. "wake the one
// waiter" and acts on that decision in the same critical section: a
// waiter's timeout (wakeTimeoutCB) can only unlink it from e.wq under
// e.k.mu, so holding the lock across both the Count() check and the
// pop is what rules out a timeout sneaking the queue empty in between
// — the race that would otherwise drop the signal with nobody woken
// and e.signaled never set either.
func (e *Event) SignalRT(reschedule, realtime bool) Status {
	e.checkMagic()
	e.k.mu.Lock()
	defer e.k.mu.Unlock()
	if !e.auto {
		e.signaled = true
		e.k.wakeAllLocked(&e.wq, StatusOK, reschedule, realtime)
		return StatusOK
	}
	if e.wq.waiters.empty() {
		e.signaled = true
		return StatusOK
	}
	e.k.wakeOneLocked(&e.wq, StatusOK, reschedule, realtime)
	return StatusOK
}

// Unsignal clears the event without waking anyone.
func (e *Event) Unsignal() Status {
	e.checkMagic()
	e.k.mu.Lock()
	e.signaled = false
	e.k.mu.Unlock()
	return StatusOK
}
