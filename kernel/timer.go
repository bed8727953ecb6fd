package kernel

import "sync"

const timerMagic = 0x74696d72 // 'timr'

// Timer is the kernel's software timer descriptor (spec §3, §4.5).
// Every Timer is linked into Kernel.timers, a single list ordered by
// absolute deadline — the teacher's CAS-based List (alphadose/zenq's
// list.go) inspired the "intrusive, container-owns-order" shape, but
// this list is protected by Kernel.mu rather than being lock-free,
// because §4.5 requires draining "all timers with deadline ≤ now" as
// one atomic step against concurrent set_oneshot/cancel, which a
// lock-free MPSC list does not give you for free.
type Timer struct {
	magic    uint32
	k        *Kernel
	id       uint64
	deadline uint32
	period   uint32
	cb       func()
	linked   bool
	inFlight bool

	tNext, tPrev *Timer
}

func (t *Timer) checkMagic() {
	if t.magic != timerMagic {
		fatal("timer: corrupt descriptor (bad magic)", t)
	}
}

// timerList is the ordered-by-deadline doubly linked list of pending
// timers, head is the earliest deadline.
type timerList struct {
	head, tail *Timer
	cond       *sync.Cond
}

func newTimerList() timerList { return timerList{} }

func (l *timerList) insert(t *Timer) {
	var mark *Timer
	for n := l.head; n != nil; n = n.tNext {
		if n.deadline > t.deadline {
			mark = n
			break
		}
	}
	if mark == nil {
		t.tNext, t.tPrev = nil, l.tail
		if l.tail != nil {
			l.tail.tNext = t
		} else {
			l.head = t
		}
		l.tail = t
	} else {
		t.tNext = mark
		t.tPrev = mark.tPrev
		if mark.tPrev != nil {
			mark.tPrev.tNext = t
		} else {
			l.head = t
		}
		mark.tPrev = t
	}
	t.linked = true
}

func (l *timerList) remove(t *Timer) {
	if !t.linked {
		return
	}
	if t.tPrev != nil {
		t.tPrev.tNext = t.tNext
	} else {
		l.head = t.tNext
	}
	if t.tNext != nil {
		t.tNext.tPrev = t.tPrev
	} else {
		l.tail = t.tPrev
	}
	t.tNext, t.tPrev = nil, nil
	t.linked = false
}

// NewTimer allocates an uninitialized, unarmed timer.
func (k *Kernel) NewTimer() *Timer {
	k.mu.Lock()
	k.nextTimerID++
	id := k.nextTimerID
	k.mu.Unlock()
	return &Timer{magic: timerMagic, k: k, id: id}
}

func (k *Kernel) nowMsLocked() uint32 { return k.hal.NowMs() }

// NowMs returns the kernel's monotonic millisecond clock.
func (k *Kernel) NowMs() uint32 { return k.hal.NowMs() }

// NowUs returns the kernel's monotonic microsecond clock.
func (k *Kernel) NowUs() uint64 { return k.hal.NowUs() }

func (k *Kernel) newTimerLocked() *Timer {
	k.nextTimerID++
	return &Timer{magic: timerMagic, k: k, id: k.nextTimerID}
}

// armOneshotLocked inserts t at its deadline and, if it landed at the
// new head, re-arms the single hardware one-shot — the invariant of
// §4.5 that "the hardware one-shot target always equals the head
// deadline". Called with Kernel.mu held.
func (k *Kernel) armOneshotLocked(t *Timer, deadline, period uint32, cb func()) {
	if t.linked {
		k.timers.remove(t)
	}
	t.deadline = deadline
	t.period = period
	t.cb = cb
	k.timers.insert(t)
	if k.timers.head == t {
		k.hal.ArmOneshot(deadline, k.onHWExpire)
	}
}

// SetOneshot arms t to fire once, delayMs from now.
func (k *Kernel) SetOneshot(t *Timer, delayMs uint32, cb func()) Status {
	t.checkMagic()
	if cb == nil {
		return StatusError(ErrInvalidArgs)
	}
	k.mu.Lock()
	deadline := k.nowMsLocked() + delayMs
	k.armOneshotLocked(t, deadline, 0, cb)
	k.mu.Unlock()
	return StatusOK
}

// SetPeriodic arms t to fire every periodMs, first firing periodMs
// from now.
func (k *Kernel) SetPeriodic(t *Timer, periodMs uint32, cb func()) Status {
	t.checkMagic()
	if cb == nil || periodMs == 0 {
		return StatusError(ErrInvalidArgs)
	}
	k.mu.Lock()
	deadline := k.nowMsLocked() + periodMs
	k.armOneshotLocked(t, deadline, periodMs, cb)
	k.mu.Unlock()
	return StatusOK
}

// CancelTimer unlinks t. If t's callback is currently executing on
// another goroutine (the HAL's interrupt-delivery context), CancelTimer
// blocks until it completes, so that by the time it returns the caller
// may safely free or reuse t — the "cancel safety" property of §8.
func (k *Kernel) CancelTimer(t *Timer) Status {
	t.checkMagic()
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.timers.cond == nil {
		k.timers.cond = sync.NewCond(&k.mu)
	}
	for t.inFlight {
		k.timers.cond.Wait()
	}
	if t.linked {
		wasHead := k.timers.head == t
		k.timers.remove(t)
		if wasHead {
			k.rearmHeadLocked()
		}
	}
	return StatusOK
}

func (k *Kernel) rearmHeadLocked() {
	if k.timers.head == nil {
		k.hal.DisableOneshot()
		return
	}
	k.hal.ArmOneshot(k.timers.head.deadline, k.onHWExpire)
}

// onHWExpire is invoked by the HAL from interrupt-delivery context when
// the hardware one-shot fires. Per §4.5, it pops every timer with
// deadline ≤ now, re-inserting periodic ones before invoking their
// callback so a callback that cancels "itself" sees an already-unlinked
// timer (the "pop before invoking" contract of the DESIGN NOTES'
// callback re-entrancy item), invokes each callback with interrupts
// still logically disabled, then re-arms the hardware to the new head.
func (k *Kernel) onHWExpire() {
	k.mu.Lock()
	now := k.nowMsLocked()
	var due []*Timer
	for {
		head := k.timers.head
		if head == nil || head.deadline > now {
			break
		}
		k.timers.remove(head)
		if head.period != 0 {
			head.deadline += head.period
			k.timers.insert(head)
		}
		head.inFlight = true
		k.logEventLocked(EventTimerFire, ^uint32(0), 0)
		due = append(due, head)
	}
	k.mu.Unlock()

	for _, t := range due {
		t.cb()
		k.mu.Lock()
		t.inFlight = false
		if k.timers.cond != nil {
			k.timers.cond.Broadcast()
		}
		k.mu.Unlock()
	}

	k.mu.Lock()
	k.rearmHeadLocked()
	k.mu.Unlock()
}
