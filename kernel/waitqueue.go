package kernel

// threadList is a plain intrusive doubly-linked list of threads, reusing
// the qNext/qPrev fields every Thread already carries. Unlike the
// teacher's List (alphadose/zenq's list.go / select_list.go), this one
// is not lock-free: every run queue and wait queue in this kernel is
// mutated exclusively under Kernel.mu, matching spec §3's
// "all mutations ... occur with the global scheduler spinlock held"
// invariant, so a CAS-based lock-free list would buy nothing but
// complexity. What the teacher's design contributes here is the shape:
// an intrusive container that owns only list order, never the node's
// storage — each Thread is the node, and is a member of at most one
// list at a time (enforced by the same "on at most one of: a run
// queue, a wait queue, ..." invariant the thread descriptor documents).
type threadList struct {
	head, tail *Thread
	len        int
}

func newThreadList() threadList { return threadList{} }

func (l *threadList) empty() bool { return l.len == 0 }

func (l *threadList) pushBack(t *Thread) {
	if t.inQueue {
		fatal("threadList: thread already linked into a queue", t)
	}
	t.qNext, t.qPrev = nil, l.tail
	if l.tail != nil {
		l.tail.qNext = t
	} else {
		l.head = t
	}
	l.tail = t
	t.inQueue = true
	l.len++
}

// insertByPriority inserts t ordered by descending priority (highest
// first), FIFO among equal priorities — the "strict priority order...
// ties broken FIFO" rule of §4.3.
func (l *threadList) insertByPriority(t *Thread) {
	if t.inQueue {
		fatal("threadList: thread already linked into a queue", t)
	}
	var mark *Thread
	for n := l.head; n != nil; n = n.qNext {
		if n.priority < t.priority {
			mark = n
			break
		}
	}
	if mark == nil {
		t.qNext, t.qPrev = nil, l.tail
		if l.tail != nil {
			l.tail.qNext = t
		} else {
			l.head = t
		}
		l.tail = t
	} else {
		t.qNext = mark
		t.qPrev = mark.qPrev
		if mark.qPrev != nil {
			mark.qPrev.qNext = t
		} else {
			l.head = t
		}
		mark.qPrev = t
	}
	t.inQueue = true
	l.len++
}

func (l *threadList) popFront() *Thread {
	t := l.head
	if t == nil {
		return nil
	}
	l.remove(t)
	return t
}

func (l *threadList) remove(t *Thread) {
	if !t.inQueue {
		return
	}
	if t.qPrev != nil {
		t.qPrev.qNext = t.qNext
	} else {
		l.head = t.qNext
	}
	if t.qNext != nil {
		t.qNext.qPrev = t.qPrev
	} else {
		l.tail = t.qPrev
	}
	t.qNext, t.qPrev = nil, nil
	t.inQueue = false
	l.len--
}

// WaitQueue is the shared blocking primitive embedded in every
// synchronization object (spec §4.3): mutex, semaphore, event, and
// thread join all delegate here. Sleep does not; a sleeping thread
// waits on its own timer alone. Waiters are ordered strictly by
// priority, FIFO within a priority.
type WaitQueue struct {
	waiters threadList
}

func newWaitQueue() WaitQueue { return WaitQueue{waiters: newThreadList()} }

// NewWaitQueue returns an initialized, empty wait queue.
func NewWaitQueue() *WaitQueue {
	wq := &WaitQueue{waiters: newThreadList()}
	return wq
}

// Count returns the number of currently blocked waiters.
func (wq *WaitQueue) Count() int {
	return wq.waiters.len
}

// Block links self into wq in priority order, marks it Blocked, and
// reschedules self's CPU. It returns once self has been woken, either
// by WakeOne/WakeAll (OK or the status they were given, typically
// Interrupted), by timeout (TimedOut), or by Destroy (Interrupted).
//
// self must be the calling thread — the "current thread" capability is
// always the caller's own handle in this package, never recovered by
// inspecting the calling goroutine (see the hal package doc comment).
func (k *Kernel) Block(wq *WaitQueue, self *Thread, timeout Timeout) Status {
	self.checkMagic()
	k.mu.Lock()
	if self.state != StateRunning {
		k.mu.Unlock()
		fatal("Block: caller is not Running", self)
	}

	var tm *Timer
	if timeout.finite {
		tm = k.newTimerLocked()
		deadline := k.nowMsLocked() + timeout.ms
		k.armOneshotLocked(tm, deadline, 0, wakeTimeoutCB(k, self, wq))
	}

	self.state = StateBlocked
	self.wakeStatus = StatusOK
	wq.waiters.insertByPriority(self)
	cpu := self.cpu
	k.mu.Unlock()

	k.reschedule(cpu, self)

	k.mu.Lock()
	status := self.wakeStatus
	k.mu.Unlock()

	if tm != nil {
		k.CancelTimer(tm)
	}
	return status
}

// wakeTimeoutCB builds the timer callback that fires when a timed
// Block's deadline expires: if self is still linked into wq, unlink it
// and wake it with TimedOut. The single atomic check under Kernel.mu
// is what resolves the normal-wake/timeout race described in §4.3 and
// §5: whichever side first observes self Blocked and unlinks it owns
// the wake.
func wakeTimeoutCB(k *Kernel, self *Thread, wq *WaitQueue) func() {
	return func() {
		k.mu.Lock()
		if self.state == StateBlocked && self.inQueue {
			wq.waiters.remove(self)
			self.state = StateReady
			self.wakeStatus = StatusTimedOut
			k.enqueueReadyLocked(self)
			k.maybePreemptLocked(self)
		}
		k.mu.Unlock()
	}
}

// WakeOne dequeues the highest-priority waiter (head, since the list is
// priority-ordered), gives it status, and transitions it to Ready. It
// returns 1 if a thread was woken, 0 if the queue was empty. If
// reschedule is true and the newly-Ready thread outranks the Running
// thread on some eligible CPU, a reschedule is requested there.
func (k *Kernel) WakeOne(wq *WaitQueue, status Status, reschedule bool) int {
	return k.wakeOneRT(wq, status, reschedule, false)
}

// wakeOneRT is WakeOne with an explicit realtime flag, letting callers
// that know they're servicing a realtime wakeup (mirroring
// original_source/kernel/mp.c's MP_RESCHEDULE_FLAG_REALTIME) reach a
// realtime CPU that a plain wakeup would otherwise avoid disturbing.
func (k *Kernel) wakeOneRT(wq *WaitQueue, status Status, reschedule, realtime bool) int {
	k.mu.Lock()
	n := k.wakeOneLocked(wq, status, reschedule, realtime)
	k.mu.Unlock()
	return n
}

// wakeOneLocked is wakeOneRT's critical section, exposed separately so a
// caller that must decide-and-wake atomically against some other state
// it holds the lock for (Event.SignalRT's auto-reset branch) can do so
// without releasing k.mu between the decision and the pop.
func (k *Kernel) wakeOneLocked(wq *WaitQueue, status Status, reschedule, realtime bool) int {
	t := wq.waiters.popFront()
	if t == nil {
		return 0
	}
	t.state = StateReady
	t.wakeStatus = status
	k.enqueueReadyLocked(t)
	if reschedule {
		k.maybePreemptFromLocked(t, ^uint32(0), realtime)
	}
	return 1
}

// WakeAll drains wq, waking every waiter with status.
func (k *Kernel) WakeAll(wq *WaitQueue, status Status, reschedule bool) int {
	return k.wakeAllRT(wq, status, reschedule, false)
}

// wakeAllRT is WakeAll with an explicit realtime flag; see wakeOneRT.
func (k *Kernel) wakeAllRT(wq *WaitQueue, status Status, reschedule, realtime bool) int {
	k.mu.Lock()
	n := k.wakeAllLocked(wq, status, reschedule, realtime)
	k.mu.Unlock()
	return n
}

// wakeAllLocked is wakeAllRT's critical section; see wakeOneLocked.
func (k *Kernel) wakeAllLocked(wq *WaitQueue, status Status, reschedule, realtime bool) int {
	n := 0
	for {
		t := wq.waiters.popFront()
		if t == nil {
			break
		}
		t.state = StateReady
		t.wakeStatus = status
		k.enqueueReadyLocked(t)
		n++
		if reschedule {
			k.maybePreemptFromLocked(t, ^uint32(0), realtime)
		}
	}
	return n
}

// DestroyWaitQueue wakes every waiter with Interrupted. Per §4.3,
// destroying a wait queue that embedding objects still consider "in
// use" is the caller's bug to avoid; this call itself never fails.
func (k *Kernel) DestroyWaitQueue(wq *WaitQueue) {
	k.WakeAll(wq, StatusInterrupted, true)
}
