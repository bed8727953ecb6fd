package kernel

const mutexMagic = 0x6d757478 // 'mutx'

// Mutex is a non-recursive mutual-exclusion lock, layered on WaitQueue
// per §4.4. Release hands ownership directly to the head waiter rather
// than simply clearing the holder and letting the next acquirer race
// for it — this is what avoids convoys and unlock-then-contend races.
type Mutex struct {
	magic  uint32
	k      *Kernel
	wq     WaitQueue
	holder *Thread // nil iff unheld
}

// NewMutex returns an initialized, unheld mutex bound to k.
func (k *Kernel) NewMutex() *Mutex {
	return &Mutex{magic: mutexMagic, k: k, wq: newWaitQueue()}
}

func (m *Mutex) checkMagic() {
	if m.magic != mutexMagic {
		fatal("mutex: corrupt descriptor (bad magic)", m)
	}
}

// Acquire blocks self until the mutex is held by no one, then takes it.
// self is the calling thread's own handle, per the current-thread
// capability rule documented on EntryFunc.
func (m *Mutex) Acquire(self *Thread, timeout Timeout) Status {
	m.checkMagic()
	self.checkMagic()
	m.k.mu.Lock()
	if m.holder == nil {
		m.holder = self
		m.k.mu.Unlock()
		return StatusOK
	}
	if m.holder == self {
		m.k.mu.Unlock()
		fatal("mutex: non-recursive acquire by current holder", m)
	}
	m.k.mu.Unlock()

	status := m.k.Block(&m.wq, self, timeout)
	if !status.OK() {
		return status
	}
	// The releasing thread handed ownership directly to self; see
	// Release below. self is now the holder without having raced
	// anyone else for it.
	return StatusOK
}

// Release gives the mutex up. If a thread is waiting, ownership passes
// straight to the highest-priority waiter (FIFO among equal priority);
// otherwise the mutex becomes unheld. Releasing a mutex self does not
// hold is a programming error and is fatal, per §7.
func (m *Mutex) Release(self *Thread) {
	m.checkMagic()
	self.checkMagic()
	m.k.mu.Lock()
	if m.holder != self {
		m.k.mu.Unlock()
		fatal("mutex: release by non-holder", m)
	}

	next := m.wq.waiters.popFront()
	if next == nil {
		m.holder = nil
		m.k.mu.Unlock()
		return
	}
	m.holder = next
	next.state = StateReady
	next.wakeStatus = StatusOK
	m.k.enqueueReadyLocked(next)
	m.k.maybePreemptLocked(next)
	m.k.mu.Unlock()
}

// Holder reports the current owner, or nil if unheld. Observational only.
func (m *Mutex) Holder() *Thread {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	return m.holder
}
