package kernel

const semaphoreMagic = 0x73656d34 // 'sem4'

// Semaphore is a counting semaphore with a signed count, per §4.4: Wait
// decrements and blocks while the result would be negative; Post
// increments and wakes one waiter if the count was <= 0 before the
// increment.
type Semaphore struct {
	magic uint32
	k     *Kernel
	wq    WaitQueue
	count int64
}

// NewSemaphore returns an initialized semaphore with the given initial count.
func (k *Kernel) NewSemaphore(initial int64) *Semaphore {
	return &Semaphore{magic: semaphoreMagic, k: k, wq: newWaitQueue(), count: initial}
}

func (s *Semaphore) checkMagic() {
	if s.magic != semaphoreMagic {
		fatal("semaphore: corrupt descriptor (bad magic)", s)
	}
}

// Wait decrements the count; if the result is negative, blocks self
// until a matching Post.
func (s *Semaphore) Wait(self *Thread, timeout Timeout) Status {
	s.checkMagic()
	self.checkMagic()
	s.k.mu.Lock()
	s.count--
	if s.count >= 0 {
		s.k.mu.Unlock()
		return StatusOK
	}
	s.k.mu.Unlock()

	status := s.k.Block(&s.wq, self, timeout)
	if !status.OK() {
		// Give the count back: this waiter never got its unit.
		s.k.mu.Lock()
		s.count++
		s.k.mu.Unlock()
	}
	return status
}

// TryWait attempts a non-blocking Wait: succeeds only if the count was
// already positive.
func (s *Semaphore) TryWait() Status {
	s.checkMagic()
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	if s.count <= 0 {
		return StatusError(ErrNotReady)
	}
	s.count--
	return StatusOK
}

// Post increments the count and, if the count was <= 0 prior to the
// increment, wakes at most one waiter. A negative count means threads
// are blocked; at zero the wait queue is normally empty and nothing is
// woken.
func (s *Semaphore) Post(reschedule bool) Status {
	return s.PostRT(reschedule, false)
}

// PostRT is Post with an explicit realtime flag threaded into the wake
// decision, mirroring original_source/kernel/mp.c's
// MP_RESCHEDULE_FLAG_REALTIME: a realtime Post is allowed to interrupt
// a realtime CPU that a plain Post would leave undisturbed.
func (s *Semaphore) PostRT(reschedule, realtime bool) Status {
	s.checkMagic()
	s.k.mu.Lock()
	wake := s.count <= 0
	s.count++
	s.k.mu.Unlock()
	if wake {
		s.k.wakeOneRT(&s.wq, StatusOK, reschedule, realtime)
	}
	return StatusOK
}

// Count returns the current signed count. Observational only.
func (s *Semaphore) Count() int64 {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	return s.count
}
