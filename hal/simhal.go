package hal

import (
	"sync"
	"sync/atomic"
	"time"
)

// SimHAL is the default HAL backend: a process-simulated machine with a
// monotonic clock derived from time.Now, a single hardware one-shot
// modeled with time.AfterFunc, and IPI delivery modeled as a call into
// the registered handler on a fresh goroutine, without waiting for it —
// there is no real cross-CPU interrupt to simulate beyond "run this
// callback soon, on some goroutine other than the sender's".
type SimHAL struct {
	start time.Time
	ncpus uint32

	oneshotMu sync.Mutex
	oneshot   *time.Timer
	armedAt   uint32

	irqMu    sync.Mutex
	handlers map[irqKey]IRQHandler

	intsMu    sync.Mutex
	intsState map[uint32]bool
}

type irqKey struct {
	cpu  uint32
	kind IPIKind
}

// NewSimHAL constructs a simulated machine with ncpus CPUs.
func NewSimHAL(ncpus uint32) *SimHAL {
	return &SimHAL{
		start:     time.Now(),
		ncpus:     ncpus,
		handlers:  make(map[irqKey]IRQHandler),
		intsState: make(map[uint32]bool, ncpus),
	}
}

func (h *SimHAL) NowMs() uint32 { return uint32(time.Since(h.start).Milliseconds()) }
func (h *SimHAL) NowUs() uint64 { return uint64(time.Since(h.start).Microseconds()) }

func (h *SimHAL) ArmOneshot(deadlineMs uint32, cb TimerCallback) {
	h.oneshotMu.Lock()
	defer h.oneshotMu.Unlock()
	if h.oneshot != nil {
		h.oneshot.Stop()
	}
	h.armedAt = deadlineMs
	now := h.NowMs()
	var delay time.Duration
	if deadlineMs > now {
		delay = time.Duration(deadlineMs-now) * time.Millisecond
	}
	h.oneshot = time.AfterFunc(delay, cb)
}

func (h *SimHAL) DisableOneshot() {
	h.oneshotMu.Lock()
	defer h.oneshotMu.Unlock()
	if h.oneshot != nil {
		h.oneshot.Stop()
		h.oneshot = nil
	}
}

// DisableInts, InterruptRestore, and IntsDisabled model interrupt
// masking with a per-CPU bool guarded by its own mutex rather than a
// real CPU flag register — sufficient to give SpinLock and the IRQ
// entry/exit contract something to save and restore, without claiming
// any actual signal delivery is suppressed (goroutines are never really
// "interrupted" by this HAL; SendIPI and the one-shot run their
// callbacks on other goroutines regardless of this state).
func (h *SimHAL) DisableInts(cpu uint32) IntState {
	h.intsMu.Lock()
	defer h.intsMu.Unlock()
	prev := h.intsState[cpu]
	h.intsState[cpu] = true
	if prev {
		return IntState(1)
	}
	return IntState(0)
}

func (h *SimHAL) InterruptRestore(cpu uint32, state IntState) {
	h.intsMu.Lock()
	defer h.intsMu.Unlock()
	h.intsState[cpu] = state != 0
}

func (h *SimHAL) IntsDisabled(cpu uint32) bool {
	h.intsMu.Lock()
	defer h.intsMu.Unlock()
	return h.intsState[cpu]
}

func (h *SimHAL) NumCPUs() uint32 { return h.ncpus }

func (h *SimHAL) SendIPI(target CPUMask, kind IPIKind) {
	for cpu := uint32(0); cpu < h.ncpus; cpu++ {
		if target&(CPUMask(1)<<cpu) == 0 {
			continue
		}
		h.irqMu.Lock()
		handler, ok := h.handlers[irqKey{cpu: cpu, kind: kind}]
		h.irqMu.Unlock()
		if !ok {
			continue
		}
		// Deliver on a fresh goroutine: a real IPI preempts whatever
		// the target CPU was doing rather than queuing behind it, and
		// the target handler must not run on the sender's goroutine
		// (the sender may itself be a thread holding the scheduler
		// lock's caller-side invariants).
		go handler()
	}
}

func (h *SimHAL) RegisterIRQHandler(cpu uint32, kind IPIKind, handler IRQHandler) {
	h.irqMu.Lock()
	defer h.irqMu.Unlock()
	h.handlers[irqKey{cpu: cpu, kind: kind}] = handler
}

var pinnedGoroutines atomic.Int64

// PinCurrentGoroutine binds the calling goroutine to cpu using the
// platform affinity hook in affinity_linux.go / affinity_other.go. The
// simulated machine does not otherwise need real pinning to behave
// correctly — it exists so a consumer that cares about real cache/NUMA
// locality on Linux can get it.
func (h *SimHAL) PinCurrentGoroutine(cpu uint32) {
	pinnedGoroutines.Add(1)
	pinCurrentGoroutine(cpu)
}
