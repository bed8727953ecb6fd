package kernel

import "github.com/littlekernel/lk-sub014/hal"

// irqHandlerKey identifies one (cpu, kind) registration slot, tracked
// here rather than in hal.SimHAL because the HAL's own RegisterIRQHandler
// silently replaces whatever was registered before — fine for a bare
// hardware model, but the core itself never wants a second registration
// for the same cpu/kind to go unnoticed.
type irqHandlerKey struct {
	cpu  uint32
	kind hal.IPIKind
}

// RegisterIRQHandler installs handler for IPIs of kind arriving on cpu,
// wrapped in the entry/exit contract of §4.7: preemption is disabled
// for the duration of the handler, in_irq is set so the preemption gate
// can tell IRQ context from thread context, and the handler's verdict
// (plus anything that went pending while disabled) decides whether a
// reschedule is due on exit. Registering a second handler for the same
// (cpu, kind) returns ErrAlreadyBound instead of replacing the first.
//
// One honest divergence from real hardware, documented here and in
// DESIGN.md: on real hardware, "call thread_preempt" at step 6
// physically interrupts whatever instruction the CPU was mid-executing.
// This process has no equivalent way to suspend an arbitrary goroutine
// from the outside, so step 6 here only guarantees pendingReschedule is
// set on the interrupted thread — the thread itself becomes
// preemptible again the next time it calls Yield, Block, Sleep, Exit,
// or PreemptionCheck. A thread that never calls any of those while
// running is, in this implementation only, not actually preemptible.
func (k *Kernel) RegisterIRQHandler(cpu uint32, kind hal.IPIKind, handler hal.IRQHandler) Status {
	key := irqHandlerKey{cpu: cpu, kind: kind}

	k.mu.Lock()
	if k.irqHandlers == nil {
		k.irqHandlers = make(map[irqHandlerKey]bool)
	}
	if k.irqHandlers[key] {
		k.mu.Unlock()
		return StatusError(ErrAlreadyBound)
	}
	k.irqHandlers[key] = true
	k.mu.Unlock()

	k.hal.RegisterIRQHandler(cpu, kind, func() hal.IRQResult {
		return k.dispatchIRQ(cpu, handler)
	})
	return StatusOK
}

// dispatchIRQ drives the preemption gate through its real entry points
// (PreemptDisable/PreemptEnableNoResched) rather than duplicating the
// disable-count/pending-reschedule bookkeeping inline, so preempt.go's
// invariants are the actual mechanism, not a second copy of it.
func (k *Kernel) dispatchIRQ(cpuID uint32, handler hal.IRQHandler) hal.IRQResult {
	k.mu.Lock()
	cpu := k.cpus[cpuID]
	cpu.inIRQ = true
	self := cpu.current
	k.mu.Unlock()

	if self == nil {
		// No thread is current on this CPU yet. Can't happen once a CPU
		// has finished booting (dispatchIRQ only runs in response to a
		// delivered IPI, and nothing sends one before then), but there
		// is nothing to gate if it ever did.
		result := handler()
		k.mu.Lock()
		cpu.inIRQ = false
		k.mu.Unlock()
		return result
	}

	k.PreemptDisable(self)
	result := handler()
	resched := k.PreemptEnableNoResched(self)

	k.mu.Lock()
	cpu.inIRQ = false
	if result == hal.IRQReschedule || resched {
		self.pendingReschedule = true
	}
	k.mu.Unlock()

	return result
}
