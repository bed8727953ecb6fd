package kernel

import "github.com/littlekernel/lk-sub014/hal"

// SetCPUActive marks cpu as eligible (or not) to have threads
// dispatched to it, per §4.10's active_cpus mask. bootCPU calls this
// for every CPU, primary included, once that CPU's idle thread is
// current and before its init pass runs.
func (k *Kernel) SetCPUActive(cpu uint32, active bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cpus[cpu].active = active
	if active {
		k.activeCPUs |= hal.CPUMask(1) << cpu
	} else {
		k.activeCPUs &^= hal.CPUMask(1) << cpu
	}
}

// SetRealtime marks cpu as one the scheduler should avoid disturbing
// with non-realtime reschedule IPIs, per §4.10's realtime_cpus mask.
func (k *Kernel) SetRealtime(cpu uint32, realtime bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if realtime {
		k.realtimeCPUs |= hal.CPUMask(1) << cpu
	} else {
		k.realtimeCPUs &^= hal.CPUMask(1) << cpu
	}
}

// ActiveCPUs returns the current active_cpus mask.
func (k *Kernel) ActiveCPUs() hal.CPUMask {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.activeCPUs
}

// Reschedule issues IPI_RESCHEDULE to every CPU in target that is
// active, not self, and (unless realtime is set) not marked realtime —
// exactly the routing rule of §4.10: `active & ~self & (realtime ? all
// : ~realtime)`. It is the explicit form of the reschedule request the
// wake paths in sched.go already perform implicitly per-wakeup; this
// entry point exists for callers (tests, for example) that need to
// nudge a CPU directly rather than as a side effect of a specific
// thread becoming Ready.
func (k *Kernel) Reschedule(self uint32, target hal.CPUMask, realtime bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	routed := target & k.activeCPUs &^ (hal.CPUMask(1) << self)
	if !realtime {
		routed &^= k.realtimeCPUs
	}
	for _, cpu := range k.cpus {
		bit := hal.CPUMask(1) << cpu.id
		if routed&bit == 0 {
			continue
		}
		cpu.stats.RescheduleIPIs++
		k.reschedulers++
		k.logEventLocked(EventIPI, cpu.id, 0)
		k.hal.SendIPI(bit, hal.IPIReschedule)
	}
}

// Reschedulers returns the cumulative count of IPI_RESCHEDULE sent,
// observational only.
func (k *Kernel) Reschedulers() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.reschedulers
}
