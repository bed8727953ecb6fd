//go:build linux

package hal

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinCurrentGoroutine locks the calling goroutine to its current OS
// thread and restricts that thread's CPU affinity to cpu, the real
// analogue of arch_curr_cpu_num()'s per-CPU register on an actual SMP
// target. Best-effort: an error here (e.g. cpu beyond the host's
// topology, or insufficient privilege) is silently ignored, since §1
// requires the core to run correctly with or without real CPU pinning.
func pinCurrentGoroutine(cpu uint32) {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(int(cpu % uint32(runtime.NumCPU())))
	_ = unix.SchedSetaffinity(0, &set)
}
