package kernel

// ThreadStats returns a snapshot of t's observational counters (§4.2).
func (k *Kernel) ThreadStats(t *Thread) ThreadStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.stats
}

// CPUStats returns a snapshot of cpu's observational counters (§4.2).
func (k *Kernel) CPUStats(cpu uint32) CPUStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cpus[cpu].stats
}

// KernelStats is a whole-kernel snapshot, handy for the CLI's shutdown
// report and for test assertions.
type KernelStats struct {
	NumThreads   int
	NumCPUs      uint32
	Reschedulers uint64
	PerCPU       []CPUStats
}

// Stats returns a snapshot of kernel-wide counters.
func (k *Kernel) Stats() KernelStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := KernelStats{
		NumThreads:   len(k.threads),
		NumCPUs:      uint32(len(k.cpus)),
		Reschedulers: k.reschedulers,
		PerCPU:       make([]CPUStats, len(k.cpus)),
	}
	for i, cpu := range k.cpus {
		s.PerCPU[i] = cpu.stats
	}
	return s
}
