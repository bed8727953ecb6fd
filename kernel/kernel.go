package kernel

import (
	"sync"

	"github.com/littlekernel/lk-sub014/hal"
)

// NumPriorities is the number of fixed priority levels, 0..31, per §4.2.
// Priority 0 is reserved for the per-CPU idle thread; 31 is highest.
const NumPriorities = 32

// IdlePriority is the fixed priority of every per-CPU idle thread.
const IdlePriority = 0

// maxThreads bounds the number of live thread descriptors, the
// equivalent of the original kernel's fixed-size thread struct pool:
// Create returns ErrNoMemory rather than block or grow past it.
const maxThreads = 4096

// Kernel is the single value that owns every piece of mutable core
// state: run queues, wait-queue linkage, the timer list, the thread
// table, and the MP coordinator's masks. Every mutation of that state
// happens with mu held, mirroring the global scheduler spinlock of
// spec §3's invariants. This replaces the original C kernel's file-
// scope globals with one value whose lock's critical sections are the
// only place that state is ever touched — the "kernel context" of the
// DESIGN NOTES.
type Kernel struct {
	hal hal.HAL

	mu sync.Mutex // the global scheduler spinlock

	cpus []*PerCPU

	runQueue  [NumPriorities]threadList
	readyMask uint32 // bit i set iff runQueue[i] is non-empty

	threads    map[uint64]*Thread
	nextThread uint64

	timers      timerList
	nextTimerID uint64

	activeCPUs    hal.CPUMask
	realtimeCPUs  hal.CPUMask
	reschedulers  uint64 // count of IPI_RESCHEDULE sent, observational

	initTable []*initEntry

	irqHandlers map[irqHandlerKey]bool

	evlog eventLog

	zombies zombieQueue

	// started records that Main has been called: a second Main call,
	// or RegisterInitHook after it, is fatal. No other operation
	// consults it.
	started bool
}

// New constructs a Kernel bound to h, sized for ncpus simulated CPUs.
// It does not start any CPU; call Main to boot.
func New(h hal.HAL, ncpus uint32) *Kernel {
	if ncpus == 0 {
		fatal("kernel.New: ncpus must be > 0", ncpus)
	}
	k := &Kernel{
		hal:     h,
		threads: make(map[uint64]*Thread),
	}
	k.cpus = make([]*PerCPU, ncpus)
	for i := range k.cpus {
		k.cpus[i] = &PerCPU{id: uint32(i), k: k}
	}
	for i := range k.runQueue {
		k.runQueue[i] = newThreadList()
	}
	k.timers = newTimerList()
	k.evlog = newEventLog(256)
	k.zombies = newZombieQueue()
	return k
}

// HAL exposes the kernel's hardware-abstraction backend, for code
// (timers, the CLI) that needs to read the clock directly.
func (k *Kernel) HAL() hal.HAL { return k.hal }

// NumCPUs returns the number of CPUs this kernel schedules across.
func (k *Kernel) NumCPUs() uint32 { return uint32(len(k.cpus)) }

// PerCPU holds the scheduling state that belongs to one simulated CPU:
// its current thread, its idle thread, and the in-IRQ flag consulted by
// the preemption gate.
type PerCPU struct {
	id    uint32
	k     *Kernel
	current *Thread
	idle    *Thread
	inIRQ   bool
	active  bool
	stats   CPUStats
}

// ID returns the CPU's id, 0..NumCPUs()-1.
func (c *PerCPU) ID() uint32 { return c.id }

// CPUStats are the observational per-CPU counters of §4.2.
type CPUStats struct {
	ContextSwitches uint64
	RescheduleIPIs  uint64
}
