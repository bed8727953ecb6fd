package kernel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/littlekernel/lk-sub014/hal"
)

// idleEntry is the body of every per-CPU idle thread. It never returns;
// pickNextLocked falls back to it whenever a CPU's run queue has
// nothing eligible, and its only job once dispatched is to immediately
// try to reschedule again, the way a real idle loop executes a halt
// instruction waiting for the next interrupt. runtime.Gosched is this
// implementation's stand-in for that halt, borrowed from the same
// spin/yield idiom the parking code in this package already uses.
func idleEntry(self *Thread, arg any) int {
	k := arg.(*Kernel)
	for {
		k.reschedule(self.cpu, self)
		runtime.Gosched()
	}
}

// bootCPU constructs cpu's idle thread, marks the CPU active, runs the
// CPU's init pass, then hands the idle thread its first dispatch and
// blocks until ctx is done. The idle loop itself runs on the idle
// thread's own goroutine; this goroutine stands for the simulated CPU,
// per hal's doc comment about CPU identity being a capability the
// calling goroutine holds by construction.
func (k *Kernel) bootCPU(ctx context.Context, cpuID uint32, onReady func()) error {
	k.hal.PinCurrentGoroutine(cpuID)

	idle := k.createIdleThread("idle", idleEntry, k, 4096)

	k.mu.Lock()
	cpu := k.cpus[cpuID]
	cpu.idle = idle
	cpu.current = idle
	idle.state = StateRunning
	idle.cpu = cpu
	k.mu.Unlock()

	k.SetCPUActive(cpuID, true)

	flags := InitFlagSecondaryCPUs
	if cpuID == 0 {
		flags = InitFlagPrimaryCPU
	}
	k.runInitLevelRange(cpuID, flags, InitLevelEarliest, InitLevelLast)

	if onReady != nil {
		onReady()
	}

	// Hand the idle thread the right to actually run its loop; this
	// call does not return until the process is torn down (ctx done)
	// or the kernel is never asked to stop, matching "enter the
	// scheduler loop" never returning in the original boot sequence.
	idle.resumeCh <- struct{}{}
	<-ctx.Done()
	return nil
}

// Main boots every simulated CPU and runs until ctx is cancelled,
// mirroring lk_main/lk_secondary_cpu_entry of §4.9: CPU 0 runs the
// PRIMARY init flags across every level, each other CPU runs SECONDARY
// init once it is pinned and has its own idle thread, and all of them
// then become their idle loop. Because a hook runs at most once per
// flag bit (see RunLevel), a SECONDARY hook runs on whichever secondary
// CPU reaches it first, not on every secondary CPU. Call
// RegisterInitHook for every level
// before calling Main; registering afterwards panics.
func (k *Kernel) Main(ctx context.Context) error {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		fatal("Main: kernel already started", k)
	}
	k.started = true
	ncpus := uint32(len(k.cpus))
	k.mu.Unlock()

	if !k.RegisterIRQHandler(0, hal.IPIReschedule, func() hal.IRQResult { return hal.IRQReschedule }).OK() {
		fatal("Main: IPI_RESCHEDULE already bound on cpu 0", k)
	}
	for cpu := uint32(1); cpu < ncpus; cpu++ {
		if !k.RegisterIRQHandler(cpu, hal.IPIReschedule, func() hal.IRQResult { return hal.IRQReschedule }).OK() {
			fatal("Main: IPI_RESCHEDULE already bound on cpu", cpu)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for cpu := uint32(0); cpu < ncpus; cpu++ {
		cpu := cpu
		g.Go(func() error {
			return k.bootCPU(gctx, cpu, nil)
		})
	}

	reaperStop := make(chan struct{})
	g.Go(func() error {
		k.runReaper(reaperStop)
		return nil
	})
	go func() {
		<-gctx.Done()
		close(reaperStop)
	}()

	return g.Wait()
}
