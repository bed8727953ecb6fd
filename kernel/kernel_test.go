package kernel_test

import (
	"context"
	"testing"
	"time"

	"github.com/littlekernel/lk-sub014/hal"
	"github.com/littlekernel/lk-sub014/kernel"
)

// bootTestKernel boots a kernel with ncpus simulated CPUs and returns
// it already running; cleanup stops it when the test ends.
func bootTestKernel(t *testing.T, ncpus uint32) *kernel.Kernel {
	t.Helper()
	h := hal.NewSimHAL(ncpus)
	k := kernel.New(h, ncpus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		k.Main(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})

	// Give CPU 0's idle thread a moment to actually start looping
	// before the test starts creating/resuming worker threads.
	time.Sleep(5 * time.Millisecond)
	return k
}
