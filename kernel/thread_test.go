package kernel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlekernel/lk-sub014/kernel"
)

func TestCreateResumeRuns(t *testing.T) {
	k := bootTestKernel(t, 1)

	var ran atomic.Bool
	th, status := k.Create("t1", func(self *kernel.Thread, arg any) int {
		ran.Store(true)
		return 7
	}, nil, 10, 4096)
	require.True(t, status.OK())

	require.True(t, k.Resume(th).OK())

	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

// TestJoinReturnsExitCode is scenario S6: a thread returning 42 after a
// short sleep, joined by another thread.
func TestJoinReturnsExitCode(t *testing.T) {
	k := bootTestKernel(t, 1)

	worker, status := k.Create("worker", func(self *kernel.Thread, arg any) int {
		k.Sleep(self, 10)
		return 42
	}, nil, 10, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(worker).OK())

	resultCh := make(chan int, 1)
	joiner, status := k.Create("joiner", func(self *kernel.Thread, arg any) int {
		ret, st := k.Join(self, worker, kernel.Infinite())
		require.True(t, st.OK())
		resultCh <- ret
		return 0
	}, nil, 10, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(joiner).OK())

	select {
	case ret := <-resultCh:
		assert.Equal(t, 42, ret)
	case <-time.After(time.Second):
		t.Fatal("join never returned")
	}
}

// TestDetachReapsWithoutJoin is the detach half of S6: after the thread
// exits, its stats are no longer reachable because its descriptor was
// reaped, so ThreadStats would be operating on a thread no caller could
// have obtained again through the thread table. It checks reaping
// actually happened, via the kernel's live thread count dropping back
// to its pre-create baseline, rather than stopping at StateDeath — a
// thread sitting unreaped in kernel.zombieQueue would still read
// StateDeath forever, since reaping only removes it from the thread
// table and never mutates the already-unreachable descriptor itself.
func TestDetachReapsWithoutJoin(t *testing.T) {
	k := bootTestKernel(t, 1)

	baseline := k.Stats().NumThreads

	worker, status := k.Create("detached", func(self *kernel.Thread, arg any) int {
		k.Sleep(self, 10)
		return 1
	}, nil, 10, 4096)
	require.True(t, status.OK())
	require.True(t, k.Detach(worker).OK())
	require.True(t, k.Resume(worker).OK())

	require.Eventually(t, func() bool {
		return worker.State() == kernel.StateDeath
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		return k.Stats().NumThreads == baseline
	}, time.Second, time.Millisecond, "detached thread was never reaped")
}

func TestSetPrioritySucceedsOnSuspendedThread(t *testing.T) {
	k := bootTestKernel(t, 1)

	results := make(chan int, 1)
	low, status := k.Create("low", func(self *kernel.Thread, arg any) int {
		results <- 1
		return 0
	}, nil, 5, 4096)
	require.True(t, status.OK())

	require.True(t, k.SetPriority(low, 20).OK())
	assert.Equal(t, uint8(20), low.Priority())
	require.True(t, k.Resume(low).OK())

	select {
	case v := <-results:
		assert.Equal(t, 1, v)
	case <-time.After(time.Second):
		t.Fatal("thread never ran after priority change")
	}
}

func TestSuspendUnreadyThreadIsNotReady(t *testing.T) {
	k := bootTestKernel(t, 1)

	th, status := k.Create("t", func(self *kernel.Thread, arg any) int { return 0 }, nil, 5, 4096)
	require.True(t, status.OK())

	st := k.Suspend(th)
	assert.False(t, st.OK())
	assert.ErrorIs(t, st.Err(), kernel.ErrNotReady)
}
