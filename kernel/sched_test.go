package kernel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlekernel/lk-sub014/kernel"
)

// TestPriorityPreemption is scenario S2: a low-priority thread spins
// incrementing a counter; once a higher-priority thread becomes Ready
// it must get to run while the low-priority thread is still spinning.
// The test checks that the high-priority thread ran; it does not
// measure the low-priority counter.
// As documented on PreemptionCheck, a goroutine that never blocks
// cannot be asynchronously suspended by this implementation, so the
// busy loop cooperates by calling PreemptionCheck at each iteration —
// the one deliberate divergence from real preemptive hardware.
func TestPriorityPreemption(t *testing.T) {
	k := bootTestKernel(t, 1)

	var counter atomic.Int64
	var highRan atomic.Bool
	stop := make(chan struct{})

	low, status := k.Create("low", func(self *kernel.Thread, arg any) int {
		for {
			select {
			case <-stop:
				return 0
			default:
			}
			counter.Add(1)
			k.PreemptionCheck(self)
		}
	}, nil, 5, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(low).OK())

	time.Sleep(20 * time.Millisecond)

	highDone := make(chan struct{})
	high, status := k.Create("high", func(self *kernel.Thread, arg any) int {
		highRan.Store(true)
		close(highDone)
		return 0
	}, nil, 20, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(high).OK())

	select {
	case <-highDone:
	case <-time.After(time.Second):
		t.Fatal("higher-priority thread never ran")
	}
	assert.True(t, highRan.Load())

	close(stop)
}

// TestSleepPrecision is scenario S3: 8 threads each sleep 50ms and each
// must wake no earlier than 50ms and no later than 80ms after its call;
// the order of the wakes is not checked.
func TestSleepPrecision(t *testing.T) {
	k := bootTestKernel(t, 1)

	const n = 8
	type wake struct {
		id  int
		dur time.Duration
	}
	results := make(chan wake, n)

	for i := 0; i < n; i++ {
		id := i
		th, status := k.Create("sleeper", func(self *kernel.Thread, arg any) int {
			start := time.Now()
			k.Sleep(self, 50)
			results <- wake{id: id, dur: time.Since(start)}
			return 0
		}, nil, 10, 4096)
		require.True(t, status.OK())
		require.True(t, k.Resume(th).OK())
	}

	for i := 0; i < n; i++ {
		select {
		case w := <-results:
			assert.GreaterOrEqual(t, w.dur.Milliseconds(), int64(50))
			assert.LessOrEqual(t, w.dur.Milliseconds(), int64(80))
		case <-time.After(2 * time.Second):
			t.Fatal("not every sleeper woke")
		}
	}
}

// TestWaitQueueOrdering is property 2: when A blocks before B with
// pA >= pB, wake_one releases A first.
func TestWaitQueueOrdering(t *testing.T) {
	k := bootTestKernel(t, 1)
	wq := kernel.NewWaitQueue()

	order := make(chan string, 2)
	a, status := k.Create("A", func(self *kernel.Thread, arg any) int {
		k.Block(wq, self, kernel.Infinite())
		order <- "A"
		return 0
	}, nil, 15, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(a).OK())
	time.Sleep(5 * time.Millisecond)

	b, status := k.Create("B", func(self *kernel.Thread, arg any) int {
		k.Block(wq, self, kernel.Infinite())
		order <- "B"
		return 0
	}, nil, 15, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(b).OK())
	time.Sleep(5 * time.Millisecond)

	k.WakeOne(wq, kernel.StatusOK, true)
	select {
	case first := <-order:
		assert.Equal(t, "A", first)
	case <-time.After(time.Second):
		t.Fatal("wake_one never released anyone")
	}

	k.WakeOne(wq, kernel.StatusOK, true)
	select {
	case second := <-order:
		assert.Equal(t, "B", second)
	case <-time.After(time.Second):
		t.Fatal("second wake_one never released anyone")
	}
}

// TestNoLostWakeup is property 3: a wake strictly after block always
// reaches the blocked thread.
func TestNoLostWakeup(t *testing.T) {
	k := bootTestKernel(t, 1)
	wq := kernel.NewWaitQueue()
	woke := make(chan kernel.Status, 1)

	th, status := k.Create("blocker", func(self *kernel.Thread, arg any) int {
		woke <- k.Block(wq, self, kernel.Infinite())
		return 0
	}, nil, 10, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(th).OK())

	require.Eventually(t, func() bool {
		return th.State() == kernel.StateBlocked
	}, time.Second, time.Millisecond)

	k.WakeOne(wq, kernel.StatusOK, true)

	select {
	case st := <-woke:
		assert.True(t, st.OK())
	case <-time.After(time.Second):
		t.Fatal("wakeup lost")
	}
}
