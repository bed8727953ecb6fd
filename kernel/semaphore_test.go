package kernel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlekernel/lk-sub014/kernel"
)

// TestPingPong is scenario S1: two priority-10 threads alternately post
// each other's semaphore, A seeded with one post, for 1,000 rounds.
func TestPingPong(t *testing.T) {
	k := bootTestKernel(t, 1)

	const rounds = 1000
	semA := k.NewSemaphore(1) // A starts "holding" the first post
	semB := k.NewSemaphore(0)

	doneA := make(chan int, 1)
	doneB := make(chan int, 1)

	a1, status := k.Create("A", func(self *kernel.Thread, arg any) int {
		count := 0
		for count < rounds {
			st := semA.Wait(self, kernel.Infinite())
			if !st.OK() {
				break
			}
			count++
			semB.Post(true)
		}
		doneA <- count
		return 0
	}, nil, 10, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(a1).OK())

	b1, status := k.Create("B", func(self *kernel.Thread, arg any) int {
		count := 0
		for count < rounds {
			st := semB.Wait(self, kernel.Infinite())
			if !st.OK() {
				break
			}
			count++
			if count < rounds {
				semA.Post(true)
			}
		}
		doneB <- count
		return 0
	}, nil, 10, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(b1).OK())

	a := <-doneA
	b := <-doneB
	assert.Equal(t, rounds, a)
	assert.Equal(t, rounds, b)
}

func TestSemaphoreTryWait(t *testing.T) {
	k := bootTestKernel(t, 1)
	s := k.NewSemaphore(1)
	require.True(t, s.TryWait().OK())
	assert.False(t, s.TryWait().OK())
	s.Post(false)
	require.True(t, s.TryWait().OK())
}

func TestSemaphoreWaitTimesOut(t *testing.T) {
	k := bootTestKernel(t, 1)
	s := k.NewSemaphore(0)

	resultCh := make(chan kernel.Status, 1)
	waiter, status := k.Create("waiter", func(self *kernel.Thread, arg any) int {
		resultCh <- s.Wait(self, kernel.After(20))
		return 0
	}, nil, 10, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(waiter).OK())

	select {
	case st := <-resultCh:
		assert.ErrorIs(t, st.Err(), kernel.ErrTimedOut)
	case <-time.After(time.Second):
		t.Fatal("wait never timed out")
	}
	assert.Equal(t, int64(0), s.Count())
}
