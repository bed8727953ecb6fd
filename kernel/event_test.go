package kernel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlekernel/lk-sub014/kernel"
)

func TestManualEventWakesAllWaiters(t *testing.T) {
	k := bootTestKernel(t, 1)
	e := k.NewEvent(false)

	const n = 5
	done := make(chan kernel.Status, n)
	for i := 0; i < n; i++ {
		th, status := k.Create("waiter", func(self *kernel.Thread, arg any) int {
			done <- e.Wait(self, kernel.After(2000))
			return 0
		}, nil, 10, 4096)
		require.True(t, status.OK())
		require.True(t, k.Resume(th).OK())
	}

	time.Sleep(10 * time.Millisecond)
	require.True(t, e.Signal(true).OK())

	for i := 0; i < n; i++ {
		select {
		case st := <-done:
			assert.True(t, st.OK())
		case <-time.After(time.Second):
			t.Fatal("not every waiter woke")
		}
	}
}

func TestAutoEventWakesExactlyOne(t *testing.T) {
	k := bootTestKernel(t, 1)
	e := k.NewEvent(true)

	const n = 3
	done := make(chan kernel.Status, n)
	for i := 0; i < n; i++ {
		th, status := k.Create("waiter", func(self *kernel.Thread, arg any) int {
			done <- e.Wait(self, kernel.After(100))
			return 0
		}, nil, 10, 4096)
		require.True(t, status.OK())
		require.True(t, k.Resume(th).OK())
	}

	time.Sleep(10 * time.Millisecond)
	require.True(t, e.Signal(true).OK())

	woken, timedOut := 0, 0
	for i := 0; i < n; i++ {
		select {
		case st := <-done:
			if st.OK() {
				woken++
			} else {
				timedOut++
			}
		case <-time.After(time.Second):
			t.Fatal("waiter never returned")
		}
	}
	assert.Equal(t, 1, woken)
	assert.Equal(t, n-1, timedOut)
}
