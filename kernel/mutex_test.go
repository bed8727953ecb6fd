package kernel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlekernel/lk-sub014/kernel"
)

// TestMutexHandoff is scenario S4: 32 threads contend for one mutex,
// each sleeping 1ms in the critical section. Exactly 32 acquisitions
// are observed, serialized, with no two threads ever inside at once.
func TestMutexHandoff(t *testing.T) {
	k := bootTestKernel(t, 1)

	const n = 32
	m := k.NewMutex()

	var inside atomic.Int32
	var maxInside atomic.Int32
	var acquisitions atomic.Int32
	done := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		th, status := k.Create("contender", func(self *kernel.Thread, arg any) int {
			st := m.Acquire(self, kernel.Infinite())
			if !st.OK() {
				done <- struct{}{}
				return 0
			}
			cur := inside.Add(1)
			for {
				old := maxInside.Load()
				if cur <= old || maxInside.CompareAndSwap(old, cur) {
					break
				}
			}
			acquisitions.Add(1)
			k.Sleep(self, 1)
			inside.Add(-1)
			m.Release(self)
			done <- struct{}{}
			return 0
		}, nil, 10, 4096)
		require.True(t, status.OK())
		require.True(t, k.Resume(th).OK())
	}

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("not all contenders finished")
		}
	}

	assert.Equal(t, int32(n), acquisitions.Load())
	assert.LessOrEqual(t, maxInside.Load(), int32(1))
}

func TestMutexReleaseByNonHolderIsFatal(t *testing.T) {
	k := bootTestKernel(t, 1)
	m := k.NewMutex()

	done := make(chan bool, 1)
	th, status := k.Create("t", func(self *kernel.Thread, arg any) int {
		defer func() {
			done <- recover() != nil
		}()
		m.Release(self)
		return 0
	}, nil, 10, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(th).OK())

	select {
	case paniced := <-done:
		assert.True(t, paniced)
	case <-time.After(time.Second):
		t.Fatal("release by non-holder did not panic")
	}
}
