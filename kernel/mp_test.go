package kernel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlekernel/lk-sub014/hal"
	"github.com/littlekernel/lk-sub014/kernel"
)

func TestMultipleCPUsBothRunThreads(t *testing.T) {
	k := bootTestKernel(t, 2)

	var ranOnCPU [2]atomic.Bool
	done := make(chan struct{}, 2)

	for cpu := 0; cpu < 2; cpu++ {
		cpu := uint32(cpu)
		th, status := k.Create("pinned", func(self *kernel.Thread, arg any) int {
			ranOnCPU[cpu].Store(true)
			done <- struct{}{}
			return 0
		}, nil, 10, 4096)
		require.True(t, status.OK())
		require.True(t, k.Pin(th, cpu).OK())
		require.True(t, k.Resume(th).OK())
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("a pinned thread never ran")
		}
	}
	assert.True(t, ranOnCPU[0].Load())
	assert.True(t, ranOnCPU[1].Load())
}

func TestActiveCPUsReflectsBoot(t *testing.T) {
	k := bootTestKernel(t, 3)
	require.Eventually(t, func() bool {
		return k.ActiveCPUs() == hal.CPUMask(0b111)
	}, time.Second, time.Millisecond)
}

func TestRescheduleRoutingExcludesRealtimeCPU(t *testing.T) {
	k := bootTestKernel(t, 2)
	k.SetRealtime(1, true)

	before := k.CPUStats(1).RescheduleIPIs
	k.Reschedule(0, hal.CPUMask(0b11), false)
	time.Sleep(10 * time.Millisecond)
	after := k.CPUStats(1).RescheduleIPIs
	assert.Equal(t, before, after)
}
