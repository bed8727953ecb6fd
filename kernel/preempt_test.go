package kernel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlekernel/lk-sub014/kernel"
)

// TestSetPendingIfDisabledDefersReschedule checks the preempt gate's
// decision primitive directly: while preemption is disabled it records
// the pending request and tells the caller to defer, and once re-enabled
// the thread carries on past PreemptEnable.
func TestSetPendingIfDisabledDefersReschedule(t *testing.T) {
	k := bootTestKernel(t, 1)

	ranAfterResched := make(chan struct{})
	self, status := k.Create("gated", func(self *kernel.Thread, arg any) int {
		k.PreemptDisable(self)
		deferred := k.SetPendingIfDisabled(self)
		assert.True(t, deferred, "SetPendingIfDisabled should defer while preemption is disabled")

		// Still disabled: nothing has rescheduled us out yet.
		assert.Equal(t, kernel.StateRunning, self.State())

		k.PreemptEnable(self)
		close(ranAfterResched)
		return 0
	}, nil, 10, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(self).OK())

	select {
	case <-ranAfterResched:
	case <-time.After(time.Second):
		t.Fatal("gated thread never ran past PreemptEnable")
	}
}

// TestSetPendingIfDisabledFalseWhenEnabled checks the non-deferring path:
// with preemption enabled, SetPendingIfDisabled reports false and leaves
// no pending reschedule behind.
func TestSetPendingIfDisabledFalseWhenEnabled(t *testing.T) {
	k := bootTestKernel(t, 1)

	done := make(chan bool, 1)
	self, status := k.Create("ungated", func(self *kernel.Thread, arg any) int {
		done <- k.SetPendingIfDisabled(self)
		return 0
	}, nil, 10, 4096)
	require.True(t, status.OK())
	require.True(t, k.Resume(self).OK())

	select {
	case deferred := <-done:
		assert.False(t, deferred)
	case <-time.After(time.Second):
		t.Fatal("ungated thread never ran")
	}
}
