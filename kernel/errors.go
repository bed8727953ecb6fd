package kernel

import (
	"errors"
	"fmt"

	"github.com/littlekernel/lk-sub014/internal/klog"
)

// logger is where fatal reports a Violation before panicking. It
// defaults to discarding output so the package never requires wiring
// in tests; cmd/lk calls SetLogger once at boot with its real logger.
var logger = klog.Nop()

// SetLogger installs the logger fatal uses to record programming-model
// violations before it panics. Safe to call once, before Main; not
// synchronized against concurrent fatal calls, the same as any other
// boot-time configuration call in this package.
func SetLogger(l *klog.Logger) {
	if l == nil {
		l = klog.Nop()
	}
	logger = l
}

// Status is the sum-type result every blocking or fallible kernel
// operation returns, per spec §7. The zero Status is StatusOK.
type Status struct {
	err error
}

// OK reports whether the status represents success.
func (s Status) OK() bool { return s.err == nil }

// Err returns the underlying sentinel error, or nil on success, so
// callers can use errors.Is/errors.As against the Err* sentinels below.
func (s Status) Err() error { return s.err }

func (s Status) String() string {
	if s.err == nil {
		return "OK"
	}
	return s.err.Error()
}

// StatusOK is the zero-value success status.
var StatusOK = Status{}

// Sentinel error kinds, per §7. These are the only error kinds a
// well-formed caller needs to branch on; anything else surfacing from
// this package is a fatal programming-model violation (see fatal).
var (
	ErrInvalidArgs   = errors.New("kernel: invalid arguments")
	ErrNoMemory      = errors.New("kernel: out of memory")
	ErrTimedOut      = errors.New("kernel: timed out")
	ErrInterrupted   = errors.New("kernel: interrupted")
	ErrNotReady      = errors.New("kernel: object not in a ready state")
	ErrAlreadyExists = errors.New("kernel: already exists")
	ErrAlreadyBound  = errors.New("kernel: already bound")
)

// StatusError wraps one of the sentinel errors above into a Status.
func StatusError(err error) Status { return Status{err: err} }

// StatusTimedOut, StatusInterrupted etc. are convenience constructors
// for the outcomes wait-queue and timer operations return directly.
var (
	StatusTimedOut    = StatusError(ErrTimedOut)
	StatusInterrupted = StatusError(ErrInterrupted)
)

// Violation is the panic payload for fatal programming-model errors:
// mutex unlocked by a non-owner, a timer with a corrupt magic, freeing
// a running thread's stack, blocking while holding a spinlock, blocking
// from IRQ context. Per §7 these are bugs, not conditions calling code
// can recover from — the core never returns a Status for them.
type Violation struct {
	Reason string
	Object any
}

func (v *Violation) Error() string {
	if v.Object != nil {
		return fmt.Sprintf("kernel: fatal: %s (object=%v)", v.Reason, v.Object)
	}
	return fmt.Sprintf("kernel: fatal: %s", v.Reason)
}

// fatal logs a Critical event naming the violation and its object, then
// raises a Violation. It is the core's only response to a programming-
// model error; there is deliberately no recover() anywhere in this
// package for these panics, mirroring the panic-and-halt/reset contract
// of §7 — logging happens here, before the panic, precisely because
// nothing downstream is guaranteed to ever see this goroutine again.
func fatal(reason string, object any) {
	v := &Violation{Reason: reason, Object: object}
	logger.Critical("%s", v.Error())
	panic(v)
}
