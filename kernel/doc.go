// Package kernel implements the LK kernel core: threads and the fixed-
// priority scheduler, the wait-queue primitive shared by every blocking
// object, the mutex/semaphore/event/spinlock synchronization primitives
// built on it, the software timer wheel, the preemption gate, the IRQ
// entry/exit contract, the staged init pipeline, and the multiprocessor
// coordinator that ties them together.
//
// A single *Kernel value holds all mutable state (run queues, wait
// queues, the timer list, the thread table) behind one lock — mirroring
// the global scheduler spinlock the original C kernel takes around
// every mutation of that state. Every "CPU" the kernel schedules onto is
// a dedicated goroutine obtained from hal.HAL.PinCurrentGoroutine; user
// Thread bodies run as their own goroutines, handed the right to execute
// by a single-slot channel (the same parking idiom the teacher package
// (alphadose/zenq) uses to put a blocked goroutine to sleep and wake it
// with minimal latency, generalized here from a ring-buffer slot to a
// scheduler run queue).
package kernel
