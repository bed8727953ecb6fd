package kernel

import "sort"

// InitLevel is a coarse ordering point in the staged boot sequence,
// supplemented from original_source/include/lk/init.h (spec.md's
// distillation omits it entirely, but §4.9's "staged init pipeline" is
// exactly this mechanism). Hooks run in ascending level order; hooks
// registered at the same level run in registration order.
type InitLevel uint32

const (
	InitLevelEarliest      InitLevel = 1
	InitLevelArchEarly     InitLevel = 0x10000
	InitLevelPlatformEarly InitLevel = 0x20000
	InitLevelTargetEarly   InitLevel = 0x30000
	InitLevelHeap          InitLevel = 0x40000
	InitLevelVM            InitLevel = 0x50000
	InitLevelKernel        InitLevel = 0x60000
	InitLevelThreading     InitLevel = 0x70000
	InitLevelArch          InitLevel = 0x80000
	InitLevelPlatform      InitLevel = 0x90000
	InitLevelTarget        InitLevel = 0xa0000
	InitLevelApps          InitLevel = 0xb0000
	InitLevelLast          InitLevel = 0xffffffff
)

// InitFlags selects which simulated CPUs a hook runs on and on what
// transition.
type InitFlags uint32

const (
	InitFlagPrimaryCPU    InitFlags = 0x1
	InitFlagSecondaryCPUs InitFlags = 0x2
	InitFlagAllCPUs       InitFlags = InitFlagPrimaryCPU | InitFlagSecondaryCPUs
	InitFlagCPUSuspend    InitFlags = 0x4
	InitFlagCPUResume     InitFlags = 0x8
)

// InitHook is run with the kernel constructed but not yet scheduling,
// or (for suspend/resume flags) around a CPU coming offline and back.
type InitHook func(k *Kernel, level InitLevel, cpu uint32)

type initEntry struct {
	name  string
	level InitLevel
	flags InitFlags
	hook  InitHook
	seq   int

	// ran tracks which flag bits this hook has already executed under,
	// so RunLevel is idempotent per flag (property 8): a hook runs at
	// most once per flag bit for the life of the Kernel, however many
	// RunLevel calls cover its level. The bits are never cleared.
	ran InitFlags
}

// RegisterInitHook adds hook to the boot sequence, to run at level on
// every CPU selected by flags. Call before Main; registering after
// boot has started is a programming error and panics. Registering a
// second hook under a name already in use returns ErrAlreadyExists
// instead — that one is a caller mistake worth reporting back, not a
// kernel invariant worth halting over.
func (k *Kernel) RegisterInitHook(name string, level InitLevel, flags InitFlags, hook InitHook) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		fatal("RegisterInitHook: kernel already started", name)
	}
	for _, e := range k.initTable {
		if e.name == name {
			return StatusError(ErrAlreadyExists)
		}
	}
	k.initTable = append(k.initTable, &initEntry{
		name: name, level: level, flags: flags, hook: hook, seq: len(k.initTable),
	})
	return StatusOK
}

// RunLevel invokes every registered hook whose level falls in
// [start, stop] and whose flags intersect want, for cpu, in ascending
// level order with registration order as the tiebreak — the ordering
// lk_init_level itself guarantees. A hook is skipped for any flag bit
// in want it has already run under, so calling RunLevel twice with the
// same flags invokes each hook at most once per flag (property 8);
// a hook registered for more than one flag (e.g. AllCPUs) still runs
// once per distinct flag it hasn't seen yet.
func (k *Kernel) RunLevel(want InitFlags, start, stop InitLevel) {
	k.runInitLevelRange(^uint32(0), want, start, stop)
}

// runInitLevelRange is RunLevel specialized for a specific booting CPU,
// used by bootCPU during Main.
func (k *Kernel) runInitLevelRange(cpu uint32, want InitFlags, start, stop InitLevel) {
	k.mu.Lock()
	entries := make([]*initEntry, len(k.initTable))
	copy(entries, k.initTable)
	k.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].level != entries[j].level {
			return entries[i].level < entries[j].level
		}
		return entries[i].seq < entries[j].seq
	})

	for _, e := range entries {
		if e.level < start || e.level > stop {
			continue
		}
		k.mu.Lock()
		due := e.flags & want &^ e.ran
		if due == 0 {
			k.mu.Unlock()
			continue
		}
		e.ran |= due
		k.mu.Unlock()
		e.hook(k, e.level, cpu)
	}
}
