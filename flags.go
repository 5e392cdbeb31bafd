package tasklet

// Flags is a Tasklet's packed bitfield, mirroring the data model's
// "atomic, ignore_nesting, autoschedule, block_trap, is_zombie,
// pending_irq" bits. Blocked is kept out of this bitfield as a separate
// BlockedState field on Tasklet: it is tri-state, not boolean, and is read
// on the hot send/receive path often enough that packing it alongside
// single-bit flags would cost more in masking than it saves in size.
type Flags uint8

const (
	// FlagAtomic inhibits tick-driven (soft) preemption of the tasklet
	// that owns it. There is no other interrupt path, so an atomic tasklet
	// is not interrupted at all.
	FlagAtomic Flags = 1 << iota
	// FlagIgnoreNesting permits a soft switch even while nestingLevel > 0.
	FlagIgnoreNesting
	// FlagAutoschedule causes the scheduler to reinsert this tasklet at
	// the ready queue's tail, rather than marking it dead, when its
	// outermost Frame.Run returns normally.
	FlagAutoschedule
	// FlagBlockTrap causes any channel operation that would park this
	// tasklet to raise a RuntimeError immediately instead.
	FlagBlockTrap
	// FlagIsZombie marks a tasklet whose frames have unwound but whose
	// handle is still reachable (e.g. referenced from a watchdog list);
	// it must not be reinserted or switched to.
	FlagIsZombie
	// FlagPendingIRQ records that the tick counter reached the watermark
	// set by RunWatchdogEx while this tasklet was current (set by
	// Scheduler.tick); runFrames clears it and delivers the interrupt at
	// the next frame step where shouldInterrupt allows it.
	FlagPendingIRQ
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

func (f Flags) set(bit Flags, enabled bool) Flags {
	if enabled {
		return f | bit
	}
	return f &^ bit
}

// RunFlags controls RunWatchdog/RunWatchdogEx and the scheduler's soft
// interrupt behavior, mirroring {THREADBLOCK, SOFT, IGNORE_NESTING,
// TOTAL_TIMEOUT} from the module-level API.
type RunFlags uint32

const (
	// RunThreadBlock permits the watchdog call itself to block (park the
	// calling thread) if the ready queue empties out while waiting for
	// the timeout, rather than returning immediately.
	RunThreadBlock RunFlags = 1 << iota
	// RunSoft is stored with the other run flags, but no code reads it:
	// the timeout interrupt switches to the innermost watchdog in the same
	// way whether or not it is set.
	RunSoft
	// RunIgnoreNesting lets the soft-interrupt rewrite fire even when the
	// current tasklet is nesting (nestingLevel > 0), normally a condition
	// that defers delivery.
	RunIgnoreNesting
	// RunTotalTimeout makes the watchdog's timeout an absolute deadline:
	// the tick watermark is not reset at the start of each time slice.
	RunTotalTimeout
	// RunNoSoftIRQ suppresses the soft-interrupt rewrite entirely for
	// this RunWatchdogEx call, even if the current tasklet has
	// PendingIRQ set.
	RunNoSoftIRQ
)

func (f RunFlags) has(bit RunFlags) bool { return f&bit != 0 }
