package tasklet

import (
	"sync/atomic"
)

// Tasklet is a resumable unit of execution, coordinated through a
// Scheduler's ready queue and (optionally) Channels. It is the Go
// realization of spec.md §3's Tasklet record.
type Tasklet struct {
	// frames holds the frame chain, innermost last (see SPEC_FULL.md §3
	// for why: append/truncate at the tail is O(1)).
	frames []Frame

	// initialFrame is the frame originally passed to Bind, retained so an
	// Autoschedule tasklet can be reinstalled and rerun after it falls off
	// the end of its frame stack, per spec.md's autoschedule flag.
	initialFrame Frame

	tempval Tempval
	flags   Flags
	blocked BlockedState

	cstate *cstate

	// blockedOn is the Channel this tasklet is currently parked on (nil
	// unless blocked != BlockedNone), recorded so Throw/Kill's immediate
	// (pending=false) delivery path can unlink it from that channel's wait
	// queue without the caller having to know which channel it is.
	blockedOn *Channel

	recursionDepth int
	nestingLevel   int

	excInfo *ExcInfo
	context ContextVar

	traceFunc   TraceFunc
	traceObj    any
	profileFunc ProfileFunc
	profileObj  any

	// next/prev form the intrusive doubly-linked list node shared by both
	// the owning Scheduler's ready queue and, when blocked, a Channel's
	// wait queue — a Tasklet is never in both at once, per spec.md §9's
	// dual-purpose pointer design note.
	next, prev *Tasklet

	// isChannelSentinel distinguishes a Channel's internal sentinel node
	// (itself allocated as a *Tasklet-shaped value so it can sit in the
	// same next/prev chain) from a real Tasklet.
	isChannelSentinel bool

	sched *Scheduler

	state LifecycleState

	id     uint64
	isMain bool
}

// Tempval holds either a normal value or a *Bomb, the unit exchanged by
// every switch and channel operation. It is never a bare nil; an empty
// Tempval is represented by NoneValue{}, per spec.md invariant 7.
type Tempval = any

// NoneValue is the sentinel used in place of a nil Tempval.
type NoneValue struct{}

var taskletIDSeq atomic.Uint64

func nextTaskletID() uint64 { return taskletIDSeq.Add(1) }

// NewTasklet constructs a new, unbound Tasklet. It must be Bind-ed (or
// Setup-ed) before it can be Inserted.
func NewTasklet() *Tasklet {
	return &Tasklet{
		id:      nextTaskletID(),
		tempval: NoneValue{},
		state:   StateTaskletNew,
	}
}

// Bind installs callable as the Tasklet's sole initial frame, transitioning
// it from New/Dead to Bound. Binding a Tasklet that is Current, or whose
// cstate is a live (non-stub) native-stack snapshot (!Restorable()), is a
// RuntimeError — the latter would require reconstructing a native stack
// the runtime cannot serialize, the supplemented Restorable check from
// Stackless/module/taskletobject.c.
func (t *Tasklet) Bind(callable Frame, opts ...TaskletOption) error {
	if t.state == StateTaskletCurrent {
		return &RuntimeError{Message: "cannot bind a current tasklet"}
	}
	if !t.Restorable() {
		return &RuntimeError{Message: "cannot bind a tasklet with a live native stack"}
	}
	cfg, err := resolveTaskletOptions(opts)
	if err != nil {
		return err
	}
	t.frames = []Frame{callable}
	t.initialFrame = callable
	t.flags = t.flags.set(FlagAtomic, cfg.atomic)
	t.flags = t.flags.set(FlagIgnoreNesting, cfg.ignoreNesting)
	t.flags = t.flags.set(FlagAutoschedule, cfg.autoschedule)
	t.flags = t.flags.set(FlagBlockTrap, cfg.blockTrap)
	t.flags = t.flags.set(FlagIsZombie, false)
	t.state = StateTaskletBound
	return nil
}

// BindThread pins the Tasklet to sched without inserting it onto the ready
// queue, per spec.md §6's bind_thread.
func (t *Tasklet) BindThread(sched *Scheduler) error {
	if t.sched != nil && t.sched != sched && t.state != StateTaskletDead {
		return &RuntimeError{Message: "tasklet already bound to a different thread"}
	}
	t.sched = sched
	return nil
}

// Setup binds callable and immediately inserts the Tasklet onto its
// scheduler's ready queue, matching spec.md §6's setup(args, kwargs).
func (t *Tasklet) Setup(sched *Scheduler, callable Frame, opts ...TaskletOption) error {
	if err := t.Bind(callable, opts...); err != nil {
		return err
	}
	return sched.Insert(t)
}

// Insert places the Tasklet on its scheduler's ready queue. See
// Scheduler.Insert for the full algorithm (including cross-thread
// hand-off, per spec.md §4.3).
func (t *Tasklet) Insert() error {
	if t.sched == nil {
		return &RuntimeError{Message: "tasklet has no scheduler; call BindThread or Setup first"}
	}
	return t.sched.Insert(t)
}

// Remove takes the Tasklet off its scheduler's ready queue without killing
// it (it becomes Paused — alive but floating on no chain).
func (t *Tasklet) Remove() error {
	if t.sched == nil {
		return &RuntimeError{Message: "tasklet has no scheduler"}
	}
	return t.sched.remove(t)
}

// Run makes the Tasklet current, switching the calling context into it.
// Equivalent to Switch when called on a tasklet not already current.
func (t *Tasklet) Run() error {
	if t.sched == nil {
		return &RuntimeError{Message: "tasklet has no scheduler"}
	}
	return t.sched.Switch(t)
}

// Switch transfers control directly to t from whichever tasklet is
// currently running on t's scheduler, bypassing the ready-queue ordering.
func (t *Tasklet) Switch() error {
	if t.sched == nil {
		return &RuntimeError{Message: "tasklet has no scheduler"}
	}
	return t.sched.Switch(t)
}

// RaiseException schedules class(args...) to be raised into this tasklet
// the next time it runs, via a Bomb installed as its tempval.
func (t *Tasklet) RaiseException(class error, args any) error {
	return t.installBomb(NewBomb(class, args, nil))
}

// Throw installs (exc, val, tb) as a pending exception, or delivers it
// immediately if pending is false and the tasklet is not current.
//
// Per original_source/Stackless/module/taskletobject.c's
// _impl_tasklet_throw_bomb: raising into a tasklet that already ran to
// completion is a silent no-op when the exception is a TaskletExit (killing
// something already dead is harmless); raising into the current tasklet
// installs the bomb locally with no switch; otherwise the bomb is installed as
// tempval and, for pending=false, delivery happens via an immediate switch
// into t — unparking it from any channel wait queue first, exactly as
// scheduling.c's slp_schedule_task does.
func (t *Tasklet) Throw(exc error, val any, tb []Frame, pending bool) error {
	if t.state == StateTaskletDead {
		if _, ok := exc.(*TaskletExit); ok {
			return nil
		}
		if !t.isMain {
			return &RuntimeError{Message: "cannot throw into a dead non-main tasklet"}
		}
	}

	bomb := NewBomb(exc, val, tb)
	if pending {
		return t.installBomb(bomb)
	}

	if t.state == StateTaskletCurrent {
		t.tempval = bomb
		t.excInfo = &ExcInfo{Type: exc, Value: val, Traceback: tb, Previous: t.excInfo}
		return nil
	}
	if t.sched == nil {
		bomb.Release()
		return &RuntimeError{Message: "tasklet has no scheduler"}
	}
	if t.state == StateTaskletBlocked {
		if err := unblockFromChannel(t); err != nil {
			bomb.Release()
			return err
		}
	}
	t.tempval = bomb
	t.excInfo = &ExcInfo{Type: exc, Value: val, Traceback: tb, Previous: t.excInfo}
	return t.sched.Switch(t)
}

// Kill unwinds the tasklet cooperatively via a TaskletExit, per spec.md
// §4.8. If pending, the exit is installed but not delivered immediately.
func (t *Tasklet) Kill(pending bool) error {
	return t.Throw(&TaskletExit{Pinned: pending}, nil, nil, pending)
}

func (t *Tasklet) installBomb(b *Bomb) error {
	t.tempval = b
	if t.sched != nil && t.state == StateTaskletBlocked {
		return t.sched.wakeBlocked(t)
	}
	return nil
}

// SetAtomic sets the Atomic flag, returning its previous value.
func (t *Tasklet) SetAtomic(flag bool) bool {
	old := t.flags.has(FlagAtomic)
	t.flags = t.flags.set(FlagAtomic, flag)
	return old
}

// SetIgnoreNesting sets the IgnoreNesting flag, returning its previous value.
func (t *Tasklet) SetIgnoreNesting(flag bool) bool {
	old := t.flags.has(FlagIgnoreNesting)
	t.flags = t.flags.set(FlagIgnoreNesting, flag)
	return old
}

// GetFrame returns the tasklet's innermost (currently executing) frame, or
// nil if it has none (New, or Dead with no frames left).
func (t *Tasklet) GetFrame() Frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// IsMain reports whether this is its scheduler's distinguished main tasklet.
func (t *Tasklet) IsMain() bool { return t.isMain }

// IsCurrent reports whether this tasklet is currently running.
func (t *Tasklet) IsCurrent() bool { return t.state == StateTaskletCurrent }

// Paused reports whether the tasklet is alive but not on any ready queue
// or channel wait queue.
func (t *Tasklet) Paused() bool { return t.state == StateTaskletPaused }

// Scheduled reports whether the tasklet is on a ready queue (Runnable or
// Current).
func (t *Tasklet) Scheduled() bool {
	return t.state == StateTaskletRunnable || t.state == StateTaskletCurrent
}

// Alive reports whether the tasklet has been bound and has not yet run to
// completion; a New (never bound) tasklet is not alive.
func (t *Tasklet) Alive() bool {
	return t.state != StateTaskletDead && t.state != StateTaskletNew
}

// Restorable reports whether the tasklet could, in principle, be
// reconstructed by a host pickling implementation: true unless it owns a
// live native-stack snapshot (hard-switched, nestingLevel > 0), per the
// SUPPLEMENTED FEATURES `tasklet_restorable` check from
// Stackless/module/taskletobject.c.
func (t *Tasklet) Restorable() bool {
	return t.cstate == nil || t.cstate.nestingLevel == 0
}

// RecursionDepth returns the tasklet's recursion-depth counter. No code in
// this package writes the counter, so it is always 0.
func (t *Tasklet) RecursionDepth() int { return t.recursionDepth }

// NestingLevel returns the tasklet's nesting counter, which
// Scheduler.CallNested sets while the tasklet is current; zero means it is
// soft-switchable.
func (t *Tasklet) NestingLevel() int { return t.nestingLevel }

// ContextRun installs ctx as current for the duration of callable, then
// restores the previous context, mirroring spec.md §6's context_run.
func (t *Tasklet) ContextRun(ctx ContextVar, callable func() (any, error)) (any, error) {
	if ctx.Entered() {
		return nil, &RuntimeError{Message: "context already entered"}
	}
	prev := t.context
	t.context = ctx
	defer func() { t.context = prev }()
	return callable()
}

// SetContext installs ctx as this tasklet's current context directly.
func (t *Tasklet) SetContext(ctx ContextVar) error {
	if ctx != nil && ctx.Entered() {
		return &RuntimeError{Message: "context already entered"}
	}
	t.context = ctx
	return nil
}

// ID returns the tasklet's stable identity, per spec.md's get_current_id.
func (t *Tasklet) ID() uint64 { return t.id }
