package tasklet

import (
	"sync/atomic"
)

// RunState represents the current state of a Scheduler (the per-OS-thread
// record described by the data model).
//
// State Machine (Performance-First Design):
//
//	StateAwake (0) → StateRunning (3)        [RunWatchdogEx switches to a tasklet]
//	StateRunning (3) → StateSleeping (2)     [RunWatchdogEx parks in blockLock, via CAS]
//	StateSleeping (2) → StateRunning (3)     [woken from blockLock, via CAS]
//	any → StateTerminated (1)                [Close, via Store]
//	StateTerminated (1) → (terminal)
//
// StateTerminating (4) is defined but no code in this package enters it.
//
// State Transition Rules:
//   - Use TryTransition() (CAS) for temporary states (Running, Sleeping)
//   - Use Store() for irreversible states (Terminated)
//   - Using Store(Running) or Store(Sleeping) is a bug: it breaks the CAS
//     protocol other goroutines rely on to observe a clean transition.
//
// NOTE: state values are intentionally ordered to match the historical
// numbering this machine was adapted from (StateTerminated=1,
// StateSleeping=2); this has no semantic meaning of its own.
type RunState uint64

const (
	// StateAwake indicates the scheduler has been created but
	// RunWatchdogEx has not yet switched to a tasklet.
	StateAwake RunState = 0
	// StateTerminated indicates Close has been called on the scheduler.
	// Insert does not consult the run state, so tasklets can still be
	// inserted afterwards.
	StateTerminated RunState = 1
	// StateSleeping indicates the scheduler's run goroutine is parked in
	// blockLock, waiting for an Insert to wake it.
	StateSleeping RunState = 2
	// StateRunning indicates the scheduler is actively switching tasklets.
	StateRunning RunState = 3
	// StateTerminating is a shutdown-in-progress state; no code in this
	// package sets it.
	StateTerminating RunState = 4
)

// String returns a human-readable representation of the state.
func (s RunState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding, used for
// Scheduler.runState so that IsRunning/CanAcceptWork-style queries from
// other threads never need to take schedLock. Insert does not consult it;
// its wake decision uses Scheduler.isBlocked.
type fastState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte //nolint:unused
	v atomic.Uint64
	_ [sizeOfCacheLine - sizeOfAtomicUint64]byte //nolint:unused
}

// newFastState creates a new state machine in the Awake state.
func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

// Load returns the current state atomically.
func (s *fastState) Load() RunState {
	return RunState(s.v.Load())
}

// Store atomically stores a new state, bypassing transition validation.
// Only used for the irreversible Terminated state.
func (s *fastState) Store(state RunState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to
// another, returning true if it succeeded.
func (s *fastState) TryTransition(from, to RunState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// TransitionAny attempts to transition from any of validFrom to to.
func (s *fastState) TransitionAny(validFrom []RunState, to RunState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the scheduler has fully shut down.
func (s *fastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}

// IsRunning reports whether the scheduler is currently running or parked
// waiting for work (i.e. its run goroutine is alive).
func (s *fastState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateSleeping
}

// CanAcceptWork reports whether a tasklet may still be inserted onto this
// scheduler's ready queue.
func (s *fastState) CanAcceptWork() bool {
	state := s.Load()
	return state == StateAwake || state == StateRunning || state == StateSleeping
}

// BlockedState is the tri-state "blocked" flag from the data model:
// negative means the tasklet is parked as a receiver, positive means it is
// parked as a sender, zero means it is not blocked on any channel.
type BlockedState int8

const (
	// BlockedReceive means the tasklet is waiting to receive on a channel.
	BlockedReceive BlockedState = -1
	// BlockedNone means the tasklet is not parked on a channel.
	BlockedNone BlockedState = 0
	// BlockedSend means the tasklet is waiting to send on a channel.
	BlockedSend BlockedState = 1
)

// LifecycleState is the coarse-grained lifecycle of a Tasklet.
//
//	StateTaskletNew      -> StateTaskletBound    [Bind]
//	StateTaskletBound    -> StateTaskletRunnable  [Insert]
//	StateTaskletRunnable -> StateTaskletCurrent   [scheduler selects it]
//	StateTaskletCurrent  -> StateTaskletRunnable  [yields back onto the ready queue]
//	StateTaskletCurrent  -> StateTaskletBlocked   [channel send/receive parks it]
//	StateTaskletBlocked  -> StateTaskletRunnable  [channel rendezvous completes]
//	StateTaskletRunnable -> StateTaskletPaused    [Remove while alive]
//	StateTaskletPaused   -> StateTaskletRunnable  [Insert]
//	any                  -> StateTaskletDead      [outermost frame returns]
//
// Unlike RunState, this is a plain field rather than a fastState. The
// ready-queue operations change it under schedLock, but Bind, Throw and the
// Tasklet state predicates (Alive, Scheduled, ...) read or write it without
// taking the lock.
type LifecycleState uint8

const (
	StateTaskletNew LifecycleState = iota
	StateTaskletBound
	StateTaskletRunnable
	StateTaskletCurrent
	StateTaskletBlocked
	StateTaskletPaused
	StateTaskletDead
)

func (s LifecycleState) String() string {
	switch s {
	case StateTaskletNew:
		return "New"
	case StateTaskletBound:
		return "Bound"
	case StateTaskletRunnable:
		return "Runnable"
	case StateTaskletCurrent:
		return "Current"
	case StateTaskletBlocked:
		return "Blocked"
	case StateTaskletPaused:
		return "Paused"
	case StateTaskletDead:
		return "Dead"
	default:
		return "Unknown"
	}
}
