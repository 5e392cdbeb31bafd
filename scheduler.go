package tasklet

import (
	"sync"
	"sync/atomic"
)

// Scheduler is the per-OS-thread record from spec.md §3: a circular ready
// queue of tasklets (head = current), a distinguished main tasklet, switch
// serial counters, runtime flags, a block lock used to park an idle
// thread, and a pending-switch scratch slot.
//
// A Scheduler is not safe to Run from more than one goroutine
// concurrently, by design: spec.md models it as bound to exactly one OS
// thread for its lifetime. Insert may be called cross-thread (from a
// goroutine belonging to a different Scheduler, or none), per spec.md
// §4.3. Switch performs no cross-thread hand-off: it must be called by the
// goroutine currently driving s, with a target that belongs to s.
type Scheduler struct {
	id uint64

	schedLock sync.Mutex

	// ready is the intrusive circular doubly-linked ready queue. head is
	// the current tasklet (nil when the queue is empty).
	head *Tasklet

	main    *Tasklet
	current *Tasklet

	serial         uint64
	serialLastJump uint64

	tickCounter   int64
	tickWatermark int64
	interval      int64

	interrupt func()

	// blockLock parks this Scheduler's run goroutine when its ready queue
	// empties out and RunThreadBlock is in effect; release wakes it.
	// It is the one primitive that may be held across a schedLock
	// release, per spec.md §5.
	blockLock chan struct{}
	isBlocked atomic.Bool
	isIdle    atomic.Bool

	delPostSwitch *Tasklet
	interrupted   *Tasklet
	interruptHook func(t *Tasklet)
	watchdogs     []*Tasklet

	runcount     int
	nestingLevel int
	switchTrap   int
	schedlock    bool
	runflags     RunFlags
	pickleflags  uint32
	stackless    bool

	globalLock GlobalLock

	scheduleCallback     func(prev, next *Tasklet)
	scheduleFastCallback func(prev, next *Tasklet) error
	channelCallback      func(ch *Channel, t *Tasklet, sending, willBlock bool)

	logger Logger

	runState *fastState
}

var schedulerIDSeq atomic.Uint64

// NewScheduler constructs a Scheduler with a fresh main tasklet, which is
// immediately Current per spec.md §3 (runcount starts at 1, for main).
func NewScheduler(opts ...SchedulerOption) (*Scheduler, error) {
	cfg, err := resolveSchedulerOptions(opts)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		id:          schedulerIDSeq.Add(1),
		blockLock:   make(chan struct{}, 1),
		tickCounter: 0,
		interval:    cfg.tickInterval,
		runflags:    cfg.runFlags,
		globalLock:  cfg.globalLock,
		logger:      cfg.logger,
		runState:    newFastState(),
	}

	main := NewTasklet()
	main.isMain = true
	main.sched = s
	main.state = StateTaskletCurrent
	// main.cstate is left nil here; ensureCstate lazily allocates it (with
	// its resume channel) the first time main actually parks via Switch,
	// exactly like any other tasklet. A separate pre-built stub isn't
	// needed — Restorable() already treats a nil cstate as "never blocked".

	s.main = main
	s.current = main
	s.head = main
	main.next, main.prev = main, main
	s.runcount = 1

	return s, nil
}

// ID returns the scheduler's stable identity, distinct from any tasklet id.
func (s *Scheduler) ID() uint64 { return s.id }

// Current returns the tasklet currently running on this scheduler.
func (s *Scheduler) Current() *Tasklet {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	return s.current
}

// Main returns the scheduler's distinguished main tasklet.
func (s *Scheduler) Main() *Tasklet { return s.main }

// RunCount returns the number of tasklets currently on the ready queue.
func (s *Scheduler) RunCount() int {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	return s.runcount
}

// insert splices t into the ready queue immediately before head (i.e. at
// the tail, to run after everything currently queued), the default
// position for Insert. Caller must hold schedLock.
func (s *Scheduler) insertLocked(t *Tasklet) {
	if s.head == nil {
		s.head = t
		t.next, t.prev = t, t
	} else {
		tail := s.head.prev
		tail.next = t
		t.prev = tail
		t.next = s.head
		s.head.prev = t
	}
	t.state = StateTaskletRunnable
	s.runcount++
}

// insertAfterLocked splices t into the ready queue immediately after anchor.
// Caller must hold schedLock.
func (s *Scheduler) insertAfterLocked(anchor, t *Tasklet) {
	next := anchor.next
	anchor.next = t
	t.prev = anchor
	t.next = next
	next.prev = t
	t.state = StateTaskletRunnable
	s.runcount++
}

// removeLocked splices t out of whatever intrusive chain it is currently
// in (ready queue or channel wait queue) and clears its links. Caller must
// hold the appropriate lock (schedLock for the ready queue, Channel.mu for
// a wait queue).
func removeLocked(t *Tasklet) (wasHead bool, next *Tasklet) {
	next = t.next
	if next == t {
		// sole element
		t.next, t.prev = nil, nil
		return true, nil
	}
	prev := t.prev
	prev.next = next
	next.prev = prev
	t.next, t.prev = nil, nil
	return false, next
}

// Insert places t onto this scheduler's ready queue, per spec.md §4.1/§4.3,
// including the cross-thread hand-off: if t already belongs to a
// different, running scheduler, it is spliced into that scheduler's queue
// instead, and that scheduler is woken if idle.
func (s *Scheduler) Insert(t *Tasklet) error {
	if t.state != StateTaskletBound && t.state != StateTaskletPaused {
		return &RuntimeError{Message: "cannot insert a tasklet that is not bound or paused"}
	}
	if t.flags.has(FlagIsZombie) {
		return &RuntimeError{Message: "cannot insert a zombie tasklet"}
	}
	if !t.Restorable() {
		return &RuntimeError{Message: "cannot insert a tasklet with a live native stack"}
	}

	target := s
	if t.sched != nil && t.sched != s {
		target = t.sched
	}

	target.schedLock.Lock()
	if target.head == nil {
		target.head = t
		t.next, t.prev = t, t
		t.state = StateTaskletRunnable
		target.runcount++
	} else if target.current != nil && target.isIdle.Load() {
		// foreign thread is idle (parked in RunWatchdogEx's blockLock wait,
		// current still set to whatever was running when it parked): insert
		// t immediately before current, per spec.md 4.3's inter-thread
		// hand-off. A thread only ever reaches is_idle with a ready queue of
		// exactly one (current, self-linked -- pickNextLocked(true) would
		// otherwise have found something else to run instead of parking),
		// so this position and insertLocked's default tail position coincide
		// in practice; the explicit anchor still matches the spec's stated
		// ring position rather than relying on that coincidence.
		target.insertAfterLocked(target.current.prev, t)
	} else {
		target.insertLocked(t)
	}
	t.sched = target
	target.schedLock.Unlock()

	rateLimitedLogEvent(target.logger, LogDebug, "insert", "tasklet inserted", f("tasklet", t.id), f("scheduler", target.id))

	target.wakeIfParked()
	return nil
}

func (s *Scheduler) remove(t *Tasklet) error {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	if t.state == StateTaskletCurrent {
		return &RuntimeError{Message: "cannot remove the current tasklet; use Kill or switch away first"}
	}
	if t.next == nil {
		// already off-queue
		t.state = StateTaskletPaused
		return nil
	}
	wasHead, next := removeLocked(t)
	if wasHead {
		s.head = nil
	} else if s.head == t {
		s.head = next
	}
	s.runcount--
	t.state = StateTaskletPaused
	return nil
}

// wakeBlocked moves t from a channel wait queue back onto its scheduler's
// ready queue, used when an exception is installed into a blocked tasklet
// (RaiseException/Throw), per spec.md §4.6's "a Bomb may target any
// tempval slot, including one belonging to a blocked tasklet."
func (s *Scheduler) wakeBlocked(t *Tasklet) error {
	sched := t.sched
	if sched == nil {
		return &RuntimeError{Message: "blocked tasklet has no scheduler"}
	}
	// t's next/prev currently thread it onto a Channel's wait queue, which
	// is protected by that Channel's own mutex, not schedLock — unblocking
	// it must go through unblockFromChannel rather than schedLock-guarded
	// removeLocked, which unlinks the wrong chain's neighbors.
	if err := unblockFromChannel(t); err != nil {
		return err
	}
	sched.schedLock.Lock()
	sched.insertLocked(t)
	sched.schedLock.Unlock()
	sched.wakeIfParked()
	return nil
}

// activeWatchdogLocked returns the innermost active watchdog tasklet (the
// last entry pushed by RunWatchdogEx), falling back to main if no watchdog
// is currently running, per spec.md §3's "watchdogs: ordered sequence of
// active watchdog tasklets (innermost last)." Caller must hold schedLock.
func (s *Scheduler) activeWatchdogLocked() *Tasklet {
	if n := len(s.watchdogs); n > 0 {
		return s.watchdogs[n-1]
	}
	return s.main
}

// wakeIfParked releases blockLock if this scheduler's run goroutine is
// currently parked there, grounded on the teacher's cross-platform wakeup
// of an idle reactor thread (eventloop/wakeup_*.go), adapted to a portable
// channel send since this scheduler never multiplexes external file
// descriptors (see DESIGN.md for why the platform-specific wakeup files
// were not ported).
func (s *Scheduler) wakeIfParked() {
	if s.isBlocked.CompareAndSwap(true, false) {
		select {
		case s.blockLock <- struct{}{}:
		default:
		}
	}
}

// tick advances the scheduler's time-slice accounting by one unit,
// mirroring the teacher's Loop.tick() cadence but driving a tasklet
// tick-watermark instead of timer-heap expiry, per spec.md §4.1's "Tick
// accounting."
func (s *Scheduler) tick() {
	s.tickCounter++
	if s.tickWatermark != 0 && s.tickCounter >= s.tickWatermark {
		if s.current != nil {
			s.current.flags |= FlagPendingIRQ
		}
	}
}

// Close installs a pending TaskletExit (Kill with pending=true) on every
// non-current tasklet remaining on this scheduler's ready queue, and marks
// the scheduler terminated. It does not drive those tasklets' frames: they
// stay on the ready queue until something switches to them. It is the Go
// analogue of the interpreter tearing down a thread state.
func (s *Scheduler) Close() error {
	s.schedLock.Lock()
	var toKill []*Tasklet
	if s.head != nil {
		t := s.head
		for {
			if t != s.current {
				toKill = append(toKill, t)
			}
			t = t.next
			if t == s.head {
				break
			}
		}
	}
	s.schedLock.Unlock()

	for _, t := range toKill {
		_ = t.Kill(true)
	}

	s.runState.Store(StateTerminated)
	return nil
}
