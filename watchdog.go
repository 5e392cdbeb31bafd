package tasklet

// RunWatchdog switches to the next ready tasklet and returns once control
// comes back to the calling tasklet: when the ready queue's rotation
// reaches the caller again, when timeout ticks have elapsed on the running
// tasklet (0 disables the timeout), or when an uncaught exception routes
// control to the caller as the innermost watchdog. A single call therefore
// need not drain the queue; callers loop until RunCount reports only the
// caller left. It must be called from the scheduler's owning goroutine
// while its main tasklet is current (the ordinary case immediately after
// constructing a Scheduler and Inserting some tasklets), matching spec.md
// §4.1's run_watchdog.
//
// It returns the tasklet that was interrupted by the timeout, or nil if
// control came back without a timeout.
func (s *Scheduler) RunWatchdog(timeout int64) (*Tasklet, error) {
	return s.RunWatchdogEx(timeout, 0)
}

// RunWatchdogEx is RunWatchdog with explicit RunFlags
// (RunThreadBlock|RunSoft|RunIgnoreNesting|RunTotalTimeout|RunNoSoftIRQ),
// per spec.md §6's run_watchdog_ex.
func (s *Scheduler) RunWatchdogEx(timeout int64, flags RunFlags) (*Tasklet, error) {
	s.schedLock.Lock()
	caller := s.current
	if caller == nil {
		s.schedLock.Unlock()
		return nil, &RuntimeError{Message: "run_watchdog requires a current tasklet (call from the scheduler's owning goroutine)"}
	}
	s.tickWatermark = timeout
	if !flags.has(RunTotalTimeout) {
		s.tickCounter = 0
	}
	s.runflags = flags
	// Push caller onto the watchdog stack per spec.md §3's "watchdogs:
	// ordered sequence of active watchdog tasklets (innermost last)" —
	// it is the target of both soft-interrupt delivery and uncaught
	// exception routing for as long as this call is on the stack.
	s.watchdogs = append(s.watchdogs, caller)
	next := s.pickNextLocked(true)
	s.schedLock.Unlock()

	defer func() {
		s.schedLock.Lock()
		for i := len(s.watchdogs) - 1; i >= 0; i-- {
			if s.watchdogs[i] == caller {
				s.watchdogs = append(s.watchdogs[:i], s.watchdogs[i+1:]...)
				break
			}
		}
		s.schedLock.Unlock()
	}()

	if next == nil || next == caller {
		if !flags.has(RunThreadBlock) {
			return nil, nil
		}
		// No other runnable tasklet and blocking was requested: park the
		// caller on blockLock until Insert/Switch from elsewhere wakes
		// this scheduler, then retry once. Dropping the global lock around
		// the park is what lets another OS thread's tasklets actually run
		// while this thread sits idle, per spec.md §1/§5's GIL-hook
		// description; without it every other thread sharing globalLock
		// would stall for as long as this one is parked.
		s.isBlocked.Store(true)
		// is_idle brackets the same window as is_blocked, grounded in
		// original_source/Stackless/module/scheduling.c's
		// schedule_thread_block (is_idle set right before the block-lock
		// acquire, cleared right after) — it is not a synonym for "this
		// scheduler's ready queue is permanently empty" (see finishTasklet).
		s.isIdle.Store(true)
		s.runState.TryTransition(StateRunning, StateSleeping)
		s.globalLock.Drop()
		<-s.blockLock
		s.globalLock.Acquire()
		s.isIdle.Store(false)
		s.runState.TryTransition(StateSleeping, StateRunning)
		s.schedLock.Lock()
		next = s.pickNextLocked(true)
		s.schedLock.Unlock()
		if next == nil || next == caller {
			return nil, nil
		}
	}

	s.runState.TryTransition(StateAwake, StateRunning)
	if err := s.Switch(next); err != nil {
		return nil, err
	}

	s.schedLock.Lock()
	interrupted := s.interrupted
	s.interrupted = nil
	s.tickWatermark = 0
	s.schedLock.Unlock()
	return interrupted, nil
}

// SetInterruptHook installs fn to be called (on the scheduler's own
// goroutine) the instant a watchdog timeout is delivered, before control
// returns to RunWatchdog's caller — useful for logging or for deciding
// whether to Kill the offending tasklet immediately rather than waiting
// for RunWatchdog to return.
func (s *Scheduler) SetInterruptHook(fn func(t *Tasklet)) {
	s.schedLock.Lock()
	s.interruptHook = fn
	s.schedLock.Unlock()
}
