package tasklet

// cstate is the Go realization of spec.md §3's C-stack snapshot: in this
// port "native stack" is a goroutine's real stack, so cstate records
// whether a tasklet currently owns a parked goroutine (live) together with
// the nestingLevel mirror used for Restorable()/diagnostics.
//
// Simplification (see DESIGN.md): rather than implement two different
// mechanisms for "soft" and "hard" switch — which Go's runtime gives us no
// safe primitive to do for the soft case without a real interpreter
// driving bytecode dispatch — every switch uses the same goroutine
// park/resume rendezvous. This is licensed directly by spec.md §4.2's own
// invariant: "for any tasklet with nesting_level == 0, soft-switch and
// hard-switch must leave identical observable state" — if the two paths
// must be observably identical, collapsing them to one mechanism loses no
// conformance, and nestingLevel/Restorable bookkeeping is preserved
// exactly for API fidelity.
type cstate struct {
	nestingLevel int

	// resume is an unbuffered rendezvous channel: sending to it wakes the
	// tasklet's parked goroutine, handing it the tempval/excInfo it
	// should resume with. Grounded on alphadose-ZenQ's ThreadParker
	// park/ready pattern (thread_parker.go) — a goroutine genuinely
	// retains its OS-level stack while blocked on a channel receive,
	// which is exactly the property a C-stack snapshot needs.
	resume chan frameInputMsg
	live   bool
}

type frameInputMsg struct {
	retval  Tempval
	excInfo *ExcInfo
}

func ensureCstate(t *Tasklet) *cstate {
	if t.cstate == nil {
		t.cstate = &cstate{resume: make(chan frameInputMsg)}
	}
	return t.cstate
}

// Switch transfers control of t.sched to target, suspending the caller.
// Per spec.md's Tasklet API, this call blocks the calling goroutine until
// something switches back to the tasklet that called it — matching
// CPython stackless's tasklet.switch() semantics, where only one tasklet
// (or, here, one goroutine) is ever the active driver of a given
// Scheduler at a time.
func (s *Scheduler) Switch(target *Tasklet) error {
	s.schedLock.Lock()
	if s.switchTrap != 0 && target != s.current {
		s.schedLock.Unlock()
		return &RuntimeError{Message: "cannot switch while switch_trap is set"}
	}
	if target.state == StateTaskletDead {
		s.schedLock.Unlock()
		return &RuntimeError{Message: "cannot switch to a dead tasklet"}
	}
	if target.flags.has(FlagIsZombie) {
		s.schedLock.Unlock()
		return &RuntimeError{Message: "cannot switch to a zombie tasklet"}
	}
	prev := s.current
	if prev == target {
		s.schedLock.Unlock()
		return nil
	}

	s.serial++
	if prev != nil && prev.state == StateTaskletCurrent && prev.next != nil {
		// prev is still linked in a ready queue: a plain switch between
		// two runnable tasklets, so prev simply stops being current.
		// If prev.next == nil the caller has already transitioned prev
		// to a different state (e.g. StateTaskletBlocked, parked on a
		// Channel) before calling Switch, and that state must stick.
		prev.state = StateTaskletRunnable
	}
	s.current = target
	target.state = StateTaskletCurrent
	if target.next != nil {
		// target is linked in this scheduler's ready queue: keep head
		// pointing at the current tasklet (scheduler.go's documented
		// head-is-current invariant), so a later pickNextLocked call —
		// e.g. from RunWatchdogEx, or a nested finishTasklet/parkAndWait —
		// resolves relative to who is actually running now rather than
		// whoever was running before this switch.
		s.head = target
	}
	s.schedLock.Unlock()

	if s.scheduleCallback != nil {
		s.scheduleCallback(prev, target)
	}
	if s.scheduleFastCallback != nil {
		if err := s.scheduleFastCallback(prev, target); err != nil {
			rateLimitedLogEvent(s.logger, LogWarning, "schedule-fastcallback", "schedule fast callback failed", errField(err))
		}
	}

	tc := ensureCstate(target)
	if tc.live {
		tc.live = false
		tc.resume <- frameInputMsg{retval: target.tempval, excInfo: target.excInfo}
	} else {
		go s.runFrames(target)
	}

	if prev == nil {
		// scheduler bootstrap: the very first Switch on a fresh
		// Scheduler has no caller tasklet to park.
		return nil
	}

	pc := ensureCstate(prev)
	pc.live = true
	in := <-pc.resume
	pc.live = false
	prev.tempval = in.retval
	prev.excInfo = in.excInfo
	return nil
}

// runFrames drives t's frame stack on the calling goroutine until the
// scheduler has nothing left to run on this goroutine (the ready queue
// goes idle, or control has permanently moved to a different parked
// goroutine via Switch's own rendezvous). It is the trampoline loop
// grounded on the teacher's Loop.run/Loop.tick cadence, generalized from
// "pop one callback, run it" to "pop one frame, run it, and keep the same
// tasklet current across an internal Switch round-trip."
func (s *Scheduler) runFrames(start *Tasklet) {
	t := start
	for t != nil {
		frame := t.GetFrame()
		if frame == nil {
			t = s.finishTasklet(t, NoneValue{}, nil)
			continue
		}
		if s.shouldInterrupt(t) {
			s.schedLock.Lock()
			t.flags = t.flags.set(FlagPendingIRQ, false)
			s.interrupted = t
			s.tickWatermark = 0
			hook := s.interruptHook
			watchdog := s.activeWatchdogLocked()
			s.schedLock.Unlock()
			if hook != nil {
				hook(t)
			}
			if t != watchdog {
				if err := s.Switch(watchdog); err == nil {
					continue
				}
				// the watchdog is unreachable (dead, or this scheduler has
				// no distinct watchdog); fall through and keep running t.
			}
		}
		res := frame.Run(FrameInput{Retval: t.tempval, ExcInfo: t.excInfo, TryStackless: s.GetStackless()})
		// One tick per frame step that actually ran; a watermark reached
		// here is acted on by shouldInterrupt on the next iteration.
		s.tick()
		switch {
		case res.Err != nil:
			t = s.finishTasklet(t, nil, res.Err)
		case res.Unwound:
			// t performed (and has already completed) an internal
			// Switch round-trip; re-drive the same top frame with
			// whatever tempval/excInfo it was resumed with.
			continue
		default:
			t = s.popFrame(t, res.Value)
		}
	}
}

// popFrame pops t's innermost frame after it returned value normally. If
// frames remain, t keeps running (the popped frame's return value becomes
// the next frame's retval); otherwise t has finished.
func (s *Scheduler) popFrame(t *Tasklet, value any) *Tasklet {
	t.frames = t.frames[:len(t.frames)-1]
	if len(t.frames) == 0 {
		return s.finishTasklet(t, value, nil)
	}
	t.tempval = value
	return t
}

// finishTasklet handles a tasklet reaching the end of its frame stack,
// either normally (err == nil) or via an uncaught error, per spec.md §4.8.
// It returns the next tasklet this goroutine should drive, or nil if the
// ready queue has gone idle.
func (s *Scheduler) finishTasklet(t *Tasklet, value any, err error) *Tasklet {
	s.schedLock.Lock()

	if t.next != nil {
		wasHead, next := removeLocked(t)
		if wasHead || s.head == t {
			if next == nil {
				s.head = nil
			} else {
				s.head = next
			}
		}
		s.runcount--
	}

	var routeToWatchdog *Tasklet
	switch {
	case err != nil:
		var exit *TaskletExit
		if te, ok := err.(*TaskletExit); ok {
			exit = te
		}
		t.state = StateTaskletDead
		t.flags = t.flags.set(FlagIsZombie, true)
		t.tempval = NewBomb(err, nil, nil)
		if exit == nil {
			rateLimitedLogEvent(s.logger, LogError, "uncaught-exception", "tasklet died with uncaught exception", f("tasklet", t.id), errField(err))
			// Per spec.md §4.8: an uncaught (non-TaskletExit) exception is
			// routed to the innermost watchdog rather than left for
			// whichever tasklet the ready queue's FIFO order happens to
			// pick next — the Bomb itself stays in t.tempval (the dead
			// tasklet's own slot) for whoever inspects it; only scheduling
			// priority changes here.
			if wd := s.activeWatchdogLocked(); wd != nil && wd != t {
				routeToWatchdog = wd
			}
		}
	case t.flags.has(FlagAutoschedule) && t.initialFrame != nil:
		t.frames = []Frame{t.initialFrame}
		t.tempval = NoneValue{}
		t.state = StateTaskletRunnable
		s.insertLocked(t)
	default:
		t.state = StateTaskletDead
		t.flags = t.flags.set(FlagIsZombie, true)
		t.tempval = value
	}

	next := routeToWatchdog
	if next == nil {
		next = s.pickNextLocked(false)
	}
	if next != nil {
		next.state = StateTaskletCurrent
		s.current = next
	} else {
		// The ready queue is now genuinely empty (even main is gone), a
		// distinct and essentially terminal condition from is_idle's
		// "parked on blockLock, ready queue still has a current" — see
		// watchdog.go's RunWatchdogEx for where is_idle is actually
		// tracked.
		s.current = nil
	}
	s.schedLock.Unlock()

	if next == nil {
		return nil
	}
	if nc := next.cstate; nc != nil && nc.live {
		// next already owns a parked goroutine (it blocked earlier via
		// Switch's own rendezvous, e.g. on a Channel); only that
		// goroutine may legally continue driving it. Wake it and let
		// this goroutine's runFrames loop end here, since t (the tasklet
		// that just finished) needed no park of its own.
		nc.live = false
		nc.resume <- frameInputMsg{retval: next.tempval, excInfo: next.excInfo}
		return nil
	}
	return next
}

// shouldInterrupt reports whether t has accumulated a pending soft
// interrupt that is now deliverable, per spec.md §4.1's soft-interrupt
// rewrite: deliverable only outside of Atomic, only when the RunWatchdogEx
// call that set the watermark did not request RunNoSoftIRQ, and only while
// t is not nesting (unless nesting is ignored by flag).
func (s *Scheduler) shouldInterrupt(t *Tasklet) bool {
	if !t.flags.has(FlagPendingIRQ) {
		return false
	}
	if t.flags.has(FlagAtomic) {
		return false
	}
	if s.runflags.has(RunNoSoftIRQ) {
		return false
	}
	if t.nestingLevel > 0 && !s.runflags.has(RunIgnoreNesting) && !t.flags.has(FlagIgnoreNesting) {
		return false
	}
	return true
}

// pickNextLocked returns the tasklet that should become current next.
// Caller must hold schedLock, and must say whether s.current is still
// linked into the ready queue (currentLinked) — this cannot be inferred
// from s.current.next alone, since that same field pair is reused to
// thread a blocked tasklet onto a Channel's wait queue (spec.md §9's
// dual-purpose pointer design note), so a just-parked current can have a
// non-nil next that points into a completely different chain.
//
// Callers that have already unlinked s.current from the ready queue
// (finishTasklet, Channel's parkAndWait) pass false: s.head has already
// been advanced to whoever is now first in the ring, so that is the
// answer. Callers where s.current is still a ring member (a plain
// voluntary yield, e.g. Schedule's non-remove path, or RunWatchdogEx
// picking a target while its caller is still current) pass true: the next
// candidate is current's ring successor, not s.head — s.head tracks
// current, not "current's successor", per Switch's head-is-current
// bookkeeping.
func (s *Scheduler) pickNextLocked(currentLinked bool) *Tasklet {
	if currentLinked {
		cur := s.current
		if cur == nil || cur.next == cur {
			return nil
		}
		return cur.next
	}
	if s.head == nil {
		return nil
	}
	return s.head
}

// CallNested brackets a call into host collaborator code that may itself
// (directly or indirectly) call Switch without returning the unwind token
// up through Frame.Run in tail position — e.g. a metaclass-style reentrant
// callback. It increments the scheduler's nesting counter for the
// duration of fn, mirroring spec.md §3's "recursion_depth, nesting_level
// mirrors of interpreter counters."
//
// In this port CallNested has no effect on the switch *mechanism* (see
// cstate's doc comment), only on the nestingLevel/Restorable bookkeeping
// a host may rely on for diagnostics or for rejecting unsafe operations.
func (s *Scheduler) CallNested(fn func() error) error {
	s.schedLock.Lock()
	s.nestingLevel++
	if s.current != nil {
		s.current.nestingLevel = s.nestingLevel
		if s.current.cstate != nil {
			s.current.cstate.nestingLevel = s.nestingLevel
		}
	}
	s.schedLock.Unlock()

	defer func() {
		s.schedLock.Lock()
		s.nestingLevel--
		if s.current != nil {
			s.current.nestingLevel = s.nestingLevel
			if s.current.cstate != nil {
				s.current.cstate.nestingLevel = s.nestingLevel
			}
		}
		s.schedLock.Unlock()
	}()

	return fn()
}
