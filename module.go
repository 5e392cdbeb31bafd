package tasklet

// This file groups the module-level API spec.md §6 lists that is not
// naturally a method of Tasklet/Channel: the free functions a host would
// otherwise reach via a package-global interpreter module, realized here
// as Scheduler methods since every one of them is scoped to a single
// thread scheduler record.

// Schedule cooperatively yields the scheduler's current tasklet: it is
// moved to the tail of the ready queue (unless remove is true, in which
// case it is taken off the queue entirely, becoming Paused) and the next
// ready tasklet is switched to. retval is installed as the caller's own
// tempval before yielding; the return value reflects whatever tempval it
// actually carries once rescheduled (ordinarily the same value, unless
// some other operation — an exception injection, a channel rendezvous —
// overwrote it in the meantime), matching spec.md §6's schedule(retval,
// remove).
func (s *Scheduler) Schedule(retval Tempval, remove bool) (Tempval, error) {
	s.schedLock.Lock()
	t := s.current
	if t == nil {
		s.schedLock.Unlock()
		return nil, &RuntimeError{Message: "schedule called with no current tasklet"}
	}
	t.tempval = retval

	var next *Tasklet
	if remove {
		if t.next != nil {
			wasHead, n := removeLocked(t)
			if wasHead || s.head == t {
				s.head = n
			}
			s.runcount--
		}
		t.state = StateTaskletPaused
		next = s.pickNextLocked(false)
	} else {
		next = t.next
		if next == t {
			next = nil
		}
	}
	s.schedLock.Unlock()

	if next == nil {
		return t.tempval, nil
	}
	if err := s.Switch(next); err != nil {
		return nil, err
	}
	return explodeIfBomb(t.tempval)
}

// GetRunCount returns the number of tasklets on this scheduler's ready
// queue, per spec.md §6's get_runcount. Equivalent to RunCount.
func (s *Scheduler) GetRunCount() int { return s.RunCount() }

// GetCurrent returns the scheduler's currently running tasklet, per
// spec.md §6's get_current. Equivalent to Current.
func (s *Scheduler) GetCurrent() *Tasklet { return s.Current() }

// GetCurrentID returns the id of the scheduler's currently running
// tasklet, or 0 if none, per spec.md §6's get_current_id.
func (s *Scheduler) GetCurrentID() uint64 {
	t := s.Current()
	if t == nil {
		return 0
	}
	return t.ID()
}

// SetChannelCallback installs the scheduler-wide default channel callback
// applied to every Channel used by a tasklet on this scheduler that has
// not installed its own via Channel.SetCallback, per spec.md §6's
// set_channel_callback.
func (s *Scheduler) SetChannelCallback(cb func(ch *Channel, t *Tasklet, sending, willBlock bool)) {
	s.schedLock.Lock()
	s.channelCallback = cb
	s.schedLock.Unlock()
}

// SetScheduleCallback installs a hook invoked around every switch on this
// scheduler, per spec.md §6's set_schedule_callback.
func (s *Scheduler) SetScheduleCallback(cb func(prev, next *Tasklet)) {
	s.schedLock.Lock()
	s.scheduleCallback = cb
	s.schedLock.Unlock()
}

// SetScheduleFastCallback installs the lower-allocation callback variant
// from Stackless/module/scheduling.c's schedule_fastcallback: unlike
// SetScheduleCallback's closure, it is expected to be a small, largely
// allocation-free function and its error return is treated as a
// diagnostic (rate-limited log), not a fatal switch failure, matching the
// original's "fast" callback being best-effort.
func (s *Scheduler) SetScheduleFastCallback(cb func(prev, next *Tasklet) error) {
	s.schedLock.Lock()
	s.scheduleFastCallback = cb
	s.schedLock.Unlock()
}

// PickleFlagsDefault is the bootstrap default from
// Stackless/module/taskletobject.c's pickle_flags_default: pickling is
// opt-in, no flags set.
const PickleFlagsDefault uint32 = 0

// PickleFlags atomically updates the subset of the scheduler's pickle-flag
// bitmask selected by mask to the corresponding bits of newFlags, and
// returns the previous full bitmask. This core never implements
// serialization itself (Picklable remains an external collaborator, per
// spec.md §1); the bitmask is retained purely so a host pickling
// implementation has somewhere canonical to store its own flags, mirroring
// Stackless/module/taskletobject.c's pickle_flags(new, mask).
func (s *Scheduler) PickleFlags(newFlags, mask uint32) uint32 {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	old := s.pickleflags
	s.pickleflags = (s.pickleflags &^ mask) | (newFlags & mask)
	return old
}
