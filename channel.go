package tasklet

import "sync"

// Channel is the balanced synchronous rendezvous primitive from spec.md
// §4.5: a Send blocks until a matching Receive is ready and vice versa,
// with no buffering — the "balance" is the signed count of tasklets
// currently waiting (positive = senders waiting, negative = receivers).
type Channel struct {
	mu sync.Mutex

	// head is the wait-queue sentinel: a *Tasklet-shaped node with
	// isChannelSentinel set, so the same next/prev intrusive chain used
	// by the ready queue threads the wait queue too, per spec.md §9's
	// dual-purpose pointer design note.
	head *Tasklet

	balance     int
	preference  int8
	scheduleAll bool
	closing     bool
	closed      bool

	callback func(ch *Channel, t *Tasklet, sending, willBlock bool)
	logger   Logger
}

// NewChannel constructs a Channel. Without WithPreference its preference
// is Neutral.
func NewChannel(opts ...ChannelOption) (*Channel, error) {
	cfg, err := resolveChannelOptions(opts)
	if err != nil {
		return nil, err
	}
	sentinel := &Tasklet{isChannelSentinel: true}
	sentinel.next, sentinel.prev = sentinel, sentinel
	return &Channel{
		head:        sentinel,
		preference:  cfg.preference,
		scheduleAll: cfg.scheduleAll,
	}, nil
}

// enqueueLocked splices t onto the tail of ch's wait queue. It guards the
// "MUST hold" invariant that a tasklet is never threaded onto two chains at
// once (spec.md §9's dual-purpose pointer design note): a non-nil next/prev
// here means some caller enqueued t without first unlinking it from
// wherever it already was, which is a scheduler bug rather than anything a
// caller could trigger through normal use.
func (ch *Channel) enqueueLocked(t *Tasklet) error {
	if t.next != nil || t.prev != nil {
		return &SystemError{Message: "invariant violated: tasklet already linked onto a chain"}
	}
	tail := ch.head.prev
	tail.next = t
	t.prev = tail
	t.next = ch.head
	ch.head.prev = t
	return nil
}

func (ch *Channel) dequeueFrontLocked() (*Tasklet, error) {
	if ch.head.next == ch.head {
		return nil, nil
	}
	t := ch.head.next
	if err := removeChannelNodeLocked(t); err != nil {
		return nil, err
	}
	return t, nil
}

// removeChannelNodeLocked splices t out of whichever Channel wait queue it
// is in. It is the Channel-side counterpart of scheduler.go's
// removeLocked, kept separate because the two intrusive chains are
// protected by different locks (Channel.mu vs Scheduler.schedLock). It
// guards the "MUST hold" invariant that a node being removed is actually
// linked into a chain; a nil next/prev here means it was already removed
// (a double-removal), which is a scheduler bug rather than anything a
// caller could trigger through normal use.
func removeChannelNodeLocked(t *Tasklet) error {
	if t.next == nil || t.prev == nil {
		return &SystemError{Message: "invariant violated: tasklet not linked onto any chain"}
	}
	next, prev := t.next, t.prev
	prev.next = next
	next.prev = prev
	t.next, t.prev = nil, nil
	return nil
}

// unblockFromChannel removes t from the Channel it is currently parked on
// and restores that channel's balance, used when an exception is
// installed directly into a blocked tasklet (Tasklet.Throw/Kill with
// pending=false, or Scheduler.wakeBlocked's pending=true path), per
// spec.md §4.6.
func unblockFromChannel(t *Tasklet) error {
	ch := t.blockedOn
	if ch == nil {
		return &RuntimeError{Message: "tasklet is marked blocked but has no channel recorded"}
	}
	ch.mu.Lock()
	err := removeChannelNodeLocked(t)
	if err == nil {
		if t.blocked == BlockedSend {
			ch.balance--
		} else {
			ch.balance++
		}
	}
	ch.mu.Unlock()
	t.blocked = BlockedNone
	t.blockedOn = nil
	return err
}

// Send blocks the calling tasklet t until a matching Receive rendezvous
// completes (or the channel is closed out from under it), delivering
// value to the receiver.
func (ch *Channel) Send(t *Tasklet, value Tempval) error {
	return ch.transfer(t, value, true)
}

// Receive blocks the calling tasklet t until a matching Send rendezvous
// completes, returning the sent value. If the delivered value is a *Bomb
// (installed via SendException/SendThrow), it is exploded into an error
// instead of being returned as a value, matching spec.md §4.6's tempval
// convention. A Receive on a closed or closing channel with no sender
// waiting returns a *RuntimeError directly; no Bomb is involved.
func (ch *Channel) Receive(t *Tasklet) (Tempval, error) {
	if err := ch.transfer(t, nil, false); err != nil {
		return nil, err
	}
	return explodeIfBomb(t.tempval)
}

func explodeIfBomb(v Tempval) (Tempval, error) {
	if b, ok := v.(*Bomb); ok {
		return nil, b.Explode()
	}
	return v, nil
}

// SendException is equivalent to Send, except the receiver's rendezvous
// value is a pending exception rather than a plain value, per spec.md
// §4.5's send_exception.
func (ch *Channel) SendException(t *Tasklet, class error, args any) error {
	return ch.transfer(t, NewBomb(class, args, nil), true)
}

// SendThrow installs (exc, val, tb) as the rendezvous value delivered to
// the matching receiver, per spec.md §4.5's send_throw.
func (ch *Channel) SendThrow(t *Tasklet, exc error, val any, tb []Frame) error {
	return ch.transfer(t, NewBomb(exc, val, tb), true)
}

// transfer implements both Send (sending=true) and Receive (sending=false)
// as a single balanced rendezvous, per spec.md §4.5.
func (ch *Channel) transfer(t *Tasklet, value Tempval, sending bool) error {
	if t.sched == nil {
		return &RuntimeError{Message: "channel operation requires a scheduled tasklet"}
	}

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return &RuntimeError{Message: "channel is closed"}
	}

	oppositeWaiting := (sending && ch.balance < 0) || (!sending && ch.balance > 0)
	if oppositeWaiting {
		partner, err := ch.dequeueFrontLocked()
		if err != nil {
			ch.mu.Unlock()
			return err
		}
		if sending {
			ch.balance++
			partner.tempval = value
		} else {
			ch.balance--
		}
		ch.mu.Unlock()

		ch.invokeCallback(t, sending, false)
		return ch.completeRendezvous(t, partner, value, sending)
	}

	if ch.closing {
		ch.mu.Unlock()
		return &RuntimeError{Message: "channel is closing: no matching party will arrive"}
	}
	if t.flags.has(FlagBlockTrap) {
		ch.mu.Unlock()
		return &RuntimeError{Message: "tasklet has block_trap set: refusing to block on channel"}
	}

	if sending {
		t.tempval = value
		ch.balance++
	} else {
		ch.balance--
	}
	t.blocked = blockedStateFor(sending)
	t.blockedOn = ch

	// t.next/t.prev are about to be repurposed to thread t onto ch's wait
	// queue (the same dual-purpose pointer pair used for the scheduler's
	// ready queue, per spec.md §9). t must be unlinked from the ready queue
	// first, or enqueueLocked below would clobber the ready-queue links
	// without anyone having spliced the neighbors back together.
	sched := t.sched
	sched.schedLock.Lock()
	if t.next != nil {
		wasHead, next := removeLocked(t)
		if wasHead || sched.head == t {
			sched.head = next
		}
		sched.runcount--
	}
	sched.schedLock.Unlock()

	if err := ch.enqueueLocked(t); err != nil {
		ch.mu.Unlock()
		return err
	}
	ch.mu.Unlock()

	ch.invokeCallback(t, sending, true)

	return ch.parkAndWait(t)
}

// invokeCallback runs the channel's own callback if one is installed via
// SetCallback, otherwise falls back to t's scheduler-wide default
// installed via Scheduler.SetChannelCallback, per spec.md §6's
// set_channel_callback being a single module-level hook that applies to
// every channel unless a channel overrides it.
func (ch *Channel) invokeCallback(t *Tasklet, sending, willBlock bool) {
	ch.mu.Lock()
	cb := ch.callback
	ch.mu.Unlock()
	if cb == nil && t.sched != nil {
		cb = t.sched.channelCallback
	}
	if cb != nil {
		cb(ch, t, sending, willBlock)
	}
}

func blockedStateFor(sending bool) BlockedState {
	if sending {
		return BlockedSend
	}
	return BlockedReceive
}

// completeRendezvous wakes partner (now off the channel's wait queue and
// due to be reinserted onto its own scheduler's ready queue) and, per the
// channel's preference, optionally switches control to it immediately.
func (ch *Channel) completeRendezvous(t, partner *Tasklet, value Tempval, sending bool) error {
	partner.blocked = BlockedNone
	partner.blockedOn = nil
	sched := partner.sched
	sched.schedLock.Lock()
	sched.insertLocked(partner)
	sched.schedLock.Unlock()
	sched.wakeIfParked()

	if !sending {
		t.tempval = partner.tempval
	}

	// A direct Switch can only move control to a tasklet on the same
	// scheduler; a cross-thread rendezvous leaves partner merely woken
	// (inserted above) on its own scheduler, which will pick it up on
	// its own next run.
	if t.sched == partner.sched && !ch.scheduleAll {
		switch ch.preference {
		case PreferReceiver:
			if sending {
				return t.sched.Switch(partner)
			}
		case PreferSender:
			if !sending {
				return t.sched.Switch(partner)
			}
		}
	}
	if ch.scheduleAll && t.sched == partner.sched {
		// Re-queue the caller too and yield to the next ready tasklet,
		// matching spec.md §4.5's schedule_all: neither side keeps running
		// implicitly, whatever the channel's preference.
		t.sched.schedLock.Lock()
		if t.next == nil {
			t.sched.insertLocked(t)
		}
		next := t.next
		t.sched.schedLock.Unlock()
		if next != t {
			return t.sched.Switch(next)
		}
	}
	return nil
}

// parkAndWait hands control to the next runnable tasklet on t's scheduler.
// t has already been unlinked from the ready queue and threaded onto ch's
// wait queue by transfer before this is called; parkAndWait only updates
// t's lifecycle state and picks who runs next, then blocks until something
// completes the rendezvous (or injects an exception via RaiseException/
// Throw, which wakes t through Scheduler.wakeBlocked).
func (ch *Channel) parkAndWait(t *Tasklet) error {
	sched := t.sched
	sched.schedLock.Lock()
	t.state = StateTaskletBlocked
	next := sched.pickNextLocked(false)
	sched.schedLock.Unlock()

	if next == nil {
		// Deadlock: nothing else is runnable on this scheduler to drive
		// while t is blocked. Undo the block so the caller can decide
		// how to handle it, rather than hanging this goroutine forever.
		ch.mu.Lock()
		if err := removeChannelNodeLocked(t); err != nil {
			ch.mu.Unlock()
			return err
		}
		if t.blocked == BlockedSend {
			ch.balance--
		} else {
			ch.balance++
		}
		ch.mu.Unlock()
		t.blocked = BlockedNone
		t.blockedOn = nil

		sched.schedLock.Lock()
		sched.insertLocked(t)
		sched.current = t
		t.state = StateTaskletCurrent
		sched.schedLock.Unlock()

		rateLimitedLogEvent(sched.logger, LogError, "deadlock", "channel operation would deadlock: no other runnable tasklet", f("tasklet", t.id), f("scheduler", sched.id))
		return &RuntimeError{Message: "deadlock: channel operation has no other runnable tasklet to switch to"}
	}

	return sched.Switch(next)
}

// Close marks the channel as closing: no further Send/Receive may block on
// it (they fail immediately once no matching party is already waiting),
// matching spec.md §4.5's close/open pair. Already-queued waiters are left
// alone; Open reopens the channel for new blocking operations.
func (ch *Channel) Close() {
	ch.mu.Lock()
	ch.closing = true
	ch.mu.Unlock()
}

// Open cancels a pending Close, allowing new blocking Send/Receive calls.
func (ch *Channel) Open() {
	ch.mu.Lock()
	ch.closing = false
	ch.mu.Unlock()
}

// GetQueue returns a snapshot of tasklets currently parked on this
// channel, in wait order.
func (ch *Channel) GetQueue() []*Tasklet {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	var out []*Tasklet
	for n := ch.head.next; n != ch.head; n = n.next {
		out = append(out, n)
	}
	return out
}

// GetClosing reports whether Close has been called without a matching Open.
func (ch *Channel) GetClosing() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closing
}

// GetClosed reports whether the channel is closed: Close has been called
// (without a later Open) and no tasklet is waiting on it, per spec.md §4.5.
func (ch *Channel) GetClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed || (ch.closing && ch.balance == 0)
}

// GetBalance returns the signed count of tasklets currently waiting:
// positive for waiting senders, negative for waiting receivers.
func (ch *Channel) GetBalance() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.balance
}

// GetPreference returns which side of a rendezvous keeps running.
func (ch *Channel) GetPreference() int8 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.preference
}

// SetPreference changes which side of a rendezvous keeps running.
func (ch *Channel) SetPreference(p int8) error {
	if p < PreferReceiver || p > PreferSender {
		return &ValueError{Message: "preference must be PreferReceiver, Neutral, or PreferSender"}
	}
	ch.mu.Lock()
	ch.preference = p
	ch.mu.Unlock()
	return nil
}

// GetScheduleAll reports whether both sides of a rendezvous are left
// merely runnable (rather than one of them being switched to directly).
func (ch *Channel) GetScheduleAll() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.scheduleAll
}

// SetScheduleAll sets the schedule_all behavior.
func (ch *Channel) SetScheduleAll(v bool) {
	ch.mu.Lock()
	ch.scheduleAll = v
	ch.mu.Unlock()
}

// SetCallback installs a hook invoked on every Send/Receive attempt,
// before any blocking occurs, mirroring spec.md §4.5's channel_callback.
func (ch *Channel) SetCallback(cb func(ch *Channel, t *Tasklet, sending, willBlock bool)) {
	ch.mu.Lock()
	ch.callback = cb
	ch.mu.Unlock()
}
