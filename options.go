// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package tasklet

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	logger          Logger
	tickInterval    int64
	diagnosticRates map[string]map[int64]int
	runFlags        RunFlags
	globalLock      GlobalLock
}

// SchedulerOption configures a Scheduler instance.
type SchedulerOption interface {
	applyScheduler(*schedulerOptions) error
}

type schedulerOptionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (o *schedulerOptionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithLogger attaches a structured logger to a Scheduler. A nil logger (the
// default) resolves to a no-op logger.
func WithLogger(logger Logger) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTickInterval records a tick interval on the scheduler; a negative
// interval is rejected. No code reads the stored value: tick interrupts
// are driven only by the timeout passed to RunWatchdog/RunWatchdogEx, and
// an interval of zero does not disable them.
func WithTickInterval(interval int64) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		if interval < 0 {
			return &ValueError{Message: "tick interval must not be negative"}
		}
		opts.tickInterval = interval
		return nil
	}}
}

// WithRunFlags sets the scheduler's initial RunFlags. Every RunWatchdog or
// RunWatchdogEx call replaces them with its own flags (RunWatchdog passes
// zero), so the value set here is not used as a default for those calls.
func WithRunFlags(flags RunFlags) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.runFlags = flags
		return nil
	}}
}

// WithGlobalLock installs the GIL-like cooperative lock a Scheduler drops
// around its idle blockLock park and re-acquires on waking, per spec.md
// §1/§5's GIL-hook description — letting callers coordinate several
// Schedulers (e.g. one OS-thread each) sharing some exclusive resource the
// way CPython's tasklets share the interpreter lock. The default, when
// unset, is a no-op lock: a single Scheduler needs no coordination with
// anything else.
func WithGlobalLock(lock GlobalLock) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.globalLock = lock
		return nil
	}}
}

// resolveSchedulerOptions applies SchedulerOption instances to schedulerOptions.
func resolveSchedulerOptions(opts []SchedulerOption) (*schedulerOptions, error) {
	cfg := &schedulerOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	// cfg.logger left nil is valid: logEvent treats a nil Logger as a no-op.
	if cfg.globalLock == nil {
		cfg.globalLock = noopGlobalLock{}
	}
	return cfg, nil
}

// --- Tasklet options ---

// taskletOptions holds configuration applied at Bind time.
type taskletOptions struct {
	atomic        bool
	ignoreNesting bool
	autoschedule  bool
	blockTrap     bool
}

// TaskletOption configures a Tasklet at Bind time.
type TaskletOption interface {
	applyTasklet(*taskletOptions) error
}

type taskletOptionImpl struct {
	applyTaskletFunc func(*taskletOptions) error
}

func (o *taskletOptionImpl) applyTasklet(opts *taskletOptions) error {
	return o.applyTaskletFunc(opts)
}

// WithAtomic sets the tasklet's initial Atomic flag: an atomic tasklet
// ignores the tick-driven interrupt, the only interrupt there is, until
// cleared.
func WithAtomic(enabled bool) TaskletOption {
	return &taskletOptionImpl{func(opts *taskletOptions) error {
		opts.atomic = enabled
		return nil
	}}
}

// WithIgnoreNesting sets the tasklet's initial IgnoreNesting flag,
// permitting soft switches even while nestingLevel > 0. Use with care: it
// is the caller's responsibility to ensure re-entering the trampoline at a
// nonzero nesting level is actually safe for the collaborator in question.
func WithIgnoreNesting(enabled bool) TaskletOption {
	return &taskletOptionImpl{func(opts *taskletOptions) error {
		opts.ignoreNesting = enabled
		return nil
	}}
}

// WithAutoschedule sets the tasklet's initial Autoschedule flag: when the
// tasklet's outermost Frame.Run returns normally (not via block or kill),
// the scheduler reinserts it at the tail of the ready queue instead of
// marking it dead, looping it automatically.
func WithAutoschedule(enabled bool) TaskletOption {
	return &taskletOptionImpl{func(opts *taskletOptions) error {
		opts.autoschedule = enabled
		return nil
	}}
}

// WithBlockTrap sets the tasklet's initial BlockTrap flag: any attempt to
// block this tasklet on a channel raises a RuntimeError instead of parking
// it, used by watchdog/supervisor tasklets that must never be paused by a
// channel operation.
func WithBlockTrap(enabled bool) TaskletOption {
	return &taskletOptionImpl{func(opts *taskletOptions) error {
		opts.blockTrap = enabled
		return nil
	}}
}

// resolveTaskletOptions applies TaskletOption instances to taskletOptions.
func resolveTaskletOptions(opts []TaskletOption) (*taskletOptions, error) {
	cfg := &taskletOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyTasklet(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// --- Channel options ---

// channelOptions holds configuration options for Channel creation.
type channelOptions struct {
	preference  int8
	scheduleAll bool
	blockTrap   bool
}

// ChannelOption configures a Channel instance.
type ChannelOption interface {
	applyChannel(*channelOptions) error
}

type channelOptionImpl struct {
	applyChannelFunc func(*channelOptions) error
}

func (o *channelOptionImpl) applyChannel(opts *channelOptions) error {
	return o.applyChannelFunc(opts)
}

// Channel preference constants, matching the data model's int8 preference
// field: negative (PreferReceiver) switches control directly to the
// receiver once a send completes the rendezvous, positive (PreferSender)
// switches directly to the sender once a receive completes it, zero leaves
// both sides merely runnable and lets the scheduler's own ordering decide.
const (
	PreferReceiver int8 = -1
	Neutral        int8 = 0
	PreferSender   int8 = 1
)

// WithPreference sets a Channel's scheduling preference.
func WithPreference(preference int8) ChannelOption {
	return &channelOptionImpl{func(opts *channelOptions) error {
		if preference < PreferReceiver || preference > PreferSender {
			return &ValueError{Message: "preference must be one of PreferReceiver, Neutral, PreferSender"}
		}
		opts.preference = preference
		return nil
	}}
}

// WithScheduleAll sets a Channel's ScheduleAll flag: when true, both the
// newly-woken tasklet and the tasklet performing the send/receive are
// placed on the ready queue, instead of the partner directly inheriting
// the current slot.
func WithScheduleAll(enabled bool) ChannelOption {
	return &channelOptionImpl{func(opts *channelOptions) error {
		opts.scheduleAll = enabled
		return nil
	}}
}

// WithChannelBlockTrap records a BlockTrap flag in the channel's options.
// NewChannel does not read it: whether a blocking Send/Receive raises a
// RuntimeError instead of parking depends only on the tasklet's own
// BlockTrap flag.
func WithChannelBlockTrap(enabled bool) ChannelOption {
	return &channelOptionImpl{func(opts *channelOptions) error {
		opts.blockTrap = enabled
		return nil
	}}
}

// resolveChannelOptions applies ChannelOption instances to channelOptions.
func resolveChannelOptions(opts []ChannelOption) (*channelOptions, error) {
	cfg := &channelOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyChannel(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// diagnosticLimiter is a package-level rate limiter for throttling repeated
// log lines (deadlock detection, uncaught exceptions, schedule
// fast-callback failures, inserts), grounded on catrate's multi-window
// per-category design: a handful of coarse windows is enough to keep a
// busy-looping caller from flooding the log.
var diagnosticLimiter = catrate.NewLimiter(map[time.Duration]int{
	time.Second:      5,
	time.Minute:      60,
})
