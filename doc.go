// Package tasklet provides a cooperative microthread runtime modeled on
// Stackless Python's tasklet/channel scheduler: one [Scheduler] per OS
// thread, each holding a circular ready queue of [Tasklet]s, with
// [Channel] providing balanced synchronous rendezvous between them.
//
// # Architecture
//
// A [Scheduler] owns a ready queue (an intrusive circular doubly-linked
// list, head == current) together with a distinguished main [Tasklet].
// [Scheduler.Switch] transfers control from the calling tasklet to a
// target tasklet, parking the caller's goroutine on a per-tasklet resume
// channel until something switches back to it — the same mechanism
// serves both a tasklet voluntarily yielding and a soft-interrupt forcing
// control back to main, per [Scheduler.RunWatchdog]'s tick-watermark
// accounting.
//
// [Tasklet] itself drives a stack of [Frame] values — the host-supplied
// unit of resumable work — via [Scheduler.runFrames]; a Frame that wants
// to switch ends its own Run call with FrameResult.Unwound rather than
// blocking inline, so chains of cooperative calls don't grow the Go call
// stack one frame per link.
//
// # Thread Safety
//
// A Scheduler's ready queue must only be driven (via its Run goroutine)
// from the single OS thread it is bound to for its lifetime, matching the
// original's one-thread-state-per-thread model. [Scheduler.Insert] may be
// called across threads: inserting a tasklet that belongs to a different,
// running scheduler splices it onto that scheduler's own queue and wakes
// it if idle. [Scheduler.Switch] performs no cross-thread hand-off and must
// be called by the goroutine driving the scheduler.
//
// [Channel] is safe for concurrent Send/Receive from tasklets belonging
// to different schedulers; the wait-queue and balance updates happen under
// the channel's own lock (which takes a scheduler's lock while held to
// requeue the woken partner), and any preference-driven switch happens
// only after the channel's lock is released.
//
// # Usage
//
//	sched, err := tasklet.NewScheduler()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	t := sched.Main() // or tasklet.NewTasklet() bound and inserted
//	_ = t
package tasklet
