package tasklet

import "testing"

// funcFrame adapts a plain Go function into a Frame for tests: the
// function runs to completion on the tasklet's own goroutine, blocking
// (if at all) through real Channel/Switch calls rather than the Unwound
// resume protocol. Mirrors cmd/pingpong's own funcFrame.
type funcFrame struct {
	fn  func() (any, error)
	ran bool
}

func newFuncFrame(fn func() (any, error)) *funcFrame {
	return &funcFrame{fn: fn}
}

func (f *funcFrame) Run(FrameInput) FrameResult {
	if f.ran {
		return FrameResult{Err: &SystemError{Message: "funcFrame re-entered after completion"}}
	}
	f.ran = true
	value, err := f.fn()
	if err != nil {
		return FrameResult{Err: err}
	}
	return FrameResult{Value: value}
}

// bindFunc is a small test convenience wrapping NewTasklet+Bind.
func bindFunc(t *testing.T, fn func() (any, error), opts ...TaskletOption) *Tasklet {
	t.Helper()
	tk := NewTasklet()
	if err := tk.Bind(newFuncFrame(fn), opts...); err != nil {
		t.Fatalf("bind: %v", err)
	}
	return tk
}

// drain repeatedly calls RunWatchdog(0) until only sched's main tasklet
// remains on the ready queue, or the iteration cap is hit (a stalled
// scheduler is a test failure, not a retry scenario).
func drain(t *testing.T, sched *Scheduler) {
	t.Helper()
	for i := 0; sched.GetRunCount() > 1; i++ {
		if i > 10000 {
			t.Fatalf("drain: ready queue failed to empty (runcount=%d)", sched.GetRunCount())
		}
		if _, err := sched.RunWatchdog(0); err != nil {
			t.Fatalf("RunWatchdog: %v", err)
		}
	}
}
