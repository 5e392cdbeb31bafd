package tasklet

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWatchdogDrainsToMainOnly(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	var order []string
	a := bindFunc(t, func() (any, error) { order = append(order, "a"); return nil, nil })
	b := bindFunc(t, func() (any, error) { order = append(order, "b"); return nil, nil })
	require.NoError(t, sched.Insert(a))
	require.NoError(t, sched.Insert(b))

	drain(t, sched)

	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, sched.GetRunCount())
}

func TestRunWatchdogOnEmptyReadyQueueReturnsImmediately(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	interrupted, err := sched.RunWatchdog(0)
	require.NoError(t, err)
	assert.Nil(t, interrupted)
}

// tickingFrame simulates a real bytecode-dispatch frame that yields control
// back to the trampoline after every step (FrameResult{Unwound: true})
// rather than blocking inside a single Run call, so the tick-driven soft
// interrupt rewrite in switch.go's runFrames has a chance to fire between
// steps.
type tickingFrame struct {
	steps int
}

func (f *tickingFrame) Run(FrameInput) FrameResult {
	f.steps++
	return FrameResult{Unwound: true}
}

func TestRunWatchdogTimeoutInterruptsBusyTasklet(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	var hooked *Tasklet
	sched.SetInterruptHook(func(tk *Tasklet) { hooked = tk })

	looper := NewTasklet()
	frame := &tickingFrame{}
	require.NoError(t, looper.Bind(frame))
	require.NoError(t, sched.Insert(looper))

	interrupted, err := sched.RunWatchdog(1)
	require.NoError(t, err)
	require.Same(t, looper, interrupted)
	assert.Same(t, looper, hooked)
	assert.Equal(t, 1, frame.steps)
	assert.Equal(t, StateTaskletRunnable, looper.state)
}

// countingGlobalLock records Drop/Acquire call order so a test can assert
// the idle blockLock park is correctly bracketed, per spec.md §1/§5's
// GIL-hook description.
type countingGlobalLock struct {
	mu    sync.Mutex
	calls []string
}

func (l *countingGlobalLock) Drop() {
	l.mu.Lock()
	l.calls = append(l.calls, "drop")
	l.mu.Unlock()
}

func (l *countingGlobalLock) Acquire() {
	l.mu.Lock()
	l.calls = append(l.calls, "acquire")
	l.mu.Unlock()
}

func (l *countingGlobalLock) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func TestRunWatchdogThreadBlockDropsAndReacquiresGlobalLock(t *testing.T) {
	lock := &countingGlobalLock{}
	sched, err := NewScheduler(WithGlobalLock(lock))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sched.RunWatchdogEx(0, RunThreadBlock)
		done <- err
	}()

	require.Eventually(t, func() bool { return sched.isIdle.Load() }, time.Second, time.Millisecond,
		"scheduler never reached its idle blockLock park")
	assert.Equal(t, []string{"drop"}, lock.snapshot())

	sched.wakeIfParked()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunWatchdogEx never returned after wakeIfParked")
	}

	assert.Equal(t, []string{"drop", "acquire"}, lock.snapshot())
}
