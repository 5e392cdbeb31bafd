package tasklet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStacklessDefaultsFalse(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)
	assert.False(t, sched.GetStackless())
}

func TestSetStacklessReturnsPreviousValue(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	old := sched.SetStackless(true)
	assert.False(t, old)
	assert.True(t, sched.GetStackless())

	old = sched.SetStackless(false)
	assert.True(t, old)
	assert.False(t, sched.GetStackless())
}

func TestFrameInputCarriesStacklessBit(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)
	sched.SetStackless(true)

	var seen bool
	tk := bindFunc(t, func() (any, error) { return nil, nil })
	// Replace the bound frame with one that records what it was handed,
	// since funcFrame's closure form can't see FrameInput.
	tk.frames[0] = frameFunc(func(in FrameInput) FrameResult {
		seen = in.TryStackless
		return FrameResult{Value: nil}
	})

	require.NoError(t, sched.Insert(tk))
	drain(t, sched)
	assert.True(t, seen)
}

type frameFunc func(FrameInput) FrameResult

func (f frameFunc) Run(in FrameInput) FrameResult { return f(in) }
