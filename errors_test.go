package tasklet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"TypeError", &TypeError{Message: "bad type"}, "bad type"},
		{"TypeError empty", &TypeError{}, "type error"},
		{"ValueError", &ValueError{Message: "bad value"}, "bad value"},
		{"RuntimeError", &RuntimeError{Message: "bad state"}, "bad state"},
		{"SystemError", &SystemError{Message: "invariant violated"}, "invariant violated"},
		{"MemoryError", &MemoryError{}, "out of memory"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestErrorUnwrapChain(t *testing.T) {
	cause := errors.New("root cause")
	err := &RuntimeError{Message: "wrapped", Cause: cause}
	assert.ErrorIs(t, err, cause)
}

func TestTaskletExitIsMatchesAnyPayload(t *testing.T) {
	exit := &TaskletExit{Value: 7}
	assert.True(t, exit.Is(&TaskletExit{}))
	assert.True(t, exit.Is(&TaskletExit{Value: "other"}))
	assert.False(t, exit.Is(&RuntimeError{}))
}

func TestTaskletExitErrorString(t *testing.T) {
	assert.Equal(t, "tasklet exit", (&TaskletExit{}).Error())
	assert.Contains(t, (&TaskletExit{Value: 3}).Error(), "3")
}

func TestAggregateError(t *testing.T) {
	e1 := &ValueError{Message: "one"}
	e2 := &RuntimeError{Message: "two"}
	agg := &AggregateError{Errors: []error{e1, e2}}

	assert.ErrorIs(t, agg, e1)
	assert.ErrorIs(t, agg, e2)
	assert.Contains(t, agg.Error(), "2 errors occurred")

	var empty AggregateError
	assert.Equal(t, "aggregate error (empty)", empty.Error())

	single := &AggregateError{Errors: []error{e1}}
	assert.Equal(t, e1.Error(), single.Error())
}

func TestWrapError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError("write failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "write failed")
}
