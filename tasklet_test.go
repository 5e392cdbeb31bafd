package tasklet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskletStartsNewAndRestorable(t *testing.T) {
	tk := NewTasklet()
	assert.Equal(t, StateTaskletNew, tk.state)
	assert.False(t, tk.Alive())
	assert.True(t, tk.Restorable())
	assert.Equal(t, NoneValue{}, tk.tempval)
}

func TestBindTransitionsToBound(t *testing.T) {
	tk := NewTasklet()
	require.NoError(t, tk.Bind(newFuncFrame(func() (any, error) { return nil, nil })))
	assert.Equal(t, StateTaskletBound, tk.state)
	assert.True(t, tk.Alive())
}

func TestBindRejectsCurrentTasklet(t *testing.T) {
	tk := NewTasklet()
	tk.state = StateTaskletCurrent
	err := tk.Bind(newFuncFrame(func() (any, error) { return nil, nil }))
	assert.Error(t, err)
}

func TestBindRejectsLiveNativeStack(t *testing.T) {
	tk := NewTasklet()
	tk.cstate = &cstate{nestingLevel: 1}
	err := tk.Bind(newFuncFrame(func() (any, error) { return nil, nil }))
	assert.Error(t, err)
}

func TestSetupBindsAndInserts(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	tk := NewTasklet()
	require.NoError(t, tk.Setup(sched, newFuncFrame(func() (any, error) { return "done", nil })))
	assert.Equal(t, StateTaskletRunnable, tk.state)
	assert.Equal(t, 2, sched.RunCount())

	drain(t, sched)
	assert.Equal(t, "done", tk.tempval)
}

func TestBindThreadWithoutInsert(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	tk := NewTasklet()
	require.NoError(t, tk.BindThread(sched))
	assert.Same(t, sched, tk.sched)
	// BindThread only pins the scheduler; it does not touch the ready queue.
	assert.Equal(t, 1, sched.RunCount())
	assert.Equal(t, StateTaskletNew, tk.state)
}

func TestBindThreadRejectsDifferentLiveScheduler(t *testing.T) {
	s1, err := NewScheduler()
	require.NoError(t, err)
	s2, err := NewScheduler()
	require.NoError(t, err)

	tk := NewTasklet()
	require.NoError(t, tk.BindThread(s1))
	err = tk.BindThread(s2)
	assert.Error(t, err)
}

func TestKillInstallsTaskletExitBomb(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	tk := bindFunc(t, func() (any, error) { return nil, nil })
	require.NoError(t, sched.Insert(tk))

	require.NoError(t, tk.Kill(true))
	b, ok := tk.tempval.(*Bomb)
	require.True(t, ok)
	assert.IsType(t, &TaskletExit{}, b.Type)
}

func TestSetAtomicReturnsPreviousValue(t *testing.T) {
	tk := NewTasklet()
	old := tk.SetAtomic(true)
	assert.False(t, old)
	assert.True(t, tk.flags.has(FlagAtomic))

	old = tk.SetAtomic(false)
	assert.True(t, old)
	assert.False(t, tk.flags.has(FlagAtomic))
}

func TestGetFrameReflectsFrameStack(t *testing.T) {
	tk := NewTasklet()
	assert.Nil(t, tk.GetFrame())

	frame := newFuncFrame(func() (any, error) { return nil, nil })
	require.NoError(t, tk.Bind(frame))
	assert.Same(t, frame, tk.GetFrame())
}

func TestContextRunRestoresPreviousContext(t *testing.T) {
	tk := NewTasklet()
	outer := &fakeContextVar{}
	tk.context = outer

	inner := &fakeContextVar{}
	_, err := tk.ContextRun(inner, func() (any, error) {
		assert.Same(t, inner, tk.context)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Same(t, outer, tk.context)
}

func TestContextRunRejectsAlreadyEnteredContext(t *testing.T) {
	tk := NewTasklet()
	ctx := &fakeContextVar{entered: true}
	_, err := tk.ContextRun(ctx, func() (any, error) { return nil, nil })
	assert.Error(t, err)
}

type fakeContextVar struct {
	entered bool
}

func (f *fakeContextVar) Entered() bool           { return f.entered }
func (f *fakeContextVar) CopyCurrent() ContextVar { return &fakeContextVar{entered: f.entered} }
