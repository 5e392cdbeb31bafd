package tasklet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelDefaultPreference(t *testing.T) {
	ch, err := NewChannel()
	require.NoError(t, err)
	assert.Equal(t, Neutral, ch.GetPreference())
	assert.Equal(t, 0, ch.GetBalance())
	assert.False(t, ch.GetClosing())
}

func TestSetPreferenceRejectsOutOfRange(t *testing.T) {
	ch, err := NewChannel()
	require.NoError(t, err)
	err = ch.SetPreference(2)
	assert.Error(t, err)
	err = ch.SetPreference(PreferSender)
	assert.NoError(t, err)
	assert.Equal(t, PreferSender, ch.GetPreference())
}

func TestOpenReversesClose(t *testing.T) {
	ch, err := NewChannel()
	require.NoError(t, err)
	ch.Close()
	assert.True(t, ch.GetClosing())
	ch.Open()
	assert.False(t, ch.GetClosing())
}

func TestSendWhileClosingFailsWithNoWaiter(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)
	ch, err := NewChannel()
	require.NoError(t, err)
	ch.Close()

	var tk *Tasklet
	tk = bindFunc(t, func() (any, error) { return nil, ch.Send(tk, "x") })
	require.NoError(t, sched.Insert(tk))
	drain(t, sched)

	bomb, ok := tk.tempval.(*Bomb)
	require.True(t, ok)
	var re *RuntimeError
	assert.ErrorAs(t, bomb.Type, &re)
}

func TestDeadlockDetectedWhenNoOtherRunnableTasklet(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)
	ch, err := NewChannel()
	require.NoError(t, err)

	// main is the only tasklet on this scheduler: blocking on an
	// unmatched receive has nothing else to switch to, so it must fail
	// fast rather than hang the calling goroutine forever.
	_, err = ch.Receive(sched.Main())
	assert.Error(t, err)
	assert.Equal(t, StateTaskletCurrent, sched.Main().state)
	assert.Equal(t, 0, ch.GetBalance())
	assert.Equal(t, 1, sched.RunCount())
}

func TestGetQueueReflectsWaitingReceiver(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)
	ch, err := NewChannel()
	require.NoError(t, err)

	var receiver *Tasklet
	receiver = bindFunc(t, func() (any, error) { return ch.Receive(receiver) })
	require.NoError(t, sched.Insert(receiver))

	// Driving one watchdog round moves the receiver onto the channel's
	// wait queue (nothing sends to it) and hands control back to main.
	_, err = sched.RunWatchdog(0)
	require.NoError(t, err)

	queue := ch.GetQueue()
	require.Len(t, queue, 1)
	assert.Same(t, receiver, queue[0])
	assert.Equal(t, -1, ch.GetBalance())
	assert.Equal(t, 1, sched.RunCount())
}

func TestSendExceptionDeliversBombToReceiver(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)
	ch, err := NewChannel()
	require.NoError(t, err)

	var receiver *Tasklet
	var recvErr error
	receiver = bindFunc(t, func() (any, error) {
		_, recvErr = ch.Receive(receiver)
		return nil, nil
	})

	sender := bindFunc(t, func() (any, error) {
		return nil, ch.SendException(sender, &ValueError{Message: "bad value"}, nil)
	})

	require.NoError(t, sched.Insert(receiver))
	require.NoError(t, sched.Insert(sender))
	drain(t, sched)

	require.Error(t, recvErr)
	var ve *ValueError
	assert.ErrorAs(t, recvErr, &ve)
	assert.Equal(t, "bad value", ve.Message)
}

func TestScheduleAllRequeuesBothSides(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)
	ch, err := NewChannel(WithScheduleAll(true))
	require.NoError(t, err)

	var receiver, sender *Tasklet
	receiver = bindFunc(t, func() (any, error) { return ch.Receive(receiver) })
	sender = bindFunc(t, func() (any, error) { return nil, ch.Send(sender, "x") })

	require.NoError(t, sched.Insert(receiver))
	require.NoError(t, sched.Insert(sender))
	drain(t, sched)

	assert.Equal(t, "x", receiver.tempval)
	assert.Equal(t, StateTaskletDead, sender.state)
	assert.Equal(t, StateTaskletDead, receiver.state)
}
