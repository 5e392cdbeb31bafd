package tasklet

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchToCurrentIsNoop(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)
	require.NoError(t, sched.Main().Switch())
	assert.Same(t, sched.Main(), sched.Current())
}

func TestSwitchToDeadTaskletFails(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	tk := bindFunc(t, func() (any, error) { return nil, nil })
	require.NoError(t, sched.Insert(tk))
	drain(t, sched)
	require.Equal(t, StateTaskletDead, tk.state)

	err = tk.Switch()
	assert.Error(t, err)
}

func TestPingPongRoundTrip(t *testing.T) {
	const rounds = 3

	sched, err := NewScheduler()
	require.NoError(t, err)

	ch, err := NewChannel(WithPreference(PreferReceiver))
	require.NoError(t, err)

	var pingGot, pongGot []string

	ping := NewTasklet()
	pong := NewTasklet()

	require.NoError(t, ping.Bind(newFuncFrame(func() (any, error) {
		for i := 0; i < rounds; i++ {
			if err := ch.Send(ping, fmt.Sprintf("ping-%d", i)); err != nil {
				return nil, err
			}
			v, err := ch.Receive(ping)
			if err != nil {
				return nil, err
			}
			pingGot = append(pingGot, v.(string))
		}
		return nil, nil
	})))

	require.NoError(t, pong.Bind(newFuncFrame(func() (any, error) {
		for i := 0; i < rounds; i++ {
			v, err := ch.Receive(pong)
			if err != nil {
				return nil, err
			}
			pongGot = append(pongGot, v.(string))
			if err := ch.Send(pong, fmt.Sprintf("pong-%d", i)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})))

	require.NoError(t, sched.Insert(ping))
	require.NoError(t, sched.Insert(pong))

	drain(t, sched)

	require.Equal(t, []string{"ping-0", "ping-1", "ping-2"}, pongGot)
	require.Equal(t, []string{"pong-0", "pong-1", "pong-2"}, pingGot)
	assert.Equal(t, StateTaskletDead, ping.state)
	assert.Equal(t, StateTaskletDead, pong.state)
	assert.Equal(t, 0, ch.GetBalance())
}

func TestCallNestedTracksNestingLevel(t *testing.T) {
	sched, err := NewScheduler()
	require.NoError(t, err)

	main := sched.Main()
	ensureCstate(main)
	assert.Equal(t, 0, main.cstate.nestingLevel)

	err = sched.CallNested(func() error {
		assert.Equal(t, 1, main.cstate.nestingLevel)
		assert.False(t, main.Restorable())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, main.cstate.nestingLevel)
	assert.True(t, main.Restorable())
}
