// Example: Ping-Pong Tasklets
//
// This example demonstrates the fundamental building blocks of the
// runtime: two tasklets rendezvousing on a Channel, driven by a single
// Scheduler whose main tasklet supervises the run via RunWatchdog.
//
// Run with: go run ./cmd/pingpong
package main

import (
	"fmt"

	tasklet "github.com/stackloop/tasklet"
)

// funcFrame adapts a plain Go function into a tasklet.Frame. The function
// runs start-to-finish on the tasklet's own goroutine; any blocking it
// does (a Channel Send/Receive) suspends that goroutine directly via
// Scheduler.Switch rather than returning FrameResult{Unwound: true}, which
// is why a funcFrame never needs to be re-entered after it starts.
type funcFrame struct {
	fn  func() (any, error)
	ran bool
}

func newFuncFrame(fn func() (any, error)) *funcFrame {
	return &funcFrame{fn: fn}
}

func (f *funcFrame) Run(tasklet.FrameInput) tasklet.FrameResult {
	if f.ran {
		return tasklet.FrameResult{Err: &tasklet.SystemError{Message: "funcFrame re-entered after completion"}}
	}
	f.ran = true
	value, err := f.fn()
	if err != nil {
		return tasklet.FrameResult{Err: err}
	}
	return tasklet.FrameResult{Value: value}
}

const rounds = 5

func main() {
	sched, err := tasklet.NewScheduler(tasklet.WithLogger(tasklet.NewJSONLogger(tasklet.LogInfo)))
	if err != nil {
		panic(err)
	}

	ch, err := tasklet.NewChannel(tasklet.WithPreference(tasklet.PreferReceiver))
	if err != nil {
		panic(err)
	}

	ping := tasklet.NewTasklet()
	pong := tasklet.NewTasklet()

	if err := ping.Bind(newFuncFrame(func() (any, error) {
		for i := 0; i < rounds; i++ {
			if err := ch.Send(ping, fmt.Sprintf("ping-%d", i)); err != nil {
				return nil, err
			}
			v, err := ch.Receive(ping)
			if err != nil {
				return nil, err
			}
			fmt.Println("ping received:", v)
		}
		return tasklet.NoneValue{}, nil
	})); err != nil {
		panic(err)
	}

	if err := pong.Bind(newFuncFrame(func() (any, error) {
		for i := 0; i < rounds; i++ {
			v, err := ch.Receive(pong)
			if err != nil {
				return nil, err
			}
			fmt.Println("pong received:", v)
			if err := ch.Send(pong, fmt.Sprintf("pong-%d", i)); err != nil {
				return nil, err
			}
		}
		return tasklet.NoneValue{}, nil
	})); err != nil {
		panic(err)
	}

	if err := sched.Insert(ping); err != nil {
		panic(err)
	}
	if err := sched.Insert(pong); err != nil {
		panic(err)
	}

	// main shares the same round-robin ready queue as ping/pong (it is
	// never pulled out of it), so RunWatchdog returns to us every time the
	// rotation reaches main rather than only once the whole run drains.
	// Keep calling it until only main is left on the queue. The iteration
	// cap guards against a scheduling bug stalling this loop forever
	// rather than reflecting any expected retry scenario.
	for i := 0; sched.GetRunCount() > 1; i++ {
		if i > 8*rounds {
			panic("pingpong: ready queue failed to drain")
		}
		if _, err := sched.RunWatchdog(0); err != nil {
			panic(err)
		}
	}

	fmt.Println("done")
}
