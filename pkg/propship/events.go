package propship

import "github.com/bft-labs/propship/internal/app"

// State is the lifecycle state of a Client or Server.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	return app.State(s).String()
}

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// EventHandler receives lifecycle notifications.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
}

// BaseEventHandler provides a no-op EventHandler to embed.
type BaseEventHandler struct{}

// OnStateChange implements EventHandler.
func (BaseEventHandler) OnStateChange(StateChangeEvent) {}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(event StateChangeEvent)

// OnStateChange implements EventHandler.
func (f EventHandlerFunc) OnStateChange(event StateChangeEvent) { f(event) }

type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: State(previous),
		Current:  State(current),
		Reason:   reason,
	})
}
