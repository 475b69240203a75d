package stage

import (
	"context"
	"errors"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
)

// Dispatch is one event as it was applied to the actor.
type Dispatch struct {
	SessionID string                `json:"session_id"`
	Script    uint64                `json:"script,omitempty"`
	Event     choreo.ScheduledEvent `json:"event"`
	// Steps are the transitions an animate event produced, in order.
	Steps []choreo.Step `json:"steps,omitempty"`
	// Pose is the actor pose after the event.
	Pose choreo.Pose `json:"pose"`
	// Explicit marks a reset requested through Session.Reset rather than
	// one from a script.
	Explicit bool `json:"explicit,omitempty"`
	// Dropped is the number of pending events an explicit reset cancelled.
	Dropped int `json:"dropped,omitempty"`
}

// Dispatcher receives every applied event in order. Errors are logged by
// the session and otherwise ignored.
type Dispatcher interface {
	Dispatch(ctx context.Context, d Dispatch) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, d Dispatch) error

func (f DispatcherFunc) Dispatch(ctx context.Context, d Dispatch) error {
	return f(ctx, d)
}

// Discard drops every dispatch.
var Discard Dispatcher = DispatcherFunc(func(context.Context, Dispatch) error { return nil })

// Fanout delivers each dispatch to every dispatcher, even when an earlier
// one fails.
func Fanout(ds ...Dispatcher) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, d Dispatch) error {
		var errs []error
		for _, dd := range ds {
			if dd == nil {
				continue
			}
			if err := dd.Dispatch(ctx, d); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
