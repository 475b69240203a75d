package events

import (
	"context"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
	"github.com/hypatia-tutor/hypatia/pkg/stage"
)

// StageDispatcher turns applied stage events into actor.reset and
// actor.animated events.
func (p *Publisher) StageDispatcher() stage.Dispatcher {
	return stage.DispatcherFunc(func(ctx context.Context, d stage.Dispatch) error {
		switch d.Event.Kind {
		case choreo.CommandReset:
			return p.Emit(ctx, ActorReset, d.SessionID, &ActorResetData{
				Script:   d.Script,
				Explicit: d.Explicit,
				Dropped:  d.Dropped,
				Pose:     d.Pose,
			})
		case choreo.CommandAnimate:
			return p.Emit(ctx, ActorAnimated, d.SessionID, &ActorAnimatedData{
				Script: d.Script,
				Seq:    d.Event.Seq,
				Moves:  choreo.Symbols(d.Event.Moves),
				Steps:  d.Steps,
				Pose:   d.Pose,
			})
		}
		return nil
	})
}
