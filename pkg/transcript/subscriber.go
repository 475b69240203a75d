package transcript

import (
	"context"
	"encoding/json"

	"github.com/pitabwire/util"

	"github.com/hypatia-tutor/hypatia/pkg/events"
)

// Appender stores transcript entries.
type Appender interface {
	Append(ctx context.Context, e *Entry) error
}

// Subscriber records every event published on the bus.
type Subscriber struct {
	Store Appender
	// Skip lists event types that are not recorded.
	Skip []events.EventType
}

// Handle is called by frame's pub/sub for each event message.
func (s *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("transcript subscriber: unmarshal envelope")
		return err
	}

	for _, t := range s.Skip {
		if t == env.Type {
			return nil
		}
	}

	if err := s.Store.Append(ctx, FromEnvelope(env)); err != nil {
		util.Log(ctx).WithError(err).Error("transcript subscriber: append entry")
		return err
	}
	return nil
}
