package choreo

import (
	"encoding/json"
	"fmt"
	"time"
)

// SequencerPolicy controls how consecutive animate commands are spaced.
type SequencerPolicy string

const (
	// PolicyAdvance moves the cursor past every animation so no two
	// events of one message overlap.
	PolicyAdvance SequencerPolicy = "advance"
	// PolicyConsumerSerialized schedules consecutive animations at the
	// same instant and leaves it to the consumer to play them one after
	// another. The cursor still advances before a following reset.
	PolicyConsumerSerialized SequencerPolicy = "consumer-serialized"
)

// Timing holds the sequencer constants.
type Timing struct {
	BaseDelay   time.Duration
	ResetSettle time.Duration
	PerMove     time.Duration
	Buffer      time.Duration
	Policy      SequencerPolicy
}

// DefaultTiming returns the timing used by the browser front end.
func DefaultTiming() Timing {
	return Timing{
		BaseDelay:   500 * time.Millisecond,
		ResetSettle: 300 * time.Millisecond,
		PerMove:     500 * time.Millisecond,
		Buffer:      500 * time.Millisecond,
		Policy:      PolicyAdvance,
	}
}

// Validate checks the timing constants.
func (t Timing) Validate() error {
	if t.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %s", t.BaseDelay)
	}
	if t.ResetSettle < 0 || t.PerMove < 0 || t.Buffer < 0 {
		return fmt.Errorf("timing increments must not be negative")
	}
	switch t.Policy {
	case PolicyAdvance, PolicyConsumerSerialized:
	default:
		return fmt.Errorf("unknown sequencer policy %q", t.Policy)
	}
	return nil
}

// AnimationLength is how long n moves take to play, including the buffer.
func (t Timing) AnimationLength(n int) time.Duration {
	return time.Duration(n)*t.PerMove + t.Buffer
}

// Command is a command span whose payload has been normalized.
type Command struct {
	Kind  CommandKind
	Moves []Move
}

// ScheduledEvent is a reset or animate instruction due Delay after dispatch.
type ScheduledEvent struct {
	Seq   int           `json:"seq"`
	Kind  CommandKind   `json:"kind"`
	Moves []Move        `json:"moves,omitempty"`
	Delay time.Duration `json:"-"`
}

func (e ScheduledEvent) MarshalJSON() ([]byte, error) {
	type alias ScheduledEvent
	return json.Marshal(struct {
		alias
		DelayMs int64 `json:"delay_ms"`
	}{alias: alias(e), DelayMs: e.Delay.Milliseconds()})
}

// Plan is the timed output of the sequencer for one message.
type Plan struct {
	Events []ScheduledEvent
	// Span is the cursor after the last command: the earliest instant a
	// following message may start without overlapping this one.
	Span time.Duration
}

// Schedule assigns delays to commands in order. Animate commands without
// moves produce no event and do not move the cursor.
func Schedule(cmds []Command, t Timing) Plan {
	cursor := t.BaseDelay
	// pending accumulates animation time not yet added to the cursor under
	// the consumer-serialized policy.
	var pending time.Duration
	var events []ScheduledEvent

	for _, c := range cmds {
		switch c.Kind {
		case CommandReset:
			cursor += pending
			pending = 0
			events = append(events, ScheduledEvent{Seq: len(events), Kind: CommandReset, Delay: cursor})
			cursor += t.ResetSettle

		case CommandAnimate:
			if len(c.Moves) == 0 {
				continue
			}
			events = append(events, ScheduledEvent{
				Seq:   len(events),
				Kind:  CommandAnimate,
				Moves: c.Moves,
				Delay: cursor,
			})
			length := t.AnimationLength(len(c.Moves))
			if t.Policy == PolicyConsumerSerialized {
				pending += length
			} else {
				cursor += length
			}
		}
	}

	return Plan{Events: events, Span: cursor + pending}
}
