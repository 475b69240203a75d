// Package choreo turns tutor replies into timed animation commands.
//
// A reply may embed two commands: <reset> (or <reset/>) returns the actor to
// the origin, and <animate>MOVES</animate> plays a word in the group's
// generators. Compile extracts the commands in source order, normalizes
// each animate payload into the active mode's alphabet, and schedules the
// result so that no two events of a message overlap. Actor interprets the
// scheduled events. None of these functions fail: malformed markup is plain
// text and unknown move characters are dropped.
package choreo

import "time"

// Script is a compiled tutor message.
type Script struct {
	Mode        Mode             `json:"mode"`
	DisplayText string           `json:"display_text"`
	Events      []ScheduledEvent `json:"events"`
	// ReflectUsed is set when any animate payload contains a reflection.
	ReflectUsed bool          `json:"reflect_used"`
	Span        time.Duration `json:"-"`
}

// Compile extracts, normalizes and schedules the commands of one message.
func Compile(text string, mode Mode, t Timing) Script {
	ex := Extract(text)

	cmds := make([]Command, 0, len(ex.Spans))
	reflect := false
	for _, span := range ex.Spans {
		c := Command{Kind: span.Kind}
		if span.Kind == CommandAnimate {
			c.Moves = Normalize(span.Payload, mode)
			reflect = reflect || ContainsReflect(c.Moves)
		}
		cmds = append(cmds, c)
	}

	plan := Schedule(cmds, t)
	return Script{
		Mode:        mode,
		DisplayText: ex.DisplayText,
		Events:      plan.Events,
		ReflectUsed: reflect,
		Span:        plan.Span,
	}
}

// Empty reports whether the script carries no events.
func (s Script) Empty() bool { return len(s.Events) == 0 }
