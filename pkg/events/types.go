package events

import (
	"encoding/json"
	"time"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	SessionStarted    EventType = "session.started"
	SessionEnded      EventType = "session.ended"
	MessageReceived   EventType = "message.received"
	ReplySent         EventType = "reply.sent"
	ReplyFailed       EventType = "reply.failed"
	ScriptScheduled   EventType = "script.scheduled"
	ActorReset        EventType = "actor.reset"
	ActorAnimated     EventType = "actor.animated"
	CapabilityReflect EventType = "capability.reflect"
	HookResult        EventType = "hook.result"
	HookError         EventType = "hook.error"
)

// Types lists every event type.
func Types() []EventType {
	return []EventType{
		SessionStarted, SessionEnded,
		MessageReceived, ReplySent, ReplyFailed,
		ScriptScheduled, ActorReset, ActorAnimated,
		CapabilityReflect, HookResult, HookError,
	}
}

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionStartedData is the payload for session.started events.
type SessionStartedData struct {
	Lesson string      `json:"lesson"`
	Mode   choreo.Mode `json:"mode"`
}

// SessionEndedData is the payload for session.ended events.
type SessionEndedData struct {
	Reason     string `json:"reason"` // "ended" or "expired"
	DurationMs int64  `json:"duration_ms"`
	Messages   int    `json:"messages"`
}

// MessageReceivedData is the payload for message.received events.
type MessageReceivedData struct {
	Text string `json:"text"`
}

// ReplySentData is the payload for reply.sent events.
type ReplySentData struct {
	DisplayText string `json:"display_text"`
	Raw         string `json:"raw"`
	Events      int    `json:"events"`
	ReflectUsed bool   `json:"reflect_used"`
	Model       string `json:"model,omitempty"`
}

// ReplyFailedData is the payload for reply.failed events.
type ReplyFailedData struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code,omitempty"`
}

// ScriptScheduledData is the payload for script.scheduled events.
type ScriptScheduledData struct {
	Script  uint64                  `json:"script"`
	Start   time.Time               `json:"start"`
	Dropped int                     `json:"dropped,omitempty"`
	Pending int                     `json:"pending"`
	Events  []choreo.ScheduledEvent `json:"events"`
}

// ActorResetData is the payload for actor.reset events.
type ActorResetData struct {
	Script   uint64      `json:"script,omitempty"`
	Explicit bool        `json:"explicit"`
	Dropped  int         `json:"dropped,omitempty"`
	Pose     choreo.Pose `json:"pose"`
}

// ActorAnimatedData is the payload for actor.animated events.
type ActorAnimatedData struct {
	Script uint64        `json:"script"`
	Seq    int           `json:"seq"`
	Moves  string        `json:"moves"`
	Steps  []choreo.Step `json:"steps"`
	Pose   choreo.Pose   `json:"pose"`
}

// CapabilityReflectData is the payload for capability.reflect events.
type CapabilityReflectData struct {
	Enabled bool `json:"enabled"`
}

// HookResultData is the payload for hook.result events.
type HookResultData struct {
	HookURL    string         `json:"hook_url"`
	StatusCode int            `json:"status_code"`
	Response   map[string]any `json:"response,omitempty"`
}

// HookErrorData is the payload for hook.error events.
type HookErrorData struct {
	HookURL string `json:"hook_url"`
	Error   string `json:"error"`
}
