package api

import (
	"github.com/hypatia-tutor/hypatia/pkg/choreo"
	"github.com/hypatia-tutor/hypatia/pkg/events"
	"github.com/hypatia-tutor/hypatia/pkg/tutor"
)

// ChatMessage is one message of a stateless chat request.
type ChatMessage struct {
	Role    tutor.Role `json:"role"`
	Content string     `json:"content"`
}

// ChatRequest is the request body of POST /api/chat.
type ChatRequest struct {
	Messages     []ChatMessage `json:"messages"`
	SystemPrompt string        `json:"systemPrompt"`
	// Mode, when set, also compiles the reply for that mode.
	Mode choreo.Mode `json:"mode,omitempty"`
}

// ChatResponse is the response body of POST /api/chat.
type ChatResponse struct {
	Message string           `json:"message"`
	Script  *PreviewResponse `json:"script,omitempty"`
}

// ChatErrorResponse is returned when no model produced a reply.
type ChatErrorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details"`
	StatusCode int    `json:"status_code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ModelsResponse is the response body of GET /api/models.
type ModelsResponse struct {
	Data []tutor.ModelInfo `json:"data"`
}

// PreviewRequest is the request body of POST /api/v1/preview.
type PreviewRequest struct {
	Text string      `json:"text"`
	Mode choreo.Mode `json:"mode"`
}

// PreviewResponse is a compiled tutor message.
type PreviewResponse struct {
	Mode        choreo.Mode             `json:"mode"`
	DisplayText string                  `json:"display_text"`
	Events      []choreo.ScheduledEvent `json:"events"`
	ReflectUsed bool                    `json:"reflect_used"`
	SpanMs      int64                   `json:"span_ms"`
}

// TranscriptEntry is one persisted session event.
type TranscriptEntry struct {
	EventID    string           `json:"event_id"`
	EventType  events.EventType `json:"event_type"`
	Source     string           `json:"source"`
	OccurredAt string           `json:"occurred_at"`
	Payload    any              `json:"payload"`
}

// TranscriptResponse is the response body of the transcript endpoint.
type TranscriptResponse struct {
	SessionID string            `json:"session_id"`
	// Total is the number of entries the session has, across all pages.
	Total     int64             `json:"total"`
	Entries   []TranscriptEntry `json:"entries"`
}

// ErrorResponse is a generic error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
