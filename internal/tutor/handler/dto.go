package handler

import (
	"time"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
	"github.com/hypatia-tutor/hypatia/pkg/lesson"
	"github.com/hypatia-tutor/hypatia/pkg/tutor"
)

type StartSessionRequest struct {
	Lesson    string            `json:"lesson"`
	SessionID string            `json:"session_id,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

type StartSessionResponse struct {
	SessionID      string      `json:"session_id"`
	Lesson         string      `json:"lesson"`
	Mode           choreo.Mode `json:"mode"`
	Starters       []string    `json:"starters,omitempty"`
	ReflectEnabled bool        `json:"reflect_enabled"`
}

type SendMessageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type SendMessageResponse struct {
	DisplayText    string                  `json:"display_text"`
	Events         []choreo.ScheduledEvent `json:"events"`
	ReflectEnabled bool                    `json:"reflect_enabled"`
	Failed         bool                    `json:"failed"`
	// StartsAt is when the first event of this reply plays.
	StartsAt time.Time         `json:"starts_at,omitzero"`
	Actor    choreo.ActorState `json:"actor"`
}

type ResetSessionRequest struct {
	SessionID string `json:"session_id"`
}

type ResetSessionResponse struct {
	Actor choreo.ActorState `json:"actor"`
}

type GetSessionRequest struct {
	SessionID string `json:"session_id"`
}

type GetSessionResponse struct {
	SessionID      string            `json:"session_id"`
	Lesson         string            `json:"lesson"`
	Mode           choreo.Mode       `json:"mode"`
	Actor          choreo.ActorState `json:"actor"`
	Pending        int               `json:"pending"`
	ReflectEnabled bool              `json:"reflect_enabled"`
	StartedAt      time.Time         `json:"started_at"`
	History        []tutor.Message   `json:"history"`
}

type EndSessionRequest struct {
	SessionID string `json:"session_id"`
}

type EndSessionResponse struct{}

type ListLessonsRequest struct{}

type ListLessonsResponse struct {
	Lessons []lesson.Info `json:"lessons"`
}

type WatchSessionRequest struct {
	SessionID string `json:"session_id"`
}
