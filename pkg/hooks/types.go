package hooks

import (
	"github.com/hypatia-tutor/hypatia/pkg/choreo"
)

// HookConfig describes how to call an external hook endpoint.
type HookConfig struct {
	URL        string            `yaml:"url"         json:"url"`
	AuthType   string            `yaml:"auth_type"   json:"auth_type"`   // "bearer", "hmac", "none"
	AuthSecret string            `yaml:"auth_secret" json:"auth_secret"` // token or HMAC key
	TimeoutSec int               `yaml:"timeout_sec" json:"timeout_sec"`
	Headers    map[string]string `yaml:"headers"     json:"headers,omitempty"`
}

// RenderRequest is the payload sent to the renderer for every applied
// stage event.
type RenderRequest struct {
	SessionID string             `json:"session_id"`
	Script    uint64             `json:"script,omitempty"`
	Seq       int                `json:"seq"`
	Kind      choreo.CommandKind `json:"kind"`
	Moves     string             `json:"moves,omitempty"`
	Steps     []choreo.Step      `json:"steps,omitempty"`
	Pose      choreo.Pose        `json:"pose"`
	Explicit  bool               `json:"explicit,omitempty"`
}

// HookResponse is the expected response from a hook endpoint. An empty
// body is accepted.
type HookResponse struct {
	Accepted bool           `json:"accepted"`
	Data     map[string]any `json:"data,omitempty"`
}
