package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pitabwire/frame/config"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
	"github.com/hypatia-tutor/hypatia/pkg/hooks"
	"github.com/hypatia-tutor/hypatia/pkg/stage"
	"github.com/hypatia-tutor/hypatia/pkg/tutor"
)

// TutorConfig is the configuration of the tutor service.
type TutorConfig struct {
	config.ConfigurationDefault

	// Model
	AnthropicAPIKey  string `envDefault:""                         env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `envDefault:""                         env:"ANTHROPIC_BASE_URL"`
	Model            string `envDefault:"claude-sonnet-4-20250514" env:"TUTOR_MODEL"`
	MaxTokens        int64  `envDefault:"1024"                     env:"TUTOR_MAX_TOKENS"`

	// Lessons
	LessonDir     string `envDefault:""             env:"LESSON_DIR"`
	DefaultLesson string `envDefault:"group-theory" env:"DEFAULT_LESSON"`

	// Playback
	BaseDelayMs     int    `envDefault:"500"     env:"PLAYBACK_BASE_DELAY_MS"`
	ResetSettleMs   int    `envDefault:"300"     env:"PLAYBACK_RESET_SETTLE_MS"`
	PerMoveMs       int    `envDefault:"500"     env:"PLAYBACK_PER_MOVE_MS"`
	BufferMs        int    `envDefault:"500"     env:"PLAYBACK_BUFFER_MS"`
	SequencerPolicy string `envDefault:"advance" env:"SEQUENCER_POLICY"`
	CrossMsgPolicy  string `envDefault:"queue"   env:"CROSS_MESSAGE_POLICY"`

	// Sessions
	SessionTTL time.Duration `envDefault:"30m" env:"SESSION_TTL"`
	MaxHistory int           `envDefault:"200" env:"MAX_HISTORY"`

	// Renderer hook
	RendererHookURL     string `envDefault:""     env:"RENDERER_HOOK_URL"`
	RendererHookAuth    string `envDefault:"none" env:"RENDERER_HOOK_AUTH"`
	RendererHookSecret  string `envDefault:""     env:"RENDERER_HOOK_SECRET"`
	RendererTimeoutSec  int    `envDefault:"5"    env:"RENDERER_HOOK_TIMEOUT_SEC"`
	RendererBuffer      int    `envDefault:"256"  env:"RENDERER_HOOK_BUFFER"`
	CBFailThreshold     uint32 `envDefault:"5"    env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec   int    `envDefault:"30"   env:"CB_RESET_TIMEOUT_SEC"`
	AllowPrivateHookIPs bool   `envDefault:"false" env:"RENDERER_HOOK_ALLOW_PRIVATE"`

	// HTTP
	AuthEnabled    bool   `envDefault:"false" env:"AUTH_ENABLED"`
	AllowedOrigins string `envDefault:"*"     env:"CORS_ALLOWED_ORIGINS"`

	// Transcripts
	TranscriptsEnabled bool `envDefault:"true" env:"TRANSCRIPTS_ENABLED"`

	// Logging
	LogFile string `envDefault:"" env:"LOG_FILE"`
}

// Timing builds the sequencer constants and checks them.
func (c *TutorConfig) Timing() (choreo.Timing, error) {
	t := choreo.Timing{
		BaseDelay:   time.Duration(c.BaseDelayMs) * time.Millisecond,
		ResetSettle: time.Duration(c.ResetSettleMs) * time.Millisecond,
		PerMove:     time.Duration(c.PerMoveMs) * time.Millisecond,
		Buffer:      time.Duration(c.BufferMs) * time.Millisecond,
		Policy:      choreo.SequencerPolicy(strings.ToLower(strings.TrimSpace(c.SequencerPolicy))),
	}
	if err := t.Validate(); err != nil {
		return choreo.Timing{}, fmt.Errorf("playback config: %w", err)
	}
	return t, nil
}

// StagePolicy returns the cross-message policy.
func (c *TutorConfig) StagePolicy() (stage.Policy, error) {
	p := stage.Policy(strings.ToLower(strings.TrimSpace(c.CrossMsgPolicy)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown CROSS_MESSAGE_POLICY %q", c.CrossMsgPolicy)
	}
	return p, nil
}

// ClientConfig returns the model client configuration.
func (c *TutorConfig) ClientConfig() tutor.ClientConfig {
	return tutor.ClientConfig{
		APIKey:    c.AnthropicAPIKey,
		BaseURL:   c.AnthropicBaseURL,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
	}
}

// RendererConfig returns the renderer hook configuration. ok is false when
// no hook URL is set.
func (c *TutorConfig) RendererConfig() (cfg hooks.RendererConfig, ok bool) {
	if c.RendererHookURL == "" {
		return hooks.RendererConfig{}, false
	}
	return hooks.RendererConfig{
		Hook: hooks.HookConfig{
			URL:        c.RendererHookURL,
			AuthType:   c.RendererHookAuth,
			AuthSecret: c.RendererHookSecret,
			TimeoutSec: c.RendererTimeoutSec,
		},
		Buffer:           c.RendererBuffer,
		FailureThreshold: c.CBFailThreshold,
		ResetTimeout:     time.Duration(c.CBResetTimeoutSec) * time.Second,
	}, true
}

// Origins splits the allowed CORS origins.
func (c *TutorConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
