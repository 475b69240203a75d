package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
	"github.com/hypatia-tutor/hypatia/pkg/stage"
)

const defaultRenderBuffer = 256

// RendererConfig configures the renderer hook.
type RendererConfig struct {
	Hook HookConfig
	// Buffer is the number of requests held while the renderer is slow.
	Buffer int
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32
	// ResetTimeout is how long an open circuit rejects requests before a
	// trial request is let through.
	ResetTimeout time.Duration
}

// Renderer forwards applied stage events to an external animation
// renderer. Dispatch never blocks the scheduler: requests are buffered and
// delivered in order by Run. While the renderer keeps failing, a circuit
// breaker drops requests without calling it.
type Renderer struct {
	exec    *Executor
	cfg     HookConfig
	queue   chan RenderRequest
	breaker *gobreaker.CircuitBreaker[*HookResponse]
}

var _ stage.Dispatcher = (*Renderer)(nil)

// NewRenderer creates a renderer hook.
func NewRenderer(exec *Executor, cfg RendererConfig) *Renderer {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultRenderBuffer
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[*HookResponse](gobreaker.Settings{
		Name:        "renderer",
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("renderer circuit state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &Renderer{
		exec:    exec,
		cfg:     cfg.Hook,
		queue:   make(chan RenderRequest, cfg.Buffer),
		breaker: breaker,
	}
}

// Dispatch queues the event for delivery. It fails only when the buffer
// is full.
func (r *Renderer) Dispatch(_ context.Context, d stage.Dispatch) error {
	req := RenderRequest{
		SessionID: d.SessionID,
		Script:    d.Script,
		Seq:       d.Event.Seq,
		Kind:      d.Event.Kind,
		Moves:     choreo.Symbols(d.Event.Moves),
		Steps:     d.Steps,
		Pose:      d.Pose,
		Explicit:  d.Explicit,
	}
	select {
	case r.queue <- req:
		return nil
	default:
		return fmt.Errorf("renderer buffer full, dropped %s event", d.Event.Kind)
	}
}

// State reports the circuit breaker state: "closed", "half-open" or "open".
func (r *Renderer) State() string {
	return r.breaker.State().String()
}

// Run delivers queued requests until ctx is cancelled. Delivery failures
// are logged and the request is dropped.
func (r *Renderer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.queue:
			r.deliver(ctx, req)
		}
	}
}

func (r *Renderer) deliver(ctx context.Context, req RenderRequest) {
	_, err := r.breaker.Execute(func() (*HookResponse, error) {
		return r.exec.Execute(ctx, r.cfg, req.SessionID, req)
	})
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		slog.DebugContext(ctx, "renderer circuit open, event dropped",
			slog.String("session_id", req.SessionID),
			slog.String("kind", string(req.Kind)))
	default:
		slog.WarnContext(ctx, "renderer hook failed",
			slog.String("session_id", req.SessionID),
			slog.String("kind", string(req.Kind)),
			slog.String("error", err.Error()))
	}
}
