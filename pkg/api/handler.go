// Package api serves the REST endpoints of the tutor.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
	"github.com/hypatia-tutor/hypatia/pkg/transcript"
	"github.com/hypatia-tutor/hypatia/pkg/tutor"
)

const (
	maxRequestBodySize   = 1 << 20 // 1 MiB
	defaultTranscriptMax = 500
	modelsTimeout        = 30 * time.Second
)

// ModelLister lists the models available to the service.
type ModelLister interface {
	Models(ctx context.Context) ([]tutor.ModelInfo, error)
}

// TranscriptLister reads persisted session events.
type TranscriptLister interface {
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]transcript.Entry, error)
	CountBySession(ctx context.Context, sessionID string) (int64, error)
}

// Config wires the handler to its collaborators. Nil collaborators make
// their endpoints answer 503.
type Config struct {
	Model       tutor.Completer
	Models      ModelLister
	Transcripts TranscriptLister
	Timing      choreo.Timing
	DefaultMode choreo.Mode
}

// Handler provides the REST endpoints.
type Handler struct {
	cfg    Config
	models singleflight.Group
}

// NewHandler creates a new REST handler.
func NewHandler(cfg Config) *Handler {
	if !cfg.DefaultMode.Valid() {
		cfg.DefaultMode = choreo.ModeAlgebraic
	}
	if cfg.Timing.Validate() != nil {
		cfg.Timing = choreo.DefaultTiming()
	}
	return &Handler{cfg: cfg}
}

// RegisterRoutes registers all REST routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.Chat)
	mux.HandleFunc("GET /api/models", h.ListModels)
	mux.HandleFunc("POST /api/v1/preview", h.Preview)
	mux.HandleFunc("GET /api/v1/sessions/{id}/transcript", h.Transcript)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func toPreview(s choreo.Script) *PreviewResponse {
	evs := s.Events
	if evs == nil {
		evs = []choreo.ScheduledEvent{}
	}
	return &PreviewResponse{
		Mode:        s.Mode,
		DisplayText: s.DisplayText,
		Events:      evs,
		ReflectUsed: s.ReflectUsed,
		SpanMs:      s.Span.Milliseconds(),
	}
}

// Chat handles POST /api/chat. It is stateless: the caller sends the
// whole history and receives the raw reply text.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Model == nil {
		writeError(w, http.StatusServiceUnavailable, "model not configured")
		return
	}

	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}
	if req.Mode != "" && !req.Mode.Valid() {
		writeError(w, http.StatusBadRequest, "unknown mode "+strconv.Quote(string(req.Mode)))
		return
	}

	history := make([]tutor.Message, 0, len(req.Messages))
	for i, m := range req.Messages {
		if m.Role != tutor.RoleUser && m.Role != tutor.RoleAssistant {
			writeError(w, http.StatusBadRequest, "message "+strconv.Itoa(i)+": role must be user or assistant")
			return
		}
		history = append(history, tutor.Message{Role: m.Role, Content: m.Content})
	}

	text, err := h.cfg.Model.Complete(r.Context(), req.SystemPrompt, history)
	if err != nil {
		slog.ErrorContext(r.Context(), "chat completion failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ChatErrorResponse{
			Error:      "Failed to generate response",
			Details:    err.Error(),
			StatusCode: tutor.StatusCode(err),
			Suggestion: "Check /api/models endpoint to see available models",
		})
		return
	}

	resp := ChatResponse{Message: text}
	if req.Mode != "" {
		resp.Script = toPreview(choreo.Compile(text, req.Mode, h.cfg.Timing))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListModels handles GET /api/models. Concurrent requests share one
// upstream call.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Models == nil {
		writeError(w, http.StatusServiceUnavailable, "model listing not configured")
		return
	}

	// The shared call outlives the request that started it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), modelsTimeout)
	defer cancel()
	v, err, _ := h.models.Do("models", func() (any, error) {
		return h.cfg.Models.Models(ctx)
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "list models failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to fetch models")
		return
	}

	models, _ := v.([]tutor.ModelInfo)
	if models == nil {
		models = []tutor.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Data: models})
}

// Preview handles POST /api/v1/preview. It compiles text without touching
// any session.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decode(w, r, &req) {
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = h.cfg.DefaultMode
	}
	if !mode.Valid() {
		writeError(w, http.StatusBadRequest, "unknown mode "+strconv.Quote(string(mode)))
		return
	}

	writeJSON(w, http.StatusOK, toPreview(choreo.Compile(req.Text, mode, h.cfg.Timing)))
}

// Transcript handles GET /api/v1/sessions/{id}/transcript.
func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Transcripts == nil {
		writeError(w, http.StatusServiceUnavailable, "transcripts not configured")
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	limit, err := queryInt(r, "limit", defaultTranscriptMax)
	if err != nil || limit <= 0 || limit > defaultTranscriptMax {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(defaultTranscriptMax))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be non-negative")
		return
	}

	entries, err := h.cfg.Transcripts.ListBySession(r.Context(), id, limit, offset)
	if err != nil {
		slog.ErrorContext(r.Context(), "list transcript failed",
			slog.String("session_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list transcript")
		return
	}

	total, err := h.cfg.Transcripts.CountBySession(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "count transcript failed",
			slog.String("session_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list transcript")
		return
	}

	resp := TranscriptResponse{SessionID: id, Total: total, Entries: make([]TranscriptEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, TranscriptEntry{
			EventID:    e.EventID,
			EventType:  e.EventType,
			Source:     e.Source,
			OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
			Payload:    e.Payload,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
