package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/workerpool"
	"github.com/rs/xid"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
	"github.com/hypatia-tutor/hypatia/pkg/events"
	"github.com/hypatia-tutor/hypatia/pkg/lesson"
	"github.com/hypatia-tutor/hypatia/pkg/stage"
	"github.com/hypatia-tutor/hypatia/pkg/tutor"
)

const (
	defaultSessionTTL = 30 * time.Minute
	reaperInterval    = 1 * time.Minute
	watchBuffer       = 64
	maxMessageLength  = 8 * 1024
)

var _ TutorServiceHandler = (*TutorHandler)(nil)

// LessonSource looks up lessons by name.
type LessonSource interface {
	Get(name string) (*lesson.Lesson, bool)
	All() []*lesson.Lesson
}

// Config configures a TutorHandler.
type Config struct {
	Timing        choreo.Timing
	Policy        stage.Policy
	DefaultLesson string
	SessionTTL    time.Duration
	MaxHistory    int
	// Renderer also receives every applied stage event. Optional.
	Renderer stage.Dispatcher
}

type activeSession struct {
	id      string
	lesson  *lesson.Lesson
	system  string
	conv    *tutor.Conversation
	stage   *stage.Session
	started time.Time

	// turn orders exchange and enqueue of one message against the next.
	turn       sync.Mutex
	lastActive atomic.Int64
	reflect    atomic.Bool
}

func (as *activeSession) touch() {
	as.lastActive.Store(time.Now().UnixNano())
}

func (as *activeSession) idleSince() time.Time {
	return time.Unix(0, as.lastActive.Load())
}

// SessionStore holds active tutoring sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*activeSession
}

func (s *SessionStore) get(id string) (*activeSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	as, ok := s.sessions[id]
	return as, ok
}

func (s *SessionStore) remove(id string) (*activeSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	as, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return as, ok
}

// Len returns the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// TutorHandler implements TutorServiceHandler.
type TutorHandler struct {
	lessons   LessonSource
	model     tutor.Completer
	publisher *events.Publisher
	pool      workerpool.WorkerPool
	cfg       Config
	store     SessionStore
}

// NewTutorHandler creates a new tutor service handler. The pool may be nil.
func NewTutorHandler(lessons LessonSource, model tutor.Completer, pub *events.Publisher, pool workerpool.WorkerPool, cfg Config) *TutorHandler {
	if cfg.Timing.Validate() != nil {
		cfg.Timing = choreo.DefaultTiming()
	}
	if !cfg.Policy.Valid() {
		cfg.Policy = stage.PolicyQueue
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	return &TutorHandler{
		lessons:   lessons,
		model:     model,
		publisher: pub,
		pool:      pool,
		cfg:       cfg,
		store: SessionStore{
			sessions: make(map[string]*activeSession),
		},
	}
}

// Sessions exposes the session store.
func (h *TutorHandler) Sessions() *SessionStore { return &h.store }

// StartReaper begins the background idle-session reaper.
func (h *TutorHandler) StartReaper(ctx context.Context) {
	reap := func() {
		ticker := time.NewTicker(reaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.ReapIdle(time.Now())
			}
		}
	}
	if h.pool != nil {
		if err := h.pool.Submit(ctx, reap); err == nil {
			return
		}
	}
	go reap()
}

// ReapIdle ends every session idle for longer than the TTL at now. It
// returns the number of sessions ended.
func (h *TutorHandler) ReapIdle(now time.Time) int {
	var stale []*activeSession
	h.store.mu.Lock()
	for id, as := range h.store.sessions {
		if now.Sub(as.idleSince()) > h.cfg.SessionTTL {
			stale = append(stale, as)
			delete(h.store.sessions, id)
		}
	}
	h.store.mu.Unlock()

	for _, as := range stale {
		slog.Warn("reaping idle tutor session", slog.String("session_id", as.id))
		h.end(context.Background(), as, "expired")
	}
	return len(stale)
}

// Shutdown ends all sessions.
func (h *TutorHandler) Shutdown(ctx context.Context) {
	h.store.mu.Lock()
	all := make([]*activeSession, 0, len(h.store.sessions))
	for id, as := range h.store.sessions {
		all = append(all, as)
		delete(h.store.sessions, id)
	}
	h.store.mu.Unlock()

	for _, as := range all {
		h.end(ctx, as, "shutdown")
	}
}

func (h *TutorHandler) end(ctx context.Context, as *activeSession, reason string) {
	h.emit(ctx, events.SessionEnded, as.id, &events.SessionEndedData{
		Reason:     reason,
		DurationMs: time.Since(as.started).Milliseconds(),
		Messages:   as.conv.Len(),
	})
	as.stage.Close()
}

func (h *TutorHandler) emit(ctx context.Context, et events.EventType, sessionID string, data any) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Emit(ctx, et, sessionID, data); err != nil {
		slog.WarnContext(ctx, "emit event failed",
			slog.String("event_type", string(et)),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}

func (h *TutorHandler) dispatcher() stage.Dispatcher {
	var pub stage.Dispatcher
	if h.publisher != nil {
		pub = h.publisher.StageDispatcher()
	}
	return stage.Fanout(pub, h.cfg.Renderer)
}

func (h *TutorHandler) lookup(id string) (*activeSession, error) {
	as, ok := h.store.get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return as, nil
}

func (h *TutorHandler) StartSession(ctx context.Context, req *connect.Request[StartSessionRequest]) (*connect.Response[StartSessionResponse], error) {
	name := req.Msg.Lesson
	if name == "" {
		name = h.cfg.DefaultLesson
	}
	l, ok := h.lessons.Get(name)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("lesson %q not found", name))
	}

	system, err := l.RenderPrompt(req.Msg.Variables)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	id := req.Msg.SessionID
	if id == "" {
		id = xid.New().String()
	}

	as := &activeSession{
		id:      id,
		lesson:  l,
		system:  system,
		conv:    tutor.NewConversation(h.cfg.MaxHistory),
		started: time.Now(),
	}
	as.touch()

	h.store.mu.Lock()
	if _, exists := h.store.sessions[id]; exists {
		h.store.mu.Unlock()
		return nil, connect.NewError(connect.CodeAlreadyExists, fmt.Errorf("session %q already exists", id))
	}
	as.stage = stage.NewSession(id, stage.Options{
		Policy:     h.cfg.Policy,
		Dispatcher: h.dispatcher(),
		Pool:       h.pool,
	})
	h.store.sessions[id] = as
	h.store.mu.Unlock()

	h.emit(ctx, events.SessionStarted, id, &events.SessionStartedData{Lesson: l.Name, Mode: l.Mode})

	return connect.NewResponse(&StartSessionResponse{
		SessionID: id,
		Lesson:    l.Name,
		Mode:      l.Mode,
		Starters:  append([]string(nil), l.Starters...),
	}), nil
}

func (h *TutorHandler) SendMessage(ctx context.Context, req *connect.Request[SendMessageRequest]) (*connect.Response[SendMessageResponse], error) {
	text := strings.TrimSpace(req.Msg.Text)
	if text == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("text is required"))
	}
	if len(text) > maxMessageLength {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("text exceeds %d bytes", maxMessageLength))
	}

	as, err := h.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	as.touch()

	as.turn.Lock()
	defer as.turn.Unlock()

	h.emit(ctx, events.MessageReceived, as.id, &events.MessageReceivedData{Text: text})

	reply, err := as.conv.Exchange(ctx, h.model, as.system, text, as.lesson.Mode, h.cfg.Timing)
	if err != nil {
		slog.ErrorContext(ctx, "tutor reply failed",
			slog.String("session_id", as.id), slog.String("error", err.Error()))
		h.emit(ctx, events.ReplyFailed, as.id, &events.ReplyFailedData{
			Error:      err.Error(),
			StatusCode: tutor.StatusCode(err),
		})
		return connect.NewResponse(&SendMessageResponse{
			DisplayText:    reply.Text,
			Events:         []choreo.ScheduledEvent{},
			ReflectEnabled: as.reflect.Load(),
			Failed:         true,
			Actor:          as.stage.Snapshot().Actor,
		}), nil
	}

	resp := &SendMessageResponse{
		DisplayText: reply.Text,
		Events:      reply.Script.Events,
	}
	if resp.Events == nil {
		resp.Events = []choreo.ScheduledEvent{}
	}

	if !reply.Script.Empty() {
		receipt, err := as.stage.Enqueue(reply.Script)
		switch {
		case errors.Is(err, stage.ErrClosed):
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q has ended", as.id))
		case err != nil:
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		resp.StartsAt = receipt.Start
		h.emit(ctx, events.ScriptScheduled, as.id, &events.ScriptScheduledData{
			Script:  receipt.Script,
			Start:   receipt.Start,
			Dropped: receipt.Dropped,
			Pending: receipt.Pending,
			Events:  reply.Script.Events,
		})
	}

	if reply.Script.ReflectUsed && as.reflect.CompareAndSwap(false, true) {
		h.emit(ctx, events.CapabilityReflect, as.id, &events.CapabilityReflectData{Enabled: true})
	}
	resp.ReflectEnabled = as.reflect.Load()

	h.emit(ctx, events.ReplySent, as.id, &events.ReplySentData{
		DisplayText: reply.Text,
		Raw:         reply.Raw,
		Events:      len(reply.Script.Events),
		ReflectUsed: reply.Script.ReflectUsed,
	})

	resp.Actor = as.stage.Snapshot().Actor
	return connect.NewResponse(resp), nil
}

func (h *TutorHandler) ResetSession(ctx context.Context, req *connect.Request[ResetSessionRequest]) (*connect.Response[ResetSessionResponse], error) {
	as, err := h.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	as.touch()

	if err := as.stage.Reset(ctx); err != nil {
		if errors.Is(err, stage.ErrClosed) {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q has ended", as.id))
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&ResetSessionResponse{Actor: as.stage.Snapshot().Actor}), nil
}

func (h *TutorHandler) GetSession(_ context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	as, err := h.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	snap := as.stage.Snapshot()
	return connect.NewResponse(&GetSessionResponse{
		SessionID:      as.id,
		Lesson:         as.lesson.Name,
		Mode:           as.lesson.Mode,
		Actor:          snap.Actor,
		Pending:        snap.Pending,
		ReflectEnabled: as.reflect.Load(),
		StartedAt:      as.started,
		History:        as.conv.Messages(),
	}), nil
}

func (h *TutorHandler) EndSession(ctx context.Context, req *connect.Request[EndSessionRequest]) (*connect.Response[EndSessionResponse], error) {
	as, ok := h.store.remove(req.Msg.SessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	h.end(ctx, as, "ended")
	return connect.NewResponse(&EndSessionResponse{}), nil
}

func (h *TutorHandler) ListLessons(_ context.Context, _ *connect.Request[ListLessonsRequest]) (*connect.Response[ListLessonsResponse], error) {
	all := h.lessons.All()
	infos := make([]lesson.Info, 0, len(all))
	for _, l := range all {
		infos = append(infos, l.Info())
	}
	return connect.NewResponse(&ListLessonsResponse{Lessons: infos}), nil
}

// WatchSession streams the events of one session until the client goes
// away or the session ends.
func (h *TutorHandler) WatchSession(ctx context.Context, req *connect.Request[WatchSessionRequest], stream *connect.ServerStream[events.Envelope]) error {
	if h.publisher == nil {
		return connect.NewError(connect.CodeUnavailable, errors.New("event streaming not configured"))
	}
	as, err := h.lookup(req.Msg.SessionID)
	if err != nil {
		return err
	}

	subID := "watch-" + xid.New().String()
	ch := h.publisher.SubscribeSession(subID, as.id, watchBuffer)
	defer h.publisher.Unsubscribe(subID)

	// Flush headers so the client's call returns while the session is idle.
	if err := stream.Send(nil); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(&env); err != nil {
				return err
			}
			if env.Type == events.SessionEnded {
				return nil
			}
		case <-as.stage.Done():
			return drain(ch, stream)
		}
	}
}

// drain sends what is already buffered for an ended session.
func drain(ch <-chan events.Envelope, stream *connect.ServerStream[events.Envelope]) error {
	for {
		select {
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(&env); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}
