// Package stage runs compiled scripts against a per-session actor.
//
// Each Session owns an actor and a queue of pending events ordered by due
// time. A single scheduler loop drains the queue, applies due events to the
// actor and hands the result to a Dispatcher. Cancelling playback, on reset
// or teardown, is one queue clear.
package stage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
)

const closeWait = 5 * time.Second

// ErrClosed is returned when scheduling on a closed session.
var ErrClosed = errors.New("stage: session closed")

// Policy decides what happens to a still-playing script when the next one
// arrives.
type Policy string

const (
	// PolicyQueue starts the new script once the previous one has finished.
	PolicyQueue Policy = "queue"
	// PolicyReplace drops pending events of earlier scripts and starts the
	// new script immediately.
	PolicyReplace Policy = "replace"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyQueue || p == PolicyReplace
}

// Options configures a Session.
type Options struct {
	Policy     Policy
	Dispatcher Dispatcher
	// Pool runs the scheduler loop. A nil pool falls back to a goroutine.
	Pool workerpool.WorkerPool
}

// Receipt describes where an enqueued script landed on the timeline.
type Receipt struct {
	Script  uint64    `json:"script"`
	Start   time.Time `json:"start"`
	Dropped int       `json:"dropped"`
	Pending int       `json:"pending"`
}

// Snapshot is a consistent view of a session.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	Actor     choreo.ActorState `json:"actor"`
	Pending   int               `json:"pending"`
	DrainsAt  time.Time         `json:"drains_at,omitzero"`
}

type pendingEvent struct {
	due    time.Time
	script uint64
	event  choreo.ScheduledEvent
}

// Session is safe for concurrent use.
type Session struct {
	id         string
	policy     Policy
	dispatcher Dispatcher

	// dispatchMu orders dispatches: it is held from applying an event to
	// the actor until the dispatcher has seen it.
	dispatchMu sync.Mutex

	mu       sync.Mutex
	actor    *choreo.Actor
	queue    []pendingEvent
	drainsAt time.Time
	scripts  uint64
	closed   bool

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a session and starts its scheduler loop.
func NewSession(id string, opts Options) *Session {
	if !opts.Policy.Valid() {
		opts.Policy = PolicyQueue
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = Discard
	}

	// The loop outlives the request that created the session; it stops on
	// Close.
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		policy:     opts.Policy,
		dispatcher: opts.Dispatcher,
		actor:      choreo.NewActor(),
		wake:       make(chan struct{}, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	loop := func() { s.run(ctx) }
	if opts.Pool != nil {
		if err := opts.Pool.Submit(ctx, loop); err != nil {
			slog.Warn("worker pool rejected scheduler loop, using goroutine",
				slog.String("session_id", id), slog.String("error", err.Error()))
			go loop()
		}
	} else {
		go loop()
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Policy returns the cross-message policy in effect.
func (s *Session) Policy() Policy { return s.policy }

// Enqueue schedules the events of a compiled script. Under PolicyQueue the
// script starts when the previous one has drained; under PolicyReplace
// pending events are dropped first and the script starts now.
func (s *Session) Enqueue(script choreo.Script) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Receipt{}, ErrClosed
	}

	now := time.Now()
	s.scripts++
	r := Receipt{Script: s.scripts, Start: now}

	switch s.policy {
	case PolicyReplace:
		r.Dropped = len(s.queue)
		s.queue = nil
		s.drainsAt = time.Time{}
	default:
		if s.drainsAt.After(now) {
			r.Start = s.drainsAt
		}
	}

	if !script.Empty() {
		for _, ev := range script.Events {
			s.queue = append(s.queue, pendingEvent{
				due:    r.Start.Add(ev.Delay),
				script: r.Script,
				event:  ev,
			})
		}
		s.drainsAt = r.Start.Add(script.Span)
		s.signal()
	}

	r.Pending = len(s.queue)
	return r, nil
}

// Reset cancels all pending events and returns the actor to its initial
// pose at once. The dispatcher sees the reset before any later event.
func (s *Session) Reset(ctx context.Context) error {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	dropped := len(s.queue)
	s.queue = nil
	s.drainsAt = time.Time{}
	s.actor.Reset()
	pose := s.actor.Pose()
	s.mu.Unlock()

	s.dispatch(ctx, Dispatch{
		SessionID: s.id,
		Event:     choreo.ScheduledEvent{Kind: choreo.CommandReset},
		Pose:      pose,
		Explicit:  true,
		Dropped:   dropped,
	})
	return nil
}

// Snapshot returns a copy of the actor state and the queue length.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SessionID: s.id,
		Actor:     s.actor.State(),
		Pending:   len(s.queue),
	}
	if len(s.queue) > 0 {
		snap.DrainsAt = s.drainsAt
	}
	return snap
}

// Close drops pending events and stops the scheduler loop. It is safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.done:
	case <-time.After(closeWait):
		slog.Warn("scheduler loop did not exit in time", slog.String("session_id", s.id))
	}
}

// Done is closed once the scheduler loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		next, ok := s.drainDue(ctx, time.Now())

		var timeoutCh <-chan time.Time
		if ok {
			timer.Reset(next)
			timeoutCh = timer.C
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timeoutCh:
		}
	}
}

// drainDue applies and dispatches every event due at now. It returns the
// wait until the next pending event, if any.
func (s *Session) drainDue(ctx context.Context, now time.Time) (time.Duration, bool) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	var due []Dispatch
	i := 0
	for ; i < len(s.queue) && !s.queue[i].due.After(now); i++ {
		p := s.queue[i]
		steps := s.actor.Apply(p.event)
		due = append(due, Dispatch{
			SessionID: s.id,
			Script:    p.script,
			Event:     p.event,
			Steps:     steps,
			Pose:      s.actor.Pose(),
		})
	}
	s.queue = s.queue[i:]
	var wait time.Duration
	more := len(s.queue) > 0
	if more {
		wait = s.queue[0].due.Sub(now)
	}
	s.mu.Unlock()

	for _, d := range due {
		s.dispatch(ctx, d)
	}
	return wait, more
}

func (s *Session) dispatch(ctx context.Context, d Dispatch) {
	if err := s.dispatcher.Dispatch(ctx, d); err != nil {
		slog.WarnContext(ctx, "dispatch failed",
			slog.String("session_id", s.id),
			slog.String("event", string(d.Event.Kind)),
			slog.String("error", err.Error()))
	}
}
