package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
)

// verifyNoLeaks fails the test if a goroutine outlives it. The ants pool
// that frame's workerpool imports starts its own goroutines at init.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	goleak.VerifyNone(t,
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).purgeStaleWorkers"),
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).ticktock"),
	)
}

func fastTiming() choreo.Timing {
	return choreo.Timing{
		BaseDelay:   5 * time.Millisecond,
		ResetSettle: 5 * time.Millisecond,
		PerMove:     5 * time.Millisecond,
		Buffer:      5 * time.Millisecond,
		Policy:      choreo.PolicyAdvance,
	}
}

func slowTiming() choreo.Timing {
	t := fastTiming()
	t.BaseDelay = time.Hour
	return t
}

type recorder struct {
	ch chan Dispatch
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Dispatch, 32)}
}

func (r *recorder) Dispatch(_ context.Context, d Dispatch) error {
	r.ch <- d
	return nil
}

func (r *recorder) next(t *testing.T) Dispatch {
	t.Helper()
	select {
	case d := <-r.ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return Dispatch{}
	}
}

func (r *recorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case d := <-r.ch:
		t.Fatalf("unexpected dispatch: %+v", d)
	case <-time.After(wait):
	}
}

func TestSessionPlaysScriptInOrder(t *testing.T) {
	defer verifyNoLeaks(t)

	rec := newRecorder()
	s := NewSession("s1", Options{Dispatcher: rec})
	defer s.Close()

	script := choreo.Compile("<reset><animate>aa</animate><animate>s</animate>", choreo.ModeAlgebraic, fastTiming())
	if _, err := s.Enqueue(script); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	reset := rec.next(t)
	if reset.Event.Kind != choreo.CommandReset || reset.Explicit {
		t.Errorf("first dispatch = %+v, want scripted reset", reset)
	}

	first := rec.next(t)
	if first.Event.Kind != choreo.CommandAnimate || len(first.Steps) != 2 {
		t.Fatalf("second dispatch = %+v, want animate with 2 steps", first)
	}
	if first.Pose.Position != -2 {
		t.Errorf("pose after aa = %+v", first.Pose)
	}

	second := rec.next(t)
	if len(second.Steps) != 1 || second.Pose.Facing != choreo.FacingBackward {
		t.Errorf("third dispatch = %+v", second)
	}

	snap := s.Snapshot()
	if snap.Pending != 0 {
		t.Errorf("pending = %d, want 0", snap.Pending)
	}
	if snap.Actor.Position != -2 || snap.Actor.Facing != choreo.FacingBackward {
		t.Errorf("snapshot actor = %+v", snap.Actor)
	}
	if len(snap.Actor.History) != 3 {
		t.Errorf("history length = %d, want 3", len(snap.Actor.History))
	}
}

func TestSessionQueuePolicy(t *testing.T) {
	defer verifyNoLeaks(t)

	rec := newRecorder()
	s := NewSession("s2", Options{Policy: PolicyQueue, Dispatcher: rec})
	defer s.Close()

	first := choreo.Compile("<animate>aaa</animate>", choreo.ModeAlgebraic, fastTiming())
	second := choreo.Compile("<animate>b</animate>", choreo.ModeAlgebraic, fastTiming())

	r1, err := s.Enqueue(first)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	r2, err := s.Enqueue(second)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if r2.Start.Before(r1.Start.Add(first.Span)) {
		t.Errorf("second script starts at %s, before first drains at %s", r2.Start, r1.Start.Add(first.Span))
	}
	if r2.Dropped != 0 {
		t.Errorf("queue policy dropped %d events", r2.Dropped)
	}

	d1 := rec.next(t)
	d2 := rec.next(t)
	if d1.Script != r1.Script || d2.Script != r2.Script {
		t.Errorf("dispatch order = %d, %d, want %d, %d", d1.Script, d2.Script, r1.Script, r2.Script)
	}
	if d2.Pose.Position != -2 {
		t.Errorf("final position = %d, want -2", d2.Pose.Position)
	}
}

func TestSessionReplacePolicy(t *testing.T) {
	defer verifyNoLeaks(t)

	rec := newRecorder()
	s := NewSession("s3", Options{Policy: PolicyReplace, Dispatcher: rec})
	defer s.Close()

	if _, err := s.Enqueue(choreo.Compile("<reset><animate>aaa</animate>", choreo.ModeAlgebraic, slowTiming())); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got := s.Snapshot().Pending; got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	r, err := s.Enqueue(choreo.Compile("<animate>b</animate>", choreo.ModeAlgebraic, fastTiming()))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if r.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", r.Dropped)
	}

	d := rec.next(t)
	if d.Script != r.Script || d.Pose.Position != 1 {
		t.Errorf("dispatch = %+v", d)
	}
	rec.none(t, 30*time.Millisecond)
}

func TestSessionResetCancelsPending(t *testing.T) {
	defer verifyNoLeaks(t)

	rec := newRecorder()
	s := NewSession("s4", Options{Dispatcher: rec})
	defer s.Close()

	if _, err := s.Enqueue(choreo.Compile("<animate>a</animate>", choreo.ModeAlgebraic, fastTiming())); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rec.next(t)

	if _, err := s.Enqueue(choreo.Compile("<animate>aaaa</animate>", choreo.ModeAlgebraic, slowTiming())); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	d := rec.next(t)
	if !d.Explicit || d.Event.Kind != choreo.CommandReset {
		t.Errorf("dispatch = %+v, want explicit reset", d)
	}
	if d.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", d.Dropped)
	}

	snap := s.Snapshot()
	if snap.Pending != 0 {
		t.Errorf("pending = %d, want 0", snap.Pending)
	}
	if snap.Actor.Pose != (choreo.Pose{Position: 0, Facing: choreo.FacingForward}) || len(snap.Actor.History) != 0 {
		t.Errorf("actor after reset = %+v", snap.Actor)
	}

	// A script enqueued after the reset starts at once rather than after the
	// cancelled one.
	r, err := s.Enqueue(choreo.Compile("<animate>b</animate>", choreo.ModeAlgebraic, fastTiming()))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if time.Until(r.Start) > time.Second {
		t.Errorf("script after reset starts at %s", r.Start)
	}
	if got := rec.next(t); got.Pose.Position != 1 {
		t.Errorf("pose after b = %+v", got.Pose)
	}
}

func TestSessionEmptyScript(t *testing.T) {
	defer verifyNoLeaks(t)

	rec := newRecorder()
	s := NewSession("s5", Options{Dispatcher: rec})
	defer s.Close()

	r, err := s.Enqueue(choreo.Compile("plain prose", choreo.ModeAlgebraic, fastTiming()))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if r.Pending != 0 {
		t.Errorf("pending = %d, want 0", r.Pending)
	}
	rec.none(t, 20*time.Millisecond)
}

func TestSessionClose(t *testing.T) {
	defer verifyNoLeaks(t)

	s := NewSession("s6", Options{})
	if _, err := s.Enqueue(choreo.Compile("<animate>a</animate>", choreo.ModeAlgebraic, slowTiming())); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	s.Close()
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("scheduler loop still running after Close")
	}
	if _, err := s.Enqueue(choreo.Script{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after Close: err = %v, want ErrClosed", err)
	}
	if err := s.Reset(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Reset after Close: err = %v, want ErrClosed", err)
	}
	if got := s.Snapshot().Pending; got != 0 {
		t.Errorf("pending after Close = %d", got)
	}
}

func TestSessionDispatcherErrorDoesNotStopPlayback(t *testing.T) {
	defer verifyNoLeaks(t)

	rec := newRecorder()
	failing := DispatcherFunc(func(context.Context, Dispatch) error {
		return errors.New("renderer offline")
	})
	s := NewSession("s7", Options{Dispatcher: Fanout(failing, nil, rec)})
	defer s.Close()

	if _, err := s.Enqueue(choreo.Compile("<animate>a</animate><animate>a</animate>", choreo.ModeAlgebraic, fastTiming())); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rec.next(t)
	if d := rec.next(t); d.Pose.Position != -2 {
		t.Errorf("pose = %+v", d.Pose)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	calls := 0
	count := DispatcherFunc(func(context.Context, Dispatch) error { calls++; return nil })

	err := Fanout(
		DispatcherFunc(func(context.Context, Dispatch) error { return errA }),
		count,
		DispatcherFunc(func(context.Context, Dispatch) error { return errB }),
	).Dispatch(context.Background(), Dispatch{})

	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("err = %v, want both errors", err)
	}
	if calls != 1 {
		t.Errorf("middle dispatcher called %d times", calls)
	}
}

func TestPolicyValid(t *testing.T) {
	if !PolicyQueue.Valid() || !PolicyReplace.Valid() {
		t.Error("known policies should be valid")
	}
	if Policy("drop").Valid() {
		t.Error("unknown policy should be invalid")
	}
	s := NewSession("s8", Options{Policy: "drop"})
	defer s.Close()
	if s.Policy() != PolicyQueue {
		t.Errorf("default policy = %s", s.Policy())
	}
}
