package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
	"github.com/hypatia-tutor/hypatia/pkg/stage"
)

func TestEnvelopeSerialization(t *testing.T) {
	data := &SessionStartedData{
		Lesson: "group-theory",
		Mode:   choreo.ModeAlgebraic,
	}

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}

	env := Envelope{
		ID:        "test-id",
		Type:      SessionStarted,
		Source:    "hypatia",
		SessionID: "session-123",
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	if decoded.Type != SessionStarted {
		t.Errorf("type = %q, want %q", decoded.Type, SessionStarted)
	}
	if decoded.SessionID != "session-123" {
		t.Errorf("session_id = %q, want %q", decoded.SessionID, "session-123")
	}

	var payload SessionStartedData
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Mode != choreo.ModeAlgebraic {
		t.Errorf("mode = %q, want %q", payload.Mode, choreo.ModeAlgebraic)
	}
}

func TestEventTypeConstants(t *testing.T) {
	seen := make(map[EventType]bool)
	for _, et := range Types() {
		if et == "" {
			t.Error("empty event type constant")
		}
		if seen[et] {
			t.Errorf("duplicate event type: %q", et)
		}
		seen[et] = true
	}
}

func receive(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func TestPublisherLocalFanout(t *testing.T) {
	pub := NewPublisher(nil, "hypatia", "")
	all := pub.Subscribe("all", 4)
	mine := pub.SubscribeSession("mine", "s1", 4)
	defer pub.Unsubscribe("all")
	defer pub.Unsubscribe("mine")

	ctx := context.Background()
	if err := pub.Emit(ctx, MessageReceived, "s2", &MessageReceivedData{Text: "other"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := pub.Emit(ctx, MessageReceived, "s1", &MessageReceivedData{Text: "mine"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if env := receive(t, all); env.SessionID != "s2" {
		t.Errorf("first envelope for all = %q", env.SessionID)
	}
	if env := receive(t, all); env.SessionID != "s1" {
		t.Errorf("second envelope for all = %q", env.SessionID)
	}

	env := receive(t, mine)
	if env.SessionID != "s1" || env.Source != "hypatia" || env.ID == "" {
		t.Errorf("session subscriber got %+v", env)
	}
	select {
	case extra := <-mine:
		t.Errorf("session subscriber got foreign envelope %+v", extra)
	default:
	}
}

func TestPublisherUnsubscribeClosesChannel(t *testing.T) {
	pub := NewPublisher(nil, "hypatia", "")
	ch := pub.Subscribe("x", 1)
	pub.Unsubscribe("x")
	pub.Unsubscribe("x")

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	if err := pub.Emit(context.Background(), SessionEnded, "s", &SessionEndedData{Reason: "ended"}); err != nil {
		t.Errorf("Emit without subscribers: %v", err)
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	pub := NewPublisher(nil, "hypatia", "")
	ch := pub.Subscribe("slow", 1)
	defer pub.Unsubscribe("slow")

	for i := 0; i < 3; i++ {
		if err := pub.Emit(context.Background(), ReplySent, "s", &ReplySentData{}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	if len(ch) != 1 {
		t.Errorf("buffered %d envelopes, want 1", len(ch))
	}
}

func TestStageDispatcher(t *testing.T) {
	pub := NewPublisher(nil, "hypatia", "")
	ch := pub.Subscribe("watch", 4)
	defer pub.Unsubscribe("watch")

	d := pub.StageDispatcher()
	ctx := context.Background()

	moves := choreo.Normalize("as", choreo.ModeAlgebraic)
	actor := choreo.NewActor()
	ev := choreo.ScheduledEvent{Seq: 1, Kind: choreo.CommandAnimate, Moves: moves}
	steps := actor.Apply(ev)

	if err := d.Dispatch(ctx, stage.Dispatch{SessionID: "s1", Script: 3, Event: ev, Steps: steps, Pose: actor.Pose()}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := d.Dispatch(ctx, stage.Dispatch{SessionID: "s1", Event: choreo.ScheduledEvent{Kind: choreo.CommandReset}, Explicit: true, Dropped: 2}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	animated := receive(t, ch)
	if animated.Type != ActorAnimated {
		t.Fatalf("type = %q, want %q", animated.Type, ActorAnimated)
	}
	var data ActorAnimatedData
	if err := json.Unmarshal(animated.Data, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data.Moves != "as" || data.Script != 3 || data.Seq != 1 || len(data.Steps) != 2 {
		t.Errorf("animated data = %+v", data)
	}
	if data.Pose != (choreo.Pose{Position: -1, Facing: choreo.FacingBackward}) {
		t.Errorf("pose = %+v", data.Pose)
	}

	reset := receive(t, ch)
	if reset.Type != ActorReset {
		t.Fatalf("type = %q, want %q", reset.Type, ActorReset)
	}
	var rd ActorResetData
	if err := json.Unmarshal(reset.Data, &rd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !rd.Explicit || rd.Dropped != 2 {
		t.Errorf("reset data = %+v", rd)
	}
}
