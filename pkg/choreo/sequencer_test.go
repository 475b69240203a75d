package choreo

import (
	"encoding/json"
	"testing"
	"time"
)

func cmdsFor(text string, mode Mode) []Command {
	var cmds []Command
	for _, span := range Extract(text).Spans {
		cmds = append(cmds, Command{Kind: span.Kind, Moves: Normalize(span.Payload, mode)})
	}
	return cmds
}

func TestScheduleNonOverlapping(t *testing.T) {
	timing := DefaultTiming()
	cmds := cmdsFor("<reset/>before <animate>ab</animate> middle <animate>s</animate> end", ModeAlgebraic)
	plan := Schedule(cmds, timing)

	if len(plan.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(plan.Events))
	}

	reset, first, second := plan.Events[0], plan.Events[1], plan.Events[2]
	if reset.Kind != CommandReset || first.Kind != CommandAnimate || second.Kind != CommandAnimate {
		t.Fatalf("kinds = %s, %s, %s", reset.Kind, first.Kind, second.Kind)
	}
	if reset.Delay != timing.BaseDelay {
		t.Errorf("reset delay = %s, want %s", reset.Delay, timing.BaseDelay)
	}
	if !(reset.Delay < first.Delay && first.Delay < second.Delay) {
		t.Errorf("delays not strictly increasing: %s, %s, %s", reset.Delay, first.Delay, second.Delay)
	}
	if second.Delay < first.Delay+2*timing.PerMove {
		t.Errorf("second animation at %s overlaps first at %s", second.Delay, first.Delay)
	}

	wantSpan := second.Delay + timing.AnimationLength(1)
	if plan.Span != wantSpan {
		t.Errorf("span = %s, want %s", plan.Span, wantSpan)
	}
}

func TestScheduleExactDelays(t *testing.T) {
	timing := DefaultTiming()
	plan := Schedule(cmdsFor("<reset><animate>aaaa⁻¹a⁻¹</animate>", ModeAlgebraic), timing)

	want := []time.Duration{500 * time.Millisecond, 800 * time.Millisecond}
	if len(plan.Events) != len(want) {
		t.Fatalf("got %d events, want %d", len(plan.Events), len(want))
	}
	for i, ev := range plan.Events {
		if ev.Delay != want[i] {
			t.Errorf("event %d delay = %s, want %s", i, ev.Delay, want[i])
		}
		if ev.Seq != i {
			t.Errorf("event %d seq = %d", i, ev.Seq)
		}
	}
	if plan.Span != 800*time.Millisecond+3*time.Second {
		t.Errorf("span = %s", plan.Span)
	}
}

func TestScheduleSkipsEmptyAnimate(t *testing.T) {
	timing := DefaultTiming()
	plan := Schedule(cmdsFor("<animate>xyz</animate><animate>a</animate>", ModeAlgebraic), timing)

	if len(plan.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(plan.Events))
	}
	if plan.Events[0].Delay != timing.BaseDelay {
		t.Errorf("delay = %s, want %s (empty span must not advance the cursor)", plan.Events[0].Delay, timing.BaseDelay)
	}
}

func TestScheduleNoCommands(t *testing.T) {
	timing := DefaultTiming()
	plan := Schedule(nil, timing)
	if len(plan.Events) != 0 {
		t.Errorf("got %d events, want 0", len(plan.Events))
	}
	if plan.Span != timing.BaseDelay {
		t.Errorf("span = %s, want %s", plan.Span, timing.BaseDelay)
	}
}

func TestScheduleConsumerSerialized(t *testing.T) {
	timing := DefaultTiming()
	timing.Policy = PolicyConsumerSerialized
	plan := Schedule(cmdsFor("<animate>aa</animate><animate>s</animate><reset><animate>a</animate>", ModeAlgebraic), timing)

	if len(plan.Events) != 4 {
		t.Fatalf("got %d events, want 4", len(plan.Events))
	}
	if plan.Events[0].Delay != plan.Events[1].Delay {
		t.Errorf("consecutive animations should share a delay: %s vs %s", plan.Events[0].Delay, plan.Events[1].Delay)
	}
	wantReset := timing.BaseDelay + timing.AnimationLength(2) + timing.AnimationLength(1)
	if plan.Events[2].Delay != wantReset {
		t.Errorf("reset delay = %s, want %s", plan.Events[2].Delay, wantReset)
	}
	if plan.Events[3].Delay != wantReset+timing.ResetSettle {
		t.Errorf("last animation delay = %s", plan.Events[3].Delay)
	}
	for i := 1; i < len(plan.Events); i++ {
		if plan.Events[i].Delay < plan.Events[i-1].Delay {
			t.Errorf("event %d delay decreased", i)
		}
	}
}

func TestTimingValidate(t *testing.T) {
	if err := DefaultTiming().Validate(); err != nil {
		t.Fatalf("default timing: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Timing)
	}{
		{name: "zero base delay", modify: func(t *Timing) { t.BaseDelay = 0 }},
		{name: "negative per move", modify: func(t *Timing) { t.PerMove = -time.Millisecond }},
		{name: "unknown policy", modify: func(t *Timing) { t.Policy = "sometimes" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timing := DefaultTiming()
			tt.modify(&timing)
			if err := timing.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestScheduledEventJSON(t *testing.T) {
	ev := ScheduledEvent{Seq: 1, Kind: CommandAnimate, Moves: Normalize("ab", ModeAlgebraic), Delay: 800 * time.Millisecond}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["delay_ms"] != float64(800) {
		t.Errorf("delay_ms = %v, want 800", decoded["delay_ms"])
	}
	if decoded["kind"] != "animate" {
		t.Errorf("kind = %v", decoded["kind"])
	}
}
