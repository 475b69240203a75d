package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd(strings.NewReader(stdin), &out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCompileStdinJSON(t *testing.T) {
	out, err := run(t, "Check: <reset><animate>aaaa⁻¹a⁻¹</animate>", "compile", "--json")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var results []struct {
		Source string `json:"source"`
		Script struct {
			DisplayText string `json:"display_text"`
			Events      []struct {
				Kind    string `json:"kind"`
				DelayMs int64  `json:"delay_ms"`
			} `json:"events"`
		} `json:"script"`
		SpanMs int64 `json:"span_ms"`
		Final  struct {
			Position int    `json:"position"`
			Facing   string `json:"facing"`
		} `json:"final"`
	}
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Source != "-" || r.Script.DisplayText != "Check: **aaaa⁻¹a⁻¹**" {
		t.Errorf("result = %+v", r)
	}
	if len(r.Script.Events) != 2 || r.Script.Events[0].DelayMs != 500 || r.Script.Events[1].DelayMs != 800 {
		t.Errorf("events = %+v", r.Script.Events)
	}
	if r.Final.Position != -1 || r.Final.Facing != "forward" {
		t.Errorf("final = %+v, want -1 forward", r.Final)
	}
	// 800ms start + 5 moves * 500ms + 500ms buffer.
	if r.SpanMs != 3800 {
		t.Errorf("span = %d, want 3800", r.SpanMs)
	}
}

func TestCompileFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.txt")
	second := filepath.Join(dir, "second.txt")
	os.WriteFile(first, []byte("<animate>LLR</animate>"), 0o644)
	os.WriteFile(second, []byte("<animate>SL</animate>"), 0o644)

	out, err := run(t, "", "compile", "--mode", "number-line", first, second)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	i, j := strings.Index(out, first), strings.Index(out, second)
	if i < 0 || j < 0 || i > j {
		t.Errorf("sources missing or out of order:\n%s", out)
	}
	if !strings.Contains(out, "final position -1 facing forward") {
		t.Errorf("missing first pose:\n%s", out)
	}
	if !strings.Contains(out, "final position 1 facing backward, reflect used") {
		t.Errorf("missing second pose:\n%s", out)
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := run(t, "", "compile", "--mode", "cubes"); err == nil {
		t.Error("expected unknown mode error")
	}
	if _, err := run(t, "", "compile", "--policy", "parallel"); err == nil {
		t.Error("expected unknown policy error")
	}
	if _, err := run(t, "", "compile", filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected missing file error")
	}
}

func TestLessons(t *testing.T) {
	out, err := run(t, "", "lessons")
	if err != nil {
		t.Fatalf("lessons: %v", err)
	}
	for _, name := range []string{"group-theory", "number-line", "number-line-basic"} {
		if !strings.Contains(out, name) {
			t.Errorf("missing lesson %q:\n%s", name, out)
		}
	}
}

func TestLessonPrompt(t *testing.T) {
	out, err := run(t, "", "lessons", "prompt", "number-line-basic", "--var", "persona=Ada")
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if !strings.HasPrefix(out, "You are Ada") {
		t.Errorf("prompt = %q", out)
	}
	if !strings.Contains(out, "L is one step left") {
		t.Errorf("alphabet not rendered: %q", out)
	}

	if _, err := run(t, "", "lessons", "prompt", "nope"); err == nil {
		t.Error("expected unknown lesson error")
	}
	if _, err := run(t, "", "lessons", "prompt", "number-line-basic", "--var", "broken"); err == nil {
		t.Error("expected bad --var error")
	}
}
