package lesson

import (
	"strings"
	"testing"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
)

func TestRenderPromptAlphabet(t *testing.T) {
	tests := []struct {
		mode choreo.Mode
		want string
	}{
		{mode: choreo.ModeAlgebraic, want: "a/b/s"},
		{mode: choreo.ModeNumberLine, want: "L/R/S"},
		{mode: choreo.ModeNumberLineBasic, want: "L/R/"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			ls := &Lesson{
				Name:         "t",
				Mode:         tt.mode,
				SystemPrompt: "{{.Alphabet.Forward}}/{{.Alphabet.Inverse}}/{{.Alphabet.Reflect}}",
			}
			got, err := ls.RenderPrompt(nil)
			if err != nil {
				t.Fatalf("RenderPrompt: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderPromptVariables(t *testing.T) {
	ls := &Lesson{
		Name:         "t",
		Title:        "Title",
		Mode:         choreo.ModeAlgebraic,
		SystemPrompt: "{{.Title}}: {{.Variables.persona}} for {{.Variables.audience}}",
		Variables:    map[string]string{"persona": "Hypatia", "audience": "kids"},
	}

	got, err := ls.RenderPrompt(map[string]string{"audience": "adults"})
	if err != nil {
		t.Fatalf("RenderPrompt: %v", err)
	}
	if got != "Title: Hypatia for adults" {
		t.Errorf("got %q", got)
	}
	if ls.Variables["audience"] != "kids" {
		t.Error("overrides must not modify the lesson")
	}
}

func TestRenderPromptReflectSection(t *testing.T) {
	loader := NewLoader("")
	if _, err := loader.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	withSpin, _ := loader.Get("number-line")
	prompt, err := withSpin.RenderPrompt(nil)
	if err != nil {
		t.Fatalf("RenderPrompt: %v", err)
	}
	if !strings.Contains(prompt, "S spins the robot") {
		t.Errorf("number-line prompt should describe the spin:\n%s", prompt)
	}

	algebra, _ := loader.Get("group-theory")
	prompt, err = algebra.RenderPrompt(nil)
	if err != nil {
		t.Fatalf("RenderPrompt: %v", err)
	}
	if !strings.Contains(prompt, "sas = a⁻¹") {
		t.Errorf("group-theory prompt should state the conjugation relation:\n%s", prompt)
	}
	if strings.Contains(prompt, "{{") {
		t.Error("prompt still contains template markup")
	}
}

func TestRenderPromptOutputLimit(t *testing.T) {
	ls := &Lesson{
		Name:         "big",
		Mode:         choreo.ModeAlgebraic,
		SystemPrompt: `{{range .Variables}}{{.}}{{end}}`,
		Variables:    map[string]string{"x": strings.Repeat("x", maxPromptOutput+1)},
	}
	if _, err := ls.RenderPrompt(nil); err == nil {
		t.Error("expected output limit error")
	}
}

func TestLessonInfo(t *testing.T) {
	ls := &Lesson{Name: "n", Title: "T", Mode: choreo.ModeNumberLineBasic, Starters: []string{"q"}}
	info := ls.Info()
	if info.Reflect {
		t.Error("basic number line has no reflection")
	}
	info.Starters[0] = "changed"
	if ls.Starters[0] != "q" {
		t.Error("Info must copy starters")
	}
}
