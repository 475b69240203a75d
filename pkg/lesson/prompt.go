package lesson

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"sync"
	"text/template"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
)

const maxPromptOutput = 64 * 1024

// promptCache caches parsed prompt templates keyed by their source.
var promptCache sync.Map

// PromptAlphabet names the move symbols of the lesson's mode.
type PromptAlphabet struct {
	Forward string
	Inverse string
	// Reflect is empty when the mode has no reflection.
	Reflect string
}

// promptData is the data available in system prompt templates.
type promptData struct {
	Title     string
	Mode      choreo.Mode
	Alphabet  PromptAlphabet
	Variables map[string]string
}

// RenderPrompt renders the lesson's system prompt. Entries in overrides
// replace lesson variables of the same name.
func (l *Lesson) RenderPrompt(overrides map[string]string) (string, error) {
	vars := make(map[string]string, len(l.Variables)+len(overrides))
	maps.Copy(vars, l.Variables)
	maps.Copy(vars, overrides)

	a, _ := choreo.AlphabetFor(l.Mode)
	data := promptData{
		Title: l.Title,
		Mode:  l.Mode,
		Alphabet: PromptAlphabet{
			Forward: runeString(a.Forward),
			Inverse: runeString(a.Inverse),
			Reflect: runeString(a.Reflect),
		},
		Variables: vars,
	}

	tmpl, err := parsePrompt(l.SystemPrompt)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, n: maxPromptOutput}
	if err := tmpl.Execute(lw, data); err != nil {
		return "", fmt.Errorf("render prompt for %q: %w", l.Name, err)
	}
	return buf.String(), nil
}

func parsePrompt(src string) (*template.Template, error) {
	if cached, ok := promptCache.Load(src); ok {
		return cached.(*template.Template), nil
	}
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, err
	}
	promptCache.Store(src, tmpl)
	return tmpl, nil
}

func runeString(r rune) string {
	if r == 0 {
		return ""
	}
	return string(r)
}

// limitWriter caps output from template.Execute.
type limitWriter struct {
	w       io.Writer
	n       int64
	written int64
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if lw.written+int64(len(p)) > lw.n {
		allowed := lw.n - lw.written
		if allowed > 0 {
			n, err := lw.w.Write(p[:allowed])
			lw.written += int64(n)
			if err != nil {
				return n, err
			}
		}
		return 0, fmt.Errorf("prompt output exceeds %d bytes", lw.n)
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}
