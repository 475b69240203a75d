// Package lesson loads tutoring lessons: a teaching mode, a system prompt
// template and a few suggested opening questions.
package lesson

import (
	"fmt"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
)

// Lesson is a YAML-mappable lesson definition.
type Lesson struct {
	Name         string            `yaml:"name"          json:"name"`
	Title        string            `yaml:"title"         json:"title"`
	Description  string            `yaml:"description"   json:"description,omitempty"`
	Mode         choreo.Mode       `yaml:"mode"          json:"mode"`
	SystemPrompt string            `yaml:"system_prompt" json:"-"`
	Variables    map[string]string `yaml:"variables"     json:"variables,omitempty"`
	Starters     []string          `yaml:"starters"      json:"starters,omitempty"`
}

// Validate checks that the lesson can be served.
func (l *Lesson) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("lesson name is required")
	}
	if !l.Mode.Valid() {
		return fmt.Errorf("lesson %q: unknown mode %q", l.Name, l.Mode)
	}
	if l.SystemPrompt == "" {
		return fmt.Errorf("lesson %q: system_prompt is required", l.Name)
	}
	if _, err := parsePrompt(l.SystemPrompt); err != nil {
		return fmt.Errorf("lesson %q: system_prompt: %w", l.Name, err)
	}
	return nil
}

// Info is the public summary of a lesson.
type Info struct {
	Name        string      `json:"name"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Mode        choreo.Mode `json:"mode"`
	Starters    []string    `json:"starters,omitempty"`
	Reflect     bool        `json:"reflect"`
}

// Info returns the public summary of the lesson.
func (l *Lesson) Info() Info {
	a, _ := choreo.AlphabetFor(l.Mode)
	return Info{
		Name:        l.Name,
		Title:       l.Title,
		Description: l.Description,
		Mode:        l.Mode,
		Starters:    append([]string(nil), l.Starters...),
		Reflect:     a.HasReflect(),
	}
}
