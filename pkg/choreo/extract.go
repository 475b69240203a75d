package choreo

import (
	"regexp"
	"strings"
)

// commandRe matches both commands in one pass so spans come out in source
// order. The animate payload is non-greedy and does not cross lines.
var commandRe = regexp.MustCompile(`<reset\s*/?>|<animate>(.*?)</animate>`)

// CommandKind distinguishes the two markup commands.
type CommandKind string

const (
	CommandReset   CommandKind = "reset"
	CommandAnimate CommandKind = "animate"
)

// CommandSpan is one markup command found in tutor text.
type CommandSpan struct {
	Kind CommandKind `json:"kind"`
	// Payload is the raw text between animate tags.
	Payload string `json:"payload,omitempty"`
	// Offset is the byte offset of the tag in the source text.
	Offset int `json:"offset"`
}

// Extraction is the result of scanning one tutor message.
type Extraction struct {
	Spans       []CommandSpan
	DisplayText string
}

// Extract finds reset and animate commands in source order and builds the
// display text: reset tags are removed and every animate span is replaced
// by its payload wrapped in "**". Unrecognised or unterminated markup is
// left in the text untouched.
func Extract(text string) Extraction {
	matches := commandRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Extraction{DisplayText: text}
	}

	var (
		spans []CommandSpan
		b     strings.Builder
		last  int
	)
	b.Grow(len(text))

	for _, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(text[last:start])
		last = end

		// Group 1 is unset (-1) for the reset alternative.
		if m[2] < 0 {
			spans = append(spans, CommandSpan{Kind: CommandReset, Offset: start})
			continue
		}

		payload := text[m[2]:m[3]]
		spans = append(spans, CommandSpan{Kind: CommandAnimate, Payload: payload, Offset: start})
		b.WriteString("**")
		b.WriteString(payload)
		b.WriteString("**")
	}
	b.WriteString(text[last:])

	return Extraction{Spans: spans, DisplayText: b.String()}
}
