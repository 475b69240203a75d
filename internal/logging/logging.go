// Package logging builds the process logger: text on the terminal, JSON in
// an optional log file and the systemd journal when running as a unit.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options configures New.
type Options struct {
	// Terminal receives text logs. Nil disables them.
	Terminal io.Writer
	// File is a path for JSON logs. Empty disables them.
	File  string
	Level slog.Leveler
	// Journal sends logs to the systemd journal.
	Journal bool
}

// UnderSystemd reports whether the process was started by systemd with its
// output connected to the journal.
func UnderSystemd() bool {
	return os.Getenv("JOURNAL_STREAM") != ""
}

// New returns a logger that fans out to every configured sink and a close
// function for the log file.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	closeFn := func() error { return nil }

	if opts.Terminal != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Terminal, hopts))
	}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, hopts))
		closeFn = f.Close
	}

	if opts.Journal {
		jh, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: level,
			ReplaceGroup: func(key string) string {
				return journalKey(key)
			},
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				a.Key = journalKey(a.Key)
				return a
			},
		})
		if err != nil {
			report(handlers, "systemd journal unavailable", err)
		} else {
			handlers = append(handlers, jh)
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.DiscardHandler)
	}
	return slog.New(slogmulti.Fanout(handlers...)), closeFn, nil
}

func report(handlers []slog.Handler, msg string, err error) {
	record := slog.NewRecord(time.Now(), slog.LevelWarn, msg, 0)
	record.AddAttrs(slog.String("error", err.Error()))
	for _, h := range handlers {
		_ = h.Handle(context.Background(), record)
	}
}

// journalKey maps an attribute key onto the journal field alphabet.
func journalKey(s string) string {
	s = strings.ToUpper(s)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, s)
}
