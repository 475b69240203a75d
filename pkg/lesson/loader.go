package lesson

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Loader serves the built-in lessons plus any found in an optional
// directory. A directory lesson with the same name replaces the built-in.
type Loader struct {
	dir string

	mu      sync.RWMutex
	lessons map[string]*Lesson
}

// NewLoader creates a loader. An empty dir serves built-in lessons only.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:     dir,
		lessons: make(map[string]*Lesson),
	}
}

// LoadAll reloads built-in lessons and every .yaml and .yml file in the
// configured directory. On error the previously loaded set is kept.
func (l *Loader) LoadAll() (map[string]*Lesson, error) {
	result := make(map[string]*Lesson)

	if err := loadFS(builtinFS, "builtin", result); err != nil {
		return nil, fmt.Errorf("load built-in lessons: %w", err)
	}
	if l.dir != "" {
		if err := loadFS(os.DirFS(l.dir), ".", result); err != nil {
			return nil, fmt.Errorf("load lesson dir %q: %w", l.dir, err)
		}
	}

	l.mu.Lock()
	l.lessons = result
	l.mu.Unlock()

	return result, nil
}

// Get returns a loaded lesson by name.
func (l *Loader) Get(name string) (*Lesson, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ls, ok := l.lessons[name]
	return ls, ok
}

// All returns the loaded lessons sorted by name.
func (l *Loader) All() []*Lesson {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]*Lesson, 0, len(l.lessons))
	for _, ls := range l.lessons {
		result = append(result, ls)
	}
	slices.SortFunc(result, func(a, b *Lesson) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result
}

func loadFS(fsys fs.FS, dir string, into map[string]*Lesson) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isLessonFile(entry.Name()) {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		ls, err := parseLesson(data, entry.Name())
		if err != nil {
			return fmt.Errorf("load %q: %w", entry.Name(), err)
		}
		into[ls.Name] = ls
	}
	return nil
}

func parseLesson(data []byte, filename string) (*Lesson, error) {
	var ls Lesson
	if err := yaml.Unmarshal(data, &ls); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if ls.Name == "" {
		ls.Name = filename[:len(filename)-len(filepath.Ext(filename))]
	}
	if ls.Title == "" {
		ls.Title = ls.Name
	}
	if err := ls.Validate(); err != nil {
		return nil, err
	}
	return &ls, nil
}

func isLessonFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// WatchAndReload watches the lesson directory and reloads on changes.
// This blocks until the done channel is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}) error {
	if l.dir == "" {
		<-done
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if !isLessonFile(event.Name) {
					continue
				}
				if _, err := l.LoadAll(); err != nil {
					slog.Warn("lesson reload failed", slog.String("error", err.Error()))
					continue
				}
				slog.Info("lessons reloaded", slog.String("trigger", event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
