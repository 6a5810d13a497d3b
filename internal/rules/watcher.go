package rules

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stewardhq/steward/internal/permission"
)

// Source is a hot-reloading permission.RuleProvider backed by a YAML
// file. Edits to the file take effect on the next evaluation without a
// restart; a file that fails to parse keeps the last good rule set.
type Source struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.RWMutex
	current permission.RuleSet

	timer *time.Timer
}

// NewSource loads the file and starts watching its directory. Watching
// the directory rather than the file survives editor rename-and-replace
// saves.
func NewSource(path string) (*Source, error) {
	initial, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &Source{
		path:     path,
		watcher:  watcher,
		debounce: 200 * time.Millisecond,
		current:  initial,
	}, nil
}

// Rules returns the current rule sets
func (s *Source) Rules() permission.RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Run processes watcher events until the context is cancelled
func (s *Source) Run(ctx context.Context) error {
	defer s.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.scheduleReload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[rules] watcher error: %v", err)
		}
	}
}

// scheduleReload debounces rapid successive writes into one reload
func (s *Source) scheduleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.reload)
}

func (s *Source) reload() {
	loaded, err := LoadFile(s.path)
	if err != nil {
		// Keep the last good rules rather than failing open or closed
		log.Printf("[rules] reload failed, keeping previous rules: %v", err)
		return
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()

	log.Printf("[rules] reloaded %s: %d allow, %d deny", s.path, len(loaded.Allow), len(loaded.Deny))
}
