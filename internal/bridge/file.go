package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"mapkeep/internal/logging"
)

// FileResponder answers settings requests from a YAML file and reloads the
// file when it changes on disk.
type FileResponder struct {
	mu          sync.RWMutex
	path        string
	current     Settings
	watcher     *fsnotify.Watcher
	pending     time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	reloads     int
	onChange    func(Settings)
}

// NewFileResponder loads path. A missing file yields Defaults.
func NewFileResponder(path string) (*FileResponder, error) {
	fr := &FileResponder{
		path:        path,
		current:     Defaults(),
		debounceDur: 200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	if err := fr.reload(); err != nil {
		return nil, err
	}
	return fr, nil
}

// LoadSettings reads a settings file. Fields absent from the file keep
// their defaults.
func LoadSettings(path string) (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Defaults(), fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

// SaveSettings writes s to path.
func SaveSettings(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// OnChange registers fn to run after every successful reload.
func (fr *FileResponder) OnChange(fn func(Settings)) {
	fr.mu.Lock()
	fr.onChange = fn
	fr.mu.Unlock()
}

// RespondSettings implements Responder.
func (fr *FileResponder) RespondSettings(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return Response{ID: req.ID, Settings: fr.Current()}, nil
}

// Current returns the last loaded settings.
func (fr *FileResponder) Current() Settings {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	return fr.current
}

// Reloads returns how many times the file was reloaded after Start.
func (fr *FileResponder) Reloads() int {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	return fr.reloads
}

func (fr *FileResponder) reload() error {
	s, err := LoadSettings(fr.path)
	if err != nil {
		return err
	}
	fr.mu.Lock()
	fr.current = s
	fn := fr.onChange
	fr.mu.Unlock()
	if fn != nil {
		fn(s)
	}
	return nil
}

// Start watches the settings file's directory. It does not block.
func (fr *FileResponder) Start(ctx context.Context) error {
	fr.mu.Lock()
	if fr.running {
		fr.mu.Unlock()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		fr.mu.Unlock()
		return err
	}
	dir := filepath.Dir(fr.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.BridgeWarn("Settings watcher: failed to create %s: %v", dir, err)
	}
	// Editors replace files by rename, so the directory is watched.
	if err := w.Add(dir); err != nil {
		w.Close()
		fr.mu.Unlock()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	fr.watcher = w
	fr.stopCh = make(chan struct{})
	fr.doneCh = make(chan struct{})
	fr.running = true
	fr.mu.Unlock()

	logging.Bridge("Settings watcher: watching %s", fr.path)
	go fr.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (fr *FileResponder) Stop() {
	fr.mu.Lock()
	if !fr.running {
		fr.mu.Unlock()
		return
	}
	fr.running = false
	fr.mu.Unlock()

	close(fr.stopCh)
	<-fr.doneCh

	if err := fr.watcher.Close(); err != nil {
		logging.Get(logging.CategoryBridge).Error("Settings watcher: error closing watcher: %v", err)
	}
	logging.Bridge("Settings watcher: stopped")
}

func (fr *FileResponder) run(ctx context.Context) {
	defer close(fr.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fr.stopCh:
			return
		case event, ok := <-fr.watcher.Events:
			if !ok {
				return
			}
			fr.handleEvent(event)
		case err, ok := <-fr.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBridge).Error("Settings watcher error: %v", err)
		case <-ticker.C:
			fr.processDebounced()
		}
	}
}

func (fr *FileResponder) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(fr.path) {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	fr.mu.Lock()
	fr.pending = time.Now()
	fr.mu.Unlock()
}

func (fr *FileResponder) processDebounced() {
	fr.mu.Lock()
	if fr.pending.IsZero() || time.Since(fr.pending) < fr.debounceDur {
		fr.mu.Unlock()
		return
	}
	fr.pending = time.Time{}
	fr.mu.Unlock()

	if err := fr.reload(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.BridgeWarn("Settings watcher: keeping previous settings: %v", err)
		}
		return
	}
	fr.mu.Lock()
	fr.reloads++
	fr.mu.Unlock()
	logging.Bridge("Settings reloaded from %s", fr.path)
}
