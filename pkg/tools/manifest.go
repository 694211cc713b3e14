package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manifest is the on-disk tool pre-registration format: a JSON object
// mapping base tenant to that tenant's tool entries. Each entry carries
// an OpenAI-shaped definition and an optional dispatch endpoint.
type Manifest map[string][]Registered

// LoadManifest reads and applies a manifest file to the registry. Each
// named tenant's set is replaced wholesale.
func LoadManifest(path string, registry *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest %q: %w", path, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse manifest %q: %w", path, err)
	}

	for base, regs := range manifest {
		registry.Replace(base, regs)
	}
	return nil
}

// ManifestWatcher reloads the tool manifest into the registry whenever
// the file changes. Writes are debounced to avoid reload storms from
// editors that save in multiple operations.
type ManifestWatcher struct {
	path     string
	registry *Registry
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewManifestWatcher creates a watcher for the given manifest path.
func NewManifestWatcher(path string, registry *Registry) *ManifestWatcher {
	return &ManifestWatcher{
		path:     path,
		registry: registry,
		debounce: 100 * time.Millisecond,
		logger:   slog.Default().With("component", "tools.manifest"),
	}
}

// Watch loads the manifest once, then blocks reloading on change until
// the context is cancelled.
func (w *ManifestWatcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("manifest watcher already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := LoadManifest(w.path, w.registry); err != nil {
		return err
	}
	w.logger.Info("tool manifest loaded", "path", w.path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("watch manifest %q: %w", w.path, err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("manifest watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if err := LoadManifest(w.path, w.registry); err != nil {
					w.logger.Error("manifest reload failed", "error", err)
					return
				}
				w.logger.Info("tool manifest reloaded", "path", w.path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("manifest watcher error", "error", err)
		}
	}
}
