package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/artpar/crudkit/domain/entity"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to the entity definitions with hot
// reload support.
type Holder struct {
	mu       sync.RWMutex
	entities []entity.Descriptor
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func([]entity.Descriptor) error
	stopCh   chan struct{}
	stopOnce sync.Once
	reloadMu sync.Mutex
}

// LoadEntities reads and parses an entity definition file.
func LoadEntities(path string) ([]entity.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	return entity.Parse(data)
}

// NewHolder creates a holder and loads the initial definitions.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	entities, err := LoadEntities(path)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	return &Holder{
		entities: entities,
		path:     absPath,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Get returns the current definitions.
func (h *Holder) Get() []entity.Descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entities
}

// Path returns the absolute path of the definition file.
func (h *Holder) Path() string {
	return h.path
}

// Reload reads the definitions from disk and hands them to the change
// listeners. When parsing or a listener fails the old definitions stay.
func (h *Holder) Reload() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.logger.Info().Str("path", h.path).Msg("reloading entities")

	next, err := LoadEntities(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("entities reload failed, keeping old definitions")
		return fmt.Errorf("reload entities: %w", err)
	}

	h.mu.RLock()
	listeners := append([]func([]entity.Descriptor) error(nil), h.onChange...)
	h.mu.RUnlock()

	for _, fn := range listeners {
		if err := fn(next); err != nil {
			h.logger.Error().Err(err).Msg("entities rejected, keeping old definitions")
			return fmt.Errorf("apply entities: %w", err)
		}
	}

	h.mu.Lock()
	old := h.entities
	h.entities = next
	h.mu.Unlock()

	h.logChanges(old, next)
	h.logger.Info().Int("entities", len(next)).Msg("entities reloaded successfully")
	return nil
}

// OnChange registers a callback run with the new definitions on reload.
func (h *Holder) OnChange(fn func([]entity.Descriptor) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile starts watching the definition file for changes.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory (more reliable for editors that do atomic saves)
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Msg("watching entities file for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading entities")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload entities")
}

// Stop stops watching for file changes and signals. It is safe to call
// more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			// atomic save = create
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("entities file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, next []entity.Descriptor) {
	before := make(map[string]bool, len(old))
	for _, d := range old {
		before[d.Name] = true
	}
	for _, d := range next {
		if !before[d.Name] {
			h.logger.Info().Str("entity", d.Name).Str("path", d.Path).Msg("entity added")
		}
		delete(before, d.Name)
	}
	for name := range before {
		h.logger.Info().Str("entity", name).Msg("entity removed")
	}
}
