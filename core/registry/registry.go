// Package registry serves the generated routers of every entity and swaps
// them atomically when the entity definitions change.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/artpar/crudkit/core/routebuilder"
	"github.com/artpar/crudkit/domain/entity"
	"github.com/artpar/crudkit/domain/httperr"
	"github.com/artpar/crudkit/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ReloadRecorder observes entity loads.
type ReloadRecorder interface {
	RecordReload(entities int, err error)
}

// Options configure a Registry.
type Options struct {
	OnError routebuilder.ErrorFunc
	Hasher  ports.Hasher
	Clock   ports.Clock
	Logger  zerolog.Logger
	Metrics ReloadRecorder
}

// snapshot is one loaded entity set.
type snapshot struct {
	handler  http.Handler
	builders []*routebuilder.Builder
}

// Registry implements http.Handler over the active entity set.
type Registry struct {
	store ports.DocumentStore
	opts  Options

	mu    sync.RWMutex
	hooks map[string]routebuilder.Hook

	loadMu  sync.Mutex
	current atomic.Pointer[snapshot]
}

// New creates an empty registry. Until the first Load every request
// answers 404.
func New(store ports.DocumentStore, opts Options) *Registry {
	if opts.OnError == nil {
		opts.OnError = routebuilder.DefaultOnError
	}
	r := &Registry{
		store: store,
		opts:  opts,
		hooks: make(map[string]routebuilder.Hook),
	}
	r.current.Store(&snapshot{handler: r.newRouter()})
	return r
}

// RegisterHook makes a hook available to entity definitions under name.
func (r *Registry) RegisterHook(name string, h routebuilder.Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.hooks[name]; exists {
		return fmt.Errorf("hook %q already registered", name)
	}
	r.hooks[name] = h
	return nil
}

// Hooks returns the registered hook names, sorted.
func (r *Registry) Hooks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) resolve(names map[string][]string) (map[entity.Route][]routebuilder.Hook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[entity.Route][]routebuilder.Hook, len(names))
	for key, list := range names {
		route, err := entity.ParseRoute(key)
		if err != nil {
			return nil, err
		}
		for _, name := range list {
			h, ok := r.hooks[name]
			if !ok {
				return nil, fmt.Errorf("%s: unknown hook %q", key, name)
			}
			out[route] = append(out[route], h)
		}
	}
	return out, nil
}

// Load prepares the collections of descs and serves their routes. On
// failure the previously loaded routes stay active.
func (r *Registry) Load(ctx context.Context, descs []entity.Descriptor) (err error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	defer func() {
		if r.opts.Metrics != nil {
			r.opts.Metrics.RecordReload(len(r.current.Load().builders), err)
		}
	}()

	builders := make([]*routebuilder.Builder, 0, len(descs))
	for _, d := range descs {
		before, err := r.resolve(d.Hooks.Before)
		if err != nil {
			return fmt.Errorf("entity %s: before hooks: %w", d.Name, err)
		}
		after, err := r.resolve(d.Hooks.After)
		if err != nil {
			return fmt.Errorf("entity %s: after hooks: %w", d.Name, err)
		}

		if err := r.store.EnsureCollection(ctx, d.Model); err != nil {
			return fmt.Errorf("entity %s: %w", d.Name, err)
		}

		builders = append(builders, routebuilder.New(d, r.store, routebuilder.Options{
			Before:  before,
			After:   after,
			OnError: r.opts.OnError,
			Hasher:  r.opts.Hasher,
			Clock:   r.opts.Clock,
			Logger:  r.opts.Logger,
		}))
	}

	router := r.newRouter()
	for _, b := range builders {
		b.Register(router)
	}

	r.current.Store(&snapshot{handler: router, builders: builders})

	r.opts.Logger.Info().Int("entities", len(builders)).Msg("entities loaded")
	for _, b := range builders {
		for _, ri := range b.Routes() {
			r.opts.Logger.Debug().
				Str("entity", b.Descriptor().Name).
				Str("route", ri.Route.String()).
				Str("method", ri.Method).
				Str("pattern", ri.Pattern).
				Msg("route registered")
		}
	}
	return nil
}

func (r *Registry) newRouter() chi.Router {
	router := chi.NewRouter()
	notFound := func(w http.ResponseWriter, req *http.Request) {
		r.opts.OnError(w, req, httperr.NotFound(routebuilder.MsgRouteNotFound))
	}
	router.NotFound(notFound)
	router.MethodNotAllowed(notFound)
	return router
}

// ServeHTTP dispatches to the active entity routers.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.current.Load().handler.ServeHTTP(w, req)
}

// Descriptors returns the active entity descriptors.
func (r *Registry) Descriptors() []entity.Descriptor {
	builders := r.current.Load().builders
	out := make([]entity.Descriptor, len(builders))
	for i, b := range builders {
		out[i] = b.Descriptor()
	}
	return out
}

// Routes returns every active route.
func (r *Registry) Routes() []routebuilder.RouteInfo {
	var out []routebuilder.RouteInfo
	for _, b := range r.current.Load().builders {
		out = append(out, b.Routes()...)
	}
	return out
}
