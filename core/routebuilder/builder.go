// Package routebuilder generates the CRUD router of an entity. Every enabled
// route runs as: before hooks, generic handler, after hooks, respond.
package routebuilder

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/artpar/crudkit/adapters/clock"
	"github.com/artpar/crudkit/adapters/hasher"
	"github.com/artpar/crudkit/domain/entity"
	"github.com/artpar/crudkit/domain/httperr"
	"github.com/artpar/crudkit/domain/model"
	"github.com/artpar/crudkit/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// MsgRouteNotFound answers requests no generated route matches.
const MsgRouteNotFound = "Route not found"

// Hook runs before or after the generic handler of a route. It continues the
// chain by calling next and stops it by writing a response or calling Fail.
type Hook func(next http.Handler) http.Handler

// Options configure a Builder.
type Options struct {
	Before map[entity.Route][]Hook
	After  map[entity.Route][]Hook

	// OnError writes failures. Defaults to a plain JSON envelope.
	OnError ErrorFunc

	Hasher ports.Hasher
	Clock  ports.Clock
	Logger zerolog.Logger
}

// RouteInfo describes one registered route.
type RouteInfo struct {
	Route   entity.Route
	Method  string
	Pattern string // absolute, e.g. /users/{id}
}

// Builder owns the generated router of one entity.
type Builder struct {
	desc   entity.Descriptor
	store  ports.DocumentStore
	opts   Options
	router chi.Router
	routes []RouteInfo
}

// New generates the router for desc.
func New(desc entity.Descriptor, store ports.DocumentStore, opts Options) *Builder {
	if opts.OnError == nil {
		opts.OnError = DefaultOnError
	}
	if opts.Hasher == nil {
		opts.Hasher = hasher.NewBcrypt(0)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	b := &Builder{
		desc:   desc,
		store:  store,
		opts:   opts,
		router: chi.NewRouter(),
	}

	notFound := func(w http.ResponseWriter, r *http.Request) {
		b.opts.OnError(w, r, httperr.NotFound(MsgRouteNotFound))
	}
	b.router.NotFound(notFound)
	b.router.MethodNotAllowed(notFound)

	for _, route := range desc.Types.Routes() {
		method, pattern := routePattern(route)
		b.router.Method(method, pattern, b.chain(route, b.operation(route)))
	}
	b.routes = Describe(desc)

	return b
}

// Describe lists the routes New registers for desc, without building them.
func Describe(desc entity.Descriptor) []RouteInfo {
	var out []RouteInfo
	for _, route := range desc.Types.Routes() {
		method, pattern := routePattern(route)
		abs := desc.Path
		if pattern != "/" {
			abs += pattern
		}
		out = append(out, RouteInfo{Route: route, Method: method, Pattern: abs})
	}
	return out
}

// routePattern returns the method and the pattern relative to the entity path.
func routePattern(route entity.Route) (string, string) {
	method := string(route.Verb)
	switch route {
	case entity.Route{Verb: entity.GET, Variant: entity.ALL},
		entity.Route{Verb: entity.POST, Variant: entity.ONE}:
		return method, "/"
	case entity.Route{Verb: entity.POST, Variant: entity.ONESOFT}:
		return method, "/draft"
	}
	if route.Variant == entity.ONESOFT {
		return method, "/{id}/draft"
	}
	return method, "/{id}"
}

func (b *Builder) operation(route entity.Route) operation {
	draft := route.Variant == entity.ONESOFT
	switch route.Verb {
	case entity.GET:
		if route.Variant == entity.ALL {
			return b.getAll
		}
		return b.getOne
	case entity.POST:
		return b.create(draft)
	case entity.PATCH:
		return b.update(false, draft)
	case entity.PUT:
		return b.update(true, draft)
	case entity.DELETE:
		return b.deleteOne
	}
	panic(fmt.Sprintf("routebuilder: no operation for %s", route))
}

// chain assembles before hooks → op → after hooks → respond, with panic
// recovery around the whole chain.
func (b *Builder) chain(route entity.Route, op operation) http.Handler {
	var h http.Handler = http.HandlerFunc(b.respond)
	after := b.opts.After[route]
	for i := len(after) - 1; i >= 0; i-- {
		h = after[i](h)
	}

	next := h
	h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := op(r)
		if err != nil {
			Fail(w, r, err)
			return
		}
		SetResult(r, result)
		next.ServeHTTP(w, r)
	})

	before := b.opts.Before[route]
	for i := len(before) - 1; i >= 0; i-- {
		h = before[i](h)
	}

	inner := h
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = withState(r, b.desc.Name, route, b.opts.OnError)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				if ww.Status() != 0 {
					// The response is already on the wire.
					b.opts.Logger.Error().
						Str("entity", b.desc.Name).
						Str("route", route.String()).
						Int("status", ww.Status()).
						Interface("panic", rec).
						Msg("handler panic after response written")
					return
				}
				b.opts.Logger.Error().
					Str("entity", b.desc.Name).
					Str("route", route.String()).
					Interface("panic", rec).
					Msg("handler panic")
				Fail(ww, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		inner.ServeHTTP(ww, r)
	})
}

// respond writes the result with the stored status and clears the slot.
// Without a result it answers 404.
func (b *Builder) respond(w http.ResponseWriter, r *http.Request) {
	result, ok := Result(r)
	if !ok {
		Fail(w, r, httperr.NotFound(MsgNoRecord))
		return
	}
	status := Status(r)
	ClearResult(r)
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// DefaultOnError writes the error envelope without logging.
func DefaultOnError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var he *httperr.Error
	if errors.As(err, &he) {
		status = he.Status
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

// Handler returns the entity router, relative to the entity path.
func (b *Builder) Handler() http.Handler {
	return b.router
}

// Register mounts the entity router at its path on r.
func (b *Builder) Register(r chi.Router) {
	r.Mount(b.desc.Path, b.router)
}

// Descriptor returns the entity descriptor.
func (b *Builder) Descriptor() entity.Descriptor {
	return b.desc
}

// Routes lists the registered routes in registration order.
func (b *Builder) Routes() []RouteInfo {
	return b.routes
}

func (b *Builder) model() *model.Model {
	return &b.desc.Model
}
