package bootstrap

import (
	"mime"
	"net/http"

	"github.com/artpar/crudkit/core/events"
	"github.com/artpar/crudkit/core/routebuilder"
	"github.com/artpar/crudkit/core/storage"
	"github.com/artpar/crudkit/domain/entity"
	"github.com/artpar/crudkit/domain/httperr"
	"github.com/artpar/crudkit/domain/model"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Hook names usable in the entities file.
const (
	HookCreated     = "created"
	HookEnvelope    = "envelope"
	HookRequireJSON = "require_json"
	HookNoStore     = "no_store"
	HookAudit       = "audit"
	HookEmit        = "emit"
)

// BuiltinHooks returns the hooks every app registers. The emit hook
// publishes on bus.
func BuiltinHooks(logger zerolog.Logger, bus *events.Bus) map[string]routebuilder.Hook {
	return map[string]routebuilder.Hook{
		HookCreated:     created,
		HookEnvelope:    envelope,
		HookRequireJSON: requireJSON,
		HookNoStore:     noStore,
		HookAudit:       audit(logger),
		HookEmit:        emit(bus),
	}
}

// created answers 201 instead of 200.
func created(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		routebuilder.SetStatus(r, http.StatusCreated)
		next.ServeHTTP(w, r)
	})
}

// envelope wraps the result as {"success": true, "data": ...}.
func envelope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if data, ok := routebuilder.Result(r); ok {
			routebuilder.SetResult(r, map[string]any{"success": true, "data": data})
		}
		next.ServeHTTP(w, r)
	})
}

// requireJSON rejects write requests whose body is not JSON.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				routebuilder.Fail(w, r, httperr.UnsupportedMediaType("Content-Type must be application/json"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// noStore disables response caching.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// audit logs the document id, or the document count, a route returns.
func audit(logger zerolog.Logger) routebuilder.Hook {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if data, ok := routebuilder.Result(r); ok {
				event := logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", middleware.GetReqID(r.Context()))
				switch v := data.(type) {
				case model.Document:
					event = event.Interface("id", v[model.IDField])
				case []model.Document:
					event = event.Int("count", len(v))
				}
				event.Msg("audit")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// emit publishes "<entity>.<action>" for the route result. It runs after
// the generic handler; handlers are called asynchronously.
func emit(bus *events.Bus) routebuilder.Hook {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, route, ok := routebuilder.Route(r)
			data, has := routebuilder.Result(r)
			if ok && has {
				action := actionOf(route.Verb)
				event := events.Event{
					Name:      events.Name(name, action),
					Entity:    name,
					Action:    action,
					Route:     route.String(),
					RequestID: middleware.GetReqID(r.Context()),
				}
				if doc, ok := data.(model.Document); ok {
					event.Document = storage.Clone(doc)
				}
				bus.PublishAsync(r.Context(), event)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actionOf(verb entity.Verb) string {
	switch verb {
	case entity.POST:
		return events.ActionCreated
	case entity.PUT, entity.PATCH:
		return events.ActionUpdated
	case entity.DELETE:
		return events.ActionDeleted
	}
	return events.ActionRead
}
