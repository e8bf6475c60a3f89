package routebuilder

import (
	"context"
	"net/http"

	"github.com/artpar/crudkit/domain/entity"
)

// ErrorFunc writes the response for a failed request.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// state is the result slot shared by every step of one route chain.
type state struct {
	entity  string
	route   entity.Route
	data    any
	set     bool
	status  int
	onError ErrorFunc
}

type stateKey struct{}

func withState(r *http.Request, name string, route entity.Route, onError ErrorFunc) *http.Request {
	st := &state{entity: name, route: route, status: http.StatusOK, onError: onError}
	return r.WithContext(context.WithValue(r.Context(), stateKey{}, st))
}

func stateOf(r *http.Request) *state {
	st, _ := r.Context().Value(stateKey{}).(*state)
	return st
}

// Route returns the entity name and route the chain serving r belongs to.
func Route(r *http.Request) (string, entity.Route, bool) {
	st := stateOf(r)
	if st == nil {
		return "", entity.Route{}, false
	}
	return st.entity, st.route, true
}

// Result returns the value produced by the generic handler, or the value a
// hook replaced it with.
func Result(r *http.Request) (any, bool) {
	st := stateOf(r)
	if st == nil {
		return nil, false
	}
	return st.data, st.set
}

// SetResult replaces the value the respond step writes.
func SetResult(r *http.Request, v any) {
	if st := stateOf(r); st != nil {
		st.data = v
		st.set = true
	}
}

// ClearResult empties the result slot; respond then answers 404.
func ClearResult(r *http.Request) {
	if st := stateOf(r); st != nil {
		st.data = nil
		st.set = false
	}
}

// Status returns the response status the respond step will use.
func Status(r *http.Request) int {
	if st := stateOf(r); st != nil {
		return st.status
	}
	return http.StatusOK
}

// SetStatus sets the response status of a successful result.
func SetStatus(r *http.Request, status int) {
	if st := stateOf(r); st != nil {
		st.status = status
	}
}

// Fail forwards err to the route's error handler. Hooks call it instead of
// calling the next handler.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	if st := stateOf(r); st != nil && st.onError != nil {
		st.onError(w, r, err)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
