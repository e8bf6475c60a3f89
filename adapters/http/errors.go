// Package http provides the HTTP surface: the middleware chain, the terminal
// error handler and the service endpoints.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/artpar/crudkit/domain/httperr"
	"github.com/artpar/crudkit/domain/model"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Messages of the mapped store error shapes.
const (
	MsgResourceNotFound = "Resource not found"
	MsgDuplicateField   = "Duplicate field value entered"
	MsgServerError      = "Server Error"
)

// ErrorBody is the failure envelope.
type ErrorBody struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Data    map[string]any `json:"data,omitempty"`
}

// ErrorHandler translates errors into the failure envelope.
type ErrorHandler struct {
	logger     zerolog.Logger
	production bool
}

// NewErrorHandler creates an error handler. In production the text of
// unclassified errors is replaced by a generic message.
func NewErrorHandler(logger zerolog.Logger, production bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, production: production}
}

// Classify maps err to the HTTP exception sent to the client.
func (h *ErrorHandler) Classify(err error) *httperr.Error {
	var (
		he   *httperr.Error
		cast *model.CastError
		dup  *model.DuplicateKeyError
		verr *model.ValidationError
		mbe  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &he):
		return he
	case errors.As(err, &cast):
		return httperr.NotFound(MsgResourceNotFound)
	case errors.As(err, &dup):
		return httperr.BadRequest(MsgDuplicateField)
	case errors.As(err, &verr):
		fields := make(map[string]any, len(verr.Errors))
		for path, msg := range verr.Fields() {
			fields[path] = msg
		}
		return httperr.New(httperr.Options{
			Message: verr.Error(),
			Status:  http.StatusBadRequest,
			Data:    map[string]any{"fields": fields},
		})
	case errors.As(err, &mbe):
		return httperr.New(httperr.Options{Message: "Request body too large", Status: http.StatusRequestEntityTooLarge})
	}

	msg := err.Error()
	if h.production || msg == "" {
		msg = MsgServerError
	}
	return httperr.New(httperr.Options{Message: msg, Status: http.StatusInternalServerError})
}

// Handle writes the envelope for err and logs it. It has the signature of
// routebuilder.ErrorFunc.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	he := h.Classify(err)

	event := h.logger.Warn()
	if he.Status >= http.StatusInternalServerError {
		event = h.logger.Error()
	}
	event.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("status", he.Status).
		Msg("request failed")

	WriteError(w, he)
}

// WriteError writes he as the failure envelope.
func WriteError(w http.ResponseWriter, he *httperr.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(he.Status)
	json.NewEncoder(w).Encode(ErrorBody{
		Success: he.Success,
		Error:   he.Message,
		Data:    he.Data,
	})
}

// NotFound answers unmatched routes.
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Handle(w, r, httperr.NotFound("Route not found"))
}
