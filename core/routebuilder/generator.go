package routebuilder

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/artpar/crudkit/adapters/hasher"
	"github.com/artpar/crudkit/domain/httperr"
	"github.com/artpar/crudkit/domain/model"
	"github.com/artpar/crudkit/ports"
	"github.com/go-chi/chi/v5"
)

// Messages of the not-found failures.
const (
	MsgNoRecord   = "No Record Found"
	MsgNoDocument = "No Document Found With given Id"
)

// operation is a generic handler: it produces the route result or fails.
type operation func(r *http.Request) (any, error)

func (b *Builder) getOne(r *http.Request) (any, error) {
	proj, err := model.ParseProjection(r.URL.Query().Get(model.ParamSelect))
	if err != nil {
		return nil, err
	}

	doc, err := b.store.FindByID(r.Context(), b.model().Collection, chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, httperr.NotFound(MsgNoRecord)
	}
	return b.model().Project(doc, proj), nil
}

func (b *Builder) getAll(r *http.Request) (any, error) {
	m := b.model()
	q := r.URL.Query()

	filter, err := m.CastFilter(q)
	if err != nil {
		return nil, err
	}
	proj, err := model.ParseProjection(q.Get(model.ParamSelect))
	if err != nil {
		return nil, err
	}
	skip, err := parseCount(q, model.ParamSkip)
	if err != nil {
		return nil, err
	}
	limit, err := parseCount(q, model.ParamLimit)
	if err != nil {
		return nil, err
	}

	docs, err := b.store.Find(r.Context(), m.Collection, ports.Query{
		Filter: filter,
		Sort:   m.ParseSort(q.Get(model.ParamSort)),
		Skip:   skip,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, m.Project(doc, proj))
	}
	return out, nil
}

// parseCount reads a non-negative integer parameter; absent means zero.
func parseCount(q map[string][]string, name string) (int64, error) {
	values := q[name]
	if len(values) == 0 || values[len(values)-1] == "" {
		return 0, nil
	}
	raw := values[len(values)-1]
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, httperr.BadRequestf("Invalid %s value %q", name, raw)
	}
	return n, nil
}

func (b *Builder) create(draft bool) operation {
	return func(r *http.Request) (any, error) {
		m := b.model()
		body, err := decodeBody(r)
		if err != nil {
			return nil, err
		}

		doc := m.Sanitize(body)
		m.ApplyDefaults(doc)
		if err := b.prepare(doc, draft, false); err != nil {
			return nil, err
		}
		if m.Timestamps {
			now := b.opts.Clock.Now()
			doc[model.CreatedAtField] = now
			doc[model.UpdatedAtField] = now
		}

		created, err := b.store.Insert(r.Context(), m.Collection, doc)
		if err != nil {
			return nil, err
		}
		return m.Project(created, model.Projection{}), nil
	}
}

func (b *Builder) update(replace, draft bool) operation {
	return func(r *http.Request) (any, error) {
		m := b.model()
		body, err := decodeBody(r)
		if err != nil {
			return nil, err
		}

		doc := m.Sanitize(body)
		if replace {
			m.ApplyDefaults(doc)
		}
		if err := b.prepare(doc, draft, !replace); err != nil {
			return nil, err
		}
		if m.Timestamps {
			doc[model.UpdatedAtField] = b.opts.Clock.Now()
		}

		updated, err := b.store.UpdateByID(r.Context(), m.Collection, chi.URLParam(r, "id"), doc, replace)
		if err != nil {
			return nil, err
		}
		if updated == nil {
			return nil, httperr.NotFound(MsgNoDocument)
		}
		return m.Project(updated, model.Projection{}), nil
	}
}

func (b *Builder) deleteOne(r *http.Request) (any, error) {
	deleted, err := b.store.DeleteByID(r.Context(), b.model().Collection, chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		return nil, httperr.NotFound(MsgNoDocument)
	}
	return b.model().Project(deleted, model.Projection{}), nil
}

// prepare casts doc, validates it unless draft, and hashes password fields.
func (b *Builder) prepare(doc model.Document, draft, partial bool) error {
	m := b.model()
	if err := m.Cast(doc); err != nil {
		return err
	}
	if !draft {
		if err := m.Validate(doc, partial); err != nil {
			return err
		}
	}
	return hasher.HashFields(b.opts.Hasher, doc, m.PasswordFields())
}

// decodeBody reads a JSON object or a urlencoded form. An empty body is an
// empty document.
func decodeBody(r *http.Request) (model.Document, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, httperr.BadRequest("Invalid form body")
		}
		doc := make(model.Document, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				doc[k] = v[len(v)-1]
			}
		}
		return doc, nil
	}

	if r.Body == nil {
		return model.Document{}, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, httperr.New(httperr.Options{
				Message: "Request body too large",
				Status:  http.StatusRequestEntityTooLarge,
			})
		}
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return model.Document{}, nil
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return nil, httperr.BadRequest("Invalid JSON body")
	}
	return doc, nil
}
