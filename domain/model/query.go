package model

import (
	"net/url"
	"strings"

	"github.com/artpar/crudkit/domain/httperr"
)

// Reserved query parameters that never become filter terms.
const (
	ParamSelect = "select"
	ParamSort   = "sort"
	ParamSkip   = "skip"
	ParamLimit  = "limit"
)

var reservedParams = map[string]bool{
	ParamSelect: true,
	ParamSort:   true,
	ParamSkip:   true,
	ParamLimit:  true,
}

// CastFilter builds an equality filter from query parameters. Parameters that
// do not name a filterable field are ignored. The id is kept as a string;
// stores convert it to their native identifier type.
func (m Model) CastFilter(q url.Values) (Document, error) {
	filter := make(Document)
	for key, values := range q {
		if reservedParams[key] || len(values) == 0 {
			continue
		}
		raw := values[len(values)-1]

		if key == IDField {
			filter[IDField] = raw
			continue
		}

		f, ok := m.Field(key)
		if !ok || !f.Filterable() {
			continue
		}
		v, err := castValue(f, raw)
		if err != nil {
			return nil, err
		}
		filter[key] = v
	}
	return filter, nil
}

// Projection selects the fields returned for each document.
// At most one of Include and Exclude is non-empty.
type Projection struct {
	Include []string
	Exclude []string
}

// IsZero reports whether the projection keeps every visible field.
func (p Projection) IsZero() bool {
	return len(p.Include) == 0 && len(p.Exclude) == 0
}

// ParseProjection parses a select expression: field names separated by
// spaces or commas, each optionally prefixed with "-" to exclude it.
func ParseProjection(sel string) (Projection, error) {
	var p Projection
	for _, tok := range splitList(sel) {
		if name, ok := strings.CutPrefix(tok, "-"); ok {
			if name != "" {
				p.Exclude = append(p.Exclude, name)
			}
			continue
		}
		p.Include = append(p.Include, strings.TrimPrefix(tok, "+"))
	}

	// The id may be excluded from an inclusion projection.
	excl := 0
	for _, name := range p.Exclude {
		if name != IDField {
			excl++
		}
	}
	if len(p.Include) > 0 && excl > 0 {
		return Projection{}, httperr.BadRequest("Projection cannot have a mix of inclusion and exclusion.")
	}
	return p, nil
}

// Project returns the visible part of doc selected by p.
func (m Model) Project(doc Document, p Projection) Document {
	if doc == nil {
		return nil
	}

	out := make(Document, len(doc))
	if len(p.Include) > 0 {
		out[IDField] = doc[IDField]
		for _, name := range p.Include {
			if v, ok := doc[name]; ok {
				out[name] = v
			}
		}
	} else {
		for k, v := range doc {
			out[k] = v
		}
	}

	for _, name := range p.Exclude {
		delete(out, name)
	}
	if _, ok := out[IDField]; ok && out[IDField] == nil {
		delete(out, IDField)
	}
	for _, f := range m.Fields {
		if f.IsHidden() {
			delete(out, f.Name)
		}
	}
	return out
}

// SortField orders query results by one field.
type SortField struct {
	Name string
	Desc bool
}

// ParseSort parses a sort expression such as "-createdAt name". Names that
// are not sortable fields of the model are dropped.
func (m Model) ParseSort(expr string) []SortField {
	var out []SortField
	for _, tok := range splitList(expr) {
		desc := strings.HasPrefix(tok, "-")
		name := strings.TrimLeft(tok, "+-")
		if !m.sortable(name) {
			continue
		}
		out = append(out, SortField{Name: name, Desc: desc})
	}
	return out
}

func (m Model) sortable(name string) bool {
	if isSystemField(name) {
		return true
	}
	f, ok := m.Field(name)
	return ok && f.Filterable()
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
