// Package model describes the data models exposed by generated routes:
// field schema, type casting, validation, projections and query filters.
//
// The package holds no I/O; stores and handlers call into it.
package model

import (
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Document is a schemaless record as read from or written to a store.
type Document = map[string]any

// System fields managed outside the declared schema.
const (
	IDField        = "_id"
	CreatedAtField = "createdAt"
	UpdatedAtField = "updatedAt"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s is safe to use as a collection or field name.
func IsIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// Model is the schema of one collection.
type Model struct {
	Collection string `yaml:"collection"`
	Timestamps bool   `yaml:"timestamps,omitempty"`
	Fields     Fields `yaml:"fields"`
}

// Init checks the schema and compiles field patterns. It must be called
// before the model is used.
func (m *Model) Init() error {
	if !IsIdentifier(m.Collection) {
		return fmt.Errorf("invalid collection name %q", m.Collection)
	}

	seen := make(map[string]bool, len(m.Fields))
	for i := range m.Fields {
		f := &m.Fields[i]
		if !IsIdentifier(f.Name) {
			return fmt.Errorf("invalid field name %q", f.Name)
		}
		if isSystemField(f.Name) {
			return fmt.Errorf("field %q is managed by the store", f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		if f.Type == "" {
			f.Type = TypeString
		}
		switch f.Type {
		case TypeString, TypeNumber, TypeInt, TypeBool, TypeDate,
			TypeEmail, TypeObject, TypeArray, TypePassword:
		default:
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}

		if len(f.Enum) > 0 && !f.IsTextual() {
			return fmt.Errorf("field %q: enum requires a string type", f.Name)
		}
		if (f.Min != nil || f.Max != nil) && !f.IsNumeric() {
			return fmt.Errorf("field %q: min/max require a numeric type", f.Name)
		}
		if (f.MinLength != nil || f.MaxLength != nil) && !f.IsTextual() {
			return fmt.Errorf("field %q: minLength/maxLength require a string type", f.Name)
		}
		if f.Match != "" {
			if !f.IsTextual() {
				return fmt.Errorf("field %q: match requires a string type", f.Name)
			}
			re, err := regexp.Compile(f.Match)
			if err != nil {
				return fmt.Errorf("field %q: match: %w", f.Name, err)
			}
			f.pattern = re
		}
		if f.Default != nil {
			v, err := castValue(*f, f.Default)
			if err != nil {
				return fmt.Errorf("field %q: default: %w", f.Name, err)
			}
			f.Default = v
		}
	}

	return nil
}

// Field looks up a field by name.
func (m Model) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// UniqueFields returns the names of fields with a unique constraint.
func (m Model) UniqueFields() []string {
	var names []string
	for _, f := range m.Fields {
		if f.Unique {
			names = append(names, f.Name)
		}
	}
	return names
}

// PasswordFields returns the names of fields hashed before storage.
func (m Model) PasswordFields() []string {
	var names []string
	for _, f := range m.Fields {
		if f.Type == TypePassword {
			names = append(names, f.Name)
		}
	}
	return names
}

// Sanitize returns a copy of doc holding only declared fields.
// Unknown and store-managed keys are dropped silently.
func (m Model) Sanitize(doc Document) Document {
	out := make(Document, len(doc))
	for _, f := range m.Fields {
		if v, ok := doc[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out
}

// ApplyDefaults sets declared defaults on absent fields.
func (m Model) ApplyDefaults(doc Document) {
	for _, f := range m.Fields {
		if f.Default == nil {
			continue
		}
		if _, ok := doc[f.Name]; !ok {
			doc[f.Name] = f.Default
		}
	}
}

// Cast converts every present value to its declared type in place.
// Values that cannot be converted are reported as a ValidationError.
func (m Model) Cast(doc Document) error {
	verr := &ValidationError{}
	for _, f := range m.Fields {
		v, ok := doc[f.Name]
		if !ok || v == nil {
			continue
		}
		cv, err := castValue(f, v)
		if err != nil {
			verr.Add(f.Name, "cast", err.Error())
			continue
		}
		doc[f.Name] = cv
	}
	return verr.OrNil()
}

// Validate checks constraints on a cast document. In partial mode only the
// fields present in doc are checked, as for merge updates.
func (m Model) Validate(doc Document, partial bool) error {
	verr := &ValidationError{}

	for _, f := range m.Fields {
		v, present := doc[f.Name]
		if !present && partial {
			continue
		}

		if isEmpty(v) {
			if f.Required {
				verr.Add(f.Name, "required", fmt.Sprintf("Path `%s` is required.", f.Name))
			}
			continue
		}

		m.checkConstraints(verr, f, v)
	}

	return verr.OrNil()
}

func (m Model) checkConstraints(verr *ValidationError, f Field, v any) {
	if s, ok := v.(string); ok {
		if len(f.Enum) > 0 && !slices.Contains(f.Enum, s) {
			verr.Add(f.Name, "enum", fmt.Sprintf("`%s` is not a valid enum value for path `%s`.", s, f.Name))
		}
		n := len([]rune(s))
		if f.MinLength != nil && n < *f.MinLength {
			verr.Add(f.Name, "minlength", fmt.Sprintf(
				"Path `%s` (`%s`, length %d) is shorter than the minimum allowed length (%d).",
				f.Name, redact(f, s), n, *f.MinLength))
		}
		if f.MaxLength != nil && n > *f.MaxLength {
			verr.Add(f.Name, "maxlength", fmt.Sprintf(
				"Path `%s` (`%s`, length %d) is longer than the maximum allowed length (%d).",
				f.Name, redact(f, s), n, *f.MaxLength))
		}
		if f.pattern != nil && !f.pattern.MatchString(s) {
			verr.Add(f.Name, "regexp", fmt.Sprintf("Path `%s` is invalid (%s).", f.Name, redact(f, s)))
		}
		if f.Type == TypeEmail {
			if addr, err := mail.ParseAddress(s); err != nil || addr.Address != s {
				verr.Add(f.Name, "email", fmt.Sprintf("Path `%s` is invalid (%s).", f.Name, s))
			}
		}
		return
	}

	if n, ok := toFloat(v); ok && f.IsNumeric() {
		if f.Min != nil && n < *f.Min {
			verr.Add(f.Name, "min", fmt.Sprintf(
				"Path `%s` (%s) is less than minimum allowed value (%s).", f.Name, fmtNum(n), fmtNum(*f.Min)))
		}
		if f.Max != nil && n > *f.Max {
			verr.Add(f.Name, "max", fmt.Sprintf(
				"Path `%s` (%s) is more than maximum allowed value (%s).", f.Name, fmtNum(n), fmtNum(*f.Max)))
		}
	}
}

// redact hides secret values from error messages.
func redact(f Field, s string) string {
	if f.Type == TypePassword {
		return strings.Repeat("*", len([]rune(s)))
	}
	return s
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func isSystemField(name string) bool {
	return name == IDField || name == CreatedAtField || name == UpdatedAtField
}

// castValue converts v to the Go representation of the field type.
func castValue(f Field, v any) (any, error) {
	fail := func() error {
		return &CastError{Kind: f.kind(), Value: v, Path: f.Name}
	}

	switch f.Type {
	case TypeString, TypeEmail, TypePassword:
		switch x := v.(type) {
		case string:
			if f.Type == TypeEmail {
				return strings.ToLower(strings.TrimSpace(x)), nil
			}
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int, int64:
			return fmt.Sprint(x), nil
		case bool:
			return strconv.FormatBool(x), nil
		}
		return nil, fail()

	case TypeNumber:
		if n, ok := toFloat(v); ok {
			return n, nil
		}
		if s, ok := v.(string); ok {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
				return n, nil
			}
		}
		return nil, fail()

	case TypeInt:
		if n, ok := toFloat(v); ok {
			if n == math.Trunc(n) && fitsInt64(n) {
				return int64(n), nil
			}
			return nil, fail()
		}
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return n, nil
			}
		}
		return nil, fail()

	case TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "1", "yes":
				return true, nil
			case "false", "0", "no":
				return false, nil
			}
		case float64:
			if x == 0 || x == 1 {
				return x == 1, nil
			}
		}
		return nil, fail()

	case TypeDate:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
				if t, err := time.Parse(layout, strings.TrimSpace(x)); err == nil {
					return t.UTC(), nil
				}
			}
		case float64:
			if fitsInt64(x) {
				return time.UnixMilli(int64(x)).UTC(), nil
			}
		case int64:
			return time.UnixMilli(x).UTC(), nil
		}
		return nil, fail()

	case TypeObject:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		return nil, fail()

	case TypeArray:
		if a, ok := v.([]any); ok {
			return a, nil
		}
		return nil, fail()
	}

	return v, nil
}

// fitsInt64 reports whether n converts to int64 without overflow.
// NaN and infinities do not fit.
func fitsInt64(n float64) bool {
	return n >= math.MinInt64 && n < math.MaxInt64
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func fmtNum(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
