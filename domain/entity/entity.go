// Package entity defines entity descriptors: which model an entity exposes,
// under which path, and which HTTP verb variants are generated for it.
package entity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/crudkit/domain/model"
	"gopkg.in/yaml.v3"
)

// Verb is an HTTP method a generated route may answer.
type Verb string

const (
	GET    Verb = "GET"
	POST   Verb = "POST"
	PATCH  Verb = "PATCH"
	PUT    Verb = "PUT"
	DELETE Verb = "DELETE"
)

// Verbs lists every verb in registration order.
var Verbs = []Verb{GET, POST, PATCH, PUT, DELETE}

// Variant selects one route shape of a verb.
type Variant string

const (
	// ONE addresses a single document (or the collection for POST).
	ONE Variant = "ONE"
	// ALL addresses the whole collection. GET only.
	ALL Variant = "ALL"
	// ONESOFT is the draft variant of a write. Not valid for GET or DELETE.
	ONESOFT Variant = "ONESOFT"
)

// Allowed returns the variants a verb accepts.
func (v Verb) Allowed() []Variant {
	switch v {
	case GET:
		return []Variant{ONE, ALL}
	case POST, PATCH, PUT:
		return []Variant{ONE, ONESOFT}
	case DELETE:
		return []Variant{ONE}
	}
	return nil
}

func (v Verb) allows(variant Variant) bool {
	for _, a := range v.Allowed() {
		if a == variant {
			return true
		}
	}
	return false
}

// Route identifies one generated route, written "VERB.VARIANT".
type Route struct {
	Verb    Verb
	Variant Variant
}

func (r Route) String() string {
	return string(r.Verb) + "." + string(r.Variant)
}

// ParseRoute parses a route key such as "POST.ONESOFT".
func ParseRoute(s string) (Route, error) {
	verb, variant, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(s)), ".")
	if !ok {
		return Route{}, fmt.Errorf("invalid route key %q: want VERB.VARIANT", s)
	}
	r := Route{Verb: Verb(verb), Variant: Variant(variant)}
	if r.Verb.Allowed() == nil {
		return Route{}, fmt.Errorf("invalid route key %q: unknown verb %q", s, verb)
	}
	if !r.Verb.allows(r.Variant) {
		return Route{}, fmt.Errorf("invalid route key %q: %s does not support %s", s, verb, variant)
	}
	return r, nil
}

// Variants is the enabled flag of each variant of one verb.
type Variants map[Variant]bool

// Types is the full, normalized map of enabled verb variants.
type Types map[Verb]Variants

// Enabled reports whether a route is enabled.
func (t Types) Enabled(r Route) bool {
	return t[r.Verb][r.Variant]
}

// Routes returns every enabled route in registration order.
func (t Types) Routes() []Route {
	var out []Route
	for _, verb := range Verbs {
		for _, variant := range verb.Allowed() {
			r := Route{Verb: verb, Variant: variant}
			if t.Enabled(r) {
				out = append(out, r)
			}
		}
	}
	return out
}

// Shorthand expands a boolean flag to the variant map of a verb:
// GET → ONE and ALL, POST/PATCH/PUT → ONE and ONESOFT, DELETE → ONE.
func Shorthand(verb Verb, enabled bool) Variants {
	out := make(Variants)
	for _, variant := range verb.Allowed() {
		out[variant] = enabled
	}
	return out
}

// ParseTypes normalizes a raw types map. Each value is either a bool
// (shorthand) or a map of variant name to bool.
func ParseTypes(raw map[string]any) (Types, error) {
	types := make(Types, len(raw))

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		verb := Verb(strings.ToUpper(key))
		if verb.Allowed() == nil {
			return nil, fmt.Errorf("unknown verb %q", key)
		}

		switch val := raw[key].(type) {
		case bool:
			types[verb] = Shorthand(verb, val)
		case map[string]any:
			variants := make(Variants, len(val))
			for name, flag := range val {
				variant := Variant(strings.ToUpper(name))
				if !verb.allows(variant) {
					return nil, fmt.Errorf("%s does not support variant %q", verb, name)
				}
				b, ok := flag.(bool)
				if !ok {
					return nil, fmt.Errorf("%s.%s: flag must be a boolean, got %T", verb, variant, flag)
				}
				variants[variant] = b
			}
			types[verb] = variants
		case map[string]bool:
			variants := make(Variants, len(val))
			for name, b := range val {
				variant := Variant(strings.ToUpper(name))
				if !verb.allows(variant) {
					return nil, fmt.Errorf("%s does not support variant %q", verb, name)
				}
				variants[variant] = b
			}
			types[verb] = variants
		case nil:
			types[verb] = Shorthand(verb, false)
		default:
			return nil, fmt.Errorf("%s: expected bool or variant map, got %T", verb, val)
		}
	}

	return types, nil
}

// UnmarshalYAML accepts the shorthand and full forms.
func (t *Types) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	types, err := ParseTypes(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = types
	return nil
}

// Hooks names the hooks run around each route, keyed by route key.
type Hooks struct {
	Before map[string][]string `yaml:"before,omitempty"`
	After  map[string][]string `yaml:"after,omitempty"`
}

// Descriptor declares how a data model is exposed over HTTP.
type Descriptor struct {
	Name  string      `yaml:"name"`
	Path  string      `yaml:"path"`
	Model model.Model `yaml:"model"`
	Types Types       `yaml:"types"`
	Hooks Hooks       `yaml:"hooks,omitempty"`
}

// Init normalizes and checks the descriptor and its model.
func (d *Descriptor) Init() error {
	if d.Name == "" {
		d.Name = d.Model.Collection
	}
	if d.Name == "" {
		return fmt.Errorf("entity needs a name or a model collection")
	}

	if d.Model.Collection == "" {
		d.Model.Collection = d.Name
	}
	if err := d.Model.Init(); err != nil {
		return fmt.Errorf("entity %s: %w", d.Name, err)
	}

	if d.Path == "" {
		d.Path = d.Model.Collection
	}
	d.Path = NormalizePath(d.Path)
	if d.Path == "/" {
		return fmt.Errorf("entity %s: path must not be the root", d.Name)
	}
	if strings.ContainsAny(d.Path, "{}*") {
		return fmt.Errorf("entity %s: path %q must be static", d.Name, d.Path)
	}

	if d.Types == nil {
		d.Types = Types{}
	}

	for _, m := range []map[string][]string{d.Hooks.Before, d.Hooks.After} {
		for key := range m {
			if _, err := ParseRoute(key); err != nil {
				return fmt.Errorf("entity %s: hooks: %w", d.Name, err)
			}
		}
	}

	return nil
}

// NormalizePath returns p with a single leading slash and no trailing slash.
func NormalizePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}

// File is the layout of an entity definition file.
type File struct {
	Entities []Descriptor `yaml:"entities"`
}

// Parse decodes and initializes the descriptors of an entity definition file.
func Parse(data []byte) ([]Descriptor, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse entities: %w", err)
	}

	paths := make(map[string]string, len(f.Entities))
	names := make(map[string]bool, len(f.Entities))
	for i := range f.Entities {
		d := &f.Entities[i]
		if err := d.Init(); err != nil {
			return nil, err
		}
		if names[d.Name] {
			return nil, fmt.Errorf("duplicate entity %q", d.Name)
		}
		names[d.Name] = true
		if other, ok := paths[d.Path]; ok {
			return nil, fmt.Errorf("entities %s and %s share path %s", other, d.Name, d.Path)
		}
		paths[d.Path] = d.Name
	}

	return f.Entities, nil
}
