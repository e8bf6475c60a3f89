// Package openapi generates OpenAPI 3.0 specifications from entity
// descriptors: one path item per generated route, schemas from model fields.
package openapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/artpar/crudkit/core/routebuilder"
	"github.com/artpar/crudkit/domain/entity"
	"github.com/artpar/crudkit/domain/model"
)

// Spec represents an OpenAPI 3.0 specification.
type Spec struct {
	OpenAPI    string              `json:"openapi"`
	Info       Info                `json:"info"`
	Servers    []Server            `json:"servers,omitempty"`
	Paths      map[string]PathItem `json:"paths"`
	Components Components          `json:"components"`
	Tags       []Tag               `json:"tags,omitempty"`
}

// Info provides API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server represents a server URL.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem contains operations for a path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Put    *Operation `json:"put,omitempty"`
	Patch  *Operation `json:"patch,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
}

// Operation represents an API operation.
type Operation struct {
	Tags        []string            `json:"tags,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	Description string              `json:"description,omitempty"`
	OperationID string              `json:"operationId,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses"`
}

// Parameter represents an API parameter.
type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"` // path, query
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

// RequestBody represents a request body.
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content"`
}

// Response represents an API response.
type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType represents a media type.
type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// Schema represents a JSON Schema.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Format      string             `json:"format,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Ref         string             `json:"$ref,omitempty"`
	MinLength   *int               `json:"minLength,omitempty"`
	MaxLength   *int               `json:"maxLength,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
	Pattern     string             `json:"pattern,omitempty"`
	Default     any                `json:"default,omitempty"`
	ReadOnly    bool               `json:"readOnly,omitempty"`
	WriteOnly   bool               `json:"writeOnly,omitempty"`
}

// Components contains reusable schemas.
type Components struct {
	Schemas map[string]*Schema `json:"schemas,omitempty"`
}

// Tag provides metadata for a group of operations.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ErrorSchema is the failure envelope shared by every route.
const ErrorSchema = "Error"

// Generator generates OpenAPI specs from entity descriptors.
type Generator struct {
	info    Info
	servers []Server
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator() *Generator {
	return &Generator{
		info: Info{
			Title:       "crudkit API",
			Version:     "1.0.0",
			Description: "Generated from the entity definitions",
		},
	}
}

// SetInfo sets the API info.
func (g *Generator) SetInfo(info Info) {
	g.info = info
}

// AddServer adds a server URL.
func (g *Generator) AddServer(url, description string) {
	g.servers = append(g.servers, Server{URL: url, Description: description})
}

// Generate creates the specification for descs, in their order.
func (g *Generator) Generate(descs []entity.Descriptor) *Spec {
	spec := &Spec{
		OpenAPI: "3.0.3",
		Info:    g.info,
		Servers: g.servers,
		Paths:   make(map[string]PathItem),
		Components: Components{
			Schemas: map[string]*Schema{
				ErrorSchema: {
					Type: "object",
					Properties: map[string]*Schema{
						"success": {Type: "boolean", Default: false},
						"error":   {Type: "string"},
						"data":    {Type: "object"},
					},
					Required: []string{"success", "error"},
				},
			},
		},
		Tags: make([]Tag, 0, len(descs)),
	}

	for _, d := range descs {
		g.generateEntity(spec, d)
	}
	return spec
}

func (g *Generator) generateEntity(spec *Spec, d entity.Descriptor) {
	title := schemaName(d.Name)

	spec.Tags = append(spec.Tags, Tag{
		Name:        d.Name,
		Description: fmt.Sprintf("Collection %s at %s", d.Model.Collection, d.Path),
	})

	spec.Components.Schemas[title] = buildResponseSchema(d.Model)
	spec.Components.Schemas[title+"Input"] = buildInputSchema(d.Model)

	for _, ri := range routebuilder.Describe(d) {
		op := g.operation(d, ri, title)
		item := spec.Paths[ri.Pattern]
		switch ri.Route.Verb {
		case entity.GET:
			item.Get = op
		case entity.POST:
			item.Post = op
		case entity.PATCH:
			item.Patch = op
		case entity.PUT:
			item.Put = op
		case entity.DELETE:
			item.Delete = op
		}
		spec.Paths[ri.Pattern] = item
	}
}

func (g *Generator) operation(d entity.Descriptor, ri routebuilder.RouteInfo, title string) *Operation {
	ref := &Schema{Ref: "#/components/schemas/" + title}
	one := map[string]MediaType{"application/json": {Schema: ref}}
	input := &RequestBody{
		Required: true,
		Content: map[string]MediaType{
			"application/json":                  {Schema: &Schema{Ref: "#/components/schemas/" + title + "Input"}},
			"application/x-www-form-urlencoded": {Schema: &Schema{Ref: "#/components/schemas/" + title + "Input"}},
		},
	}

	op := &Operation{
		Tags:        []string{d.Name},
		OperationID: operationID(ri.Route, title),
		Responses: map[string]Response{
			"500": errorResponse("Internal server error"),
		},
	}
	if strings.Contains(ri.Pattern, "{id}") {
		op.Parameters = append(op.Parameters, Parameter{
			Name: "id", In: "path", Required: true, Description: "Document id", Schema: &Schema{Type: "string"},
		})
		op.Responses["404"] = errorResponse("No document with this id, or a malformed id")
	}

	draft := ri.Route.Variant == entity.ONESOFT
	switch ri.Route.Verb {
	case entity.GET:
		if ri.Route.Variant == entity.ALL {
			op.Summary = fmt.Sprintf("List %s", d.Name)
			op.Parameters = listParameters(d.Model)
			op.Responses["200"] = Response{
				Description: "Matching documents",
				Content: map[string]MediaType{
					"application/json": {Schema: &Schema{Type: "array", Items: ref}},
				},
			}
			op.Responses["400"] = errorResponse("Invalid projection or paging")
			op.Responses["404"] = errorResponse("A filter value could not be cast")
		} else {
			op.Summary = fmt.Sprintf("Get %s by id", d.Name)
			op.Parameters = append(op.Parameters, selectParameter())
			op.Responses["200"] = Response{Description: "The document", Content: one}
		}
	case entity.POST:
		op.Summary = fmt.Sprintf("Create %s", d.Name)
		op.RequestBody = input
		op.Responses["200"] = Response{Description: "The created document", Content: one}
		op.Responses["400"] = errorResponse("Validation failed or duplicate field value")
	case entity.PATCH:
		op.Summary = fmt.Sprintf("Update %s", d.Name)
		op.RequestBody = input
		op.Responses["200"] = Response{Description: "The updated document", Content: one}
		op.Responses["400"] = errorResponse("Validation failed or duplicate field value")
	case entity.PUT:
		op.Summary = fmt.Sprintf("Replace %s", d.Name)
		op.RequestBody = input
		op.Responses["200"] = Response{Description: "The replaced document", Content: one}
		op.Responses["400"] = errorResponse("Validation failed or duplicate field value")
	case entity.DELETE:
		op.Summary = fmt.Sprintf("Delete %s", d.Name)
		op.Responses["200"] = Response{Description: "The deleted document", Content: one}
	}

	if draft {
		op.Summary += " (draft)"
		op.Description = "Values are cast to the field types; required fields and constraints are not checked."
	}
	return op
}

func errorResponse(desc string) Response {
	return Response{
		Description: desc,
		Content: map[string]MediaType{
			"application/json": {Schema: &Schema{Ref: "#/components/schemas/" + ErrorSchema}},
		},
	}
}

func selectParameter() Parameter {
	return Parameter{
		Name:        "select",
		In:          "query",
		Description: `Fields to include ("a b") or exclude ("-a")`,
		Schema:      &Schema{Type: "string"},
	}
}

func listParameters(m model.Model) []Parameter {
	var sortable []string
	params := []Parameter{selectParameter()}
	for _, f := range m.Fields {
		if !f.Filterable() {
			continue
		}
		sortable = append(sortable, f.Name)
		s := fieldSchema(f)
		s.Default = nil
		params = append(params, Parameter{
			Name:        f.Name,
			In:          "query",
			Description: fmt.Sprintf("Filter by %s (equality)", f.Name),
			Schema:      s,
		})
	}

	sortDesc := "Sort fields, prefix with - for descending"
	if len(sortable) > 0 {
		sortDesc += ". Sortable fields: " + strings.Join(sortable, ", ")
	}
	return append(params,
		Parameter{Name: "sort", In: "query", Description: sortDesc, Schema: &Schema{Type: "string"}},
		Parameter{Name: "skip", In: "query", Description: "Number of documents to skip", Schema: &Schema{Type: "integer", Default: 0}},
		Parameter{Name: "limit", In: "query", Description: "Maximum number of documents", Schema: &Schema{Type: "integer"}},
	)
}

func buildResponseSchema(m model.Model) *Schema {
	s := &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			model.IDField: {Type: "string", ReadOnly: true},
		},
	}
	if m.Timestamps {
		s.Properties[model.CreatedAtField] = &Schema{Type: "string", Format: "date-time", ReadOnly: true}
		s.Properties[model.UpdatedAtField] = &Schema{Type: "string", Format: "date-time", ReadOnly: true}
	}
	for _, f := range m.Fields {
		if f.IsHidden() {
			continue
		}
		s.Properties[f.Name] = fieldSchema(f)
	}
	return s
}

func buildInputSchema(m model.Model) *Schema {
	s := &Schema{
		Type:       "object",
		Properties: make(map[string]*Schema, len(m.Fields)),
	}
	for _, f := range m.Fields {
		fs := fieldSchema(f)
		if f.Type == model.TypePassword {
			fs.WriteOnly = true
		}
		s.Properties[f.Name] = fs
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// fieldSchema converts a field to an OpenAPI schema.
func fieldSchema(f model.Field) *Schema {
	s := &Schema{}

	switch f.Type {
	case model.TypeNumber:
		s.Type = "number"
	case model.TypeInt:
		s.Type = "integer"
	case model.TypeBool:
		s.Type = "boolean"
	case model.TypeDate:
		s.Type = "string"
		s.Format = "date-time"
	case model.TypeEmail:
		s.Type = "string"
		s.Format = "email"
	case model.TypePassword:
		s.Type = "string"
		s.Format = "password"
	case model.TypeObject:
		s.Type = "object"
	case model.TypeArray:
		s.Type = "array"
		s.Items = &Schema{}
	default:
		s.Type = "string"
	}

	s.Enum = f.Enum
	s.Minimum = f.Min
	s.Maximum = f.Max
	s.MinLength = f.MinLength
	s.MaxLength = f.MaxLength
	s.Pattern = f.Match
	s.Default = f.Default

	var notes []string
	if f.Unique {
		notes = append(notes, "unique")
	}
	if f.Hidden {
		notes = append(notes, "never returned")
	}
	if len(notes) > 0 {
		s.Description = strings.Join(notes, ", ")
	}
	return s
}

func schemaName(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if r == '_' || r == '-' {
			upper = true
			continue
		}
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func operationID(r entity.Route, title string) string {
	var verb string
	switch r.Verb {
	case entity.GET:
		verb = "get"
		if r.Variant == entity.ALL {
			verb = "list"
		}
	case entity.POST:
		verb = "create"
	case entity.PATCH:
		verb = "update"
	case entity.PUT:
		verb = "replace"
	case entity.DELETE:
		verb = "delete"
	}
	id := verb + title
	if r.Variant == entity.ONESOFT {
		id += "Draft"
	}
	return id
}

// ToJSON converts the spec to JSON.
func (spec *Spec) ToJSON() ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}

// ToJSONCompact converts the spec to compact JSON.
func (spec *Spec) ToJSONCompact() ([]byte, error) {
	return json.Marshal(spec)
}
