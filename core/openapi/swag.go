package openapi

import (
	"sync"
	"sync/atomic"

	"github.com/artpar/crudkit/domain/entity"
	"github.com/swaggo/swag"
)

// Source returns the descriptors to document, e.g. a registry's active set.
type Source func() []entity.Descriptor

// Document renders the specification of a changing entity set on demand.
// It implements swag.Swagger.
type Document struct {
	gen    *Generator
	source Source
}

// NewDocument creates a document over source.
func NewDocument(gen *Generator, source Source) *Document {
	return &Document{gen: gen, source: source}
}

// Spec generates the current specification.
func (d *Document) Spec() *Spec {
	return d.gen.Generate(d.source())
}

// ReadDoc implements swag.Swagger.
func (d *Document) ReadDoc() string {
	data, err := d.Spec().ToJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

var (
	registerOnce sync.Once
	active       atomic.Pointer[Document]
)

type registered struct{}

func (registered) ReadDoc() string {
	if d := active.Load(); d != nil {
		return d.ReadDoc()
	}
	return "{}"
}

// Register makes d the document swag serves under swag.Name. swag allows
// one registration per name, so later calls replace the active document.
func Register(d *Document) {
	active.Store(d)
	registerOnce.Do(func() {
		swag.Register(swag.Name, registered{})
	})
}
