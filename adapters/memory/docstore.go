// Package memory provides an in-memory document store for tests and
// local development (DB_URI=memory://).
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/artpar/crudkit/adapters/idgen"
	"github.com/artpar/crudkit/core/storage"
	"github.com/artpar/crudkit/domain/model"
	"github.com/artpar/crudkit/ports"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory store closed")

type collection struct {
	docs   map[string]model.Document // by ID
	order  []string                  // insertion order
	unique []string
}

// DocumentStore is an in-memory implementation of ports.DocumentStore.
type DocumentStore struct {
	mu          sync.RWMutex
	ids         ports.IDGenerator
	collections map[string]*collection
	closed      bool
}

// New creates an empty store generating UUID identifiers.
func New() *DocumentStore {
	return NewWithIDs(idgen.UUID{})
}

// NewWithIDs creates an empty store using ids for new documents.
func NewWithIDs(ids ports.IDGenerator) *DocumentStore {
	return &DocumentStore{
		ids:         ids,
		collections: make(map[string]*collection),
	}
}

// coll returns the named collection, creating it on first use.
// Callers must hold the write lock.
func (s *DocumentStore) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]model.Document)}
		s.collections[name] = c
	}
	return c
}

// EnsureCollection creates the collection and records its unique fields.
func (s *DocumentStore) EnsureCollection(ctx context.Context, m model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	c := s.coll(m.Collection)
	c.unique = m.UniqueFields()
	return nil
}

// Collections lists the collection names, sorted.
func (s *DocumentStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// FindByID retrieves a document by id.
func (s *DocumentStore) FindByID(ctx context.Context, name, id string) (model.Document, error) {
	if !idgen.Valid(id) {
		return nil, model.NewIDCastError(idgen.Kind, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	c, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	return storage.Clone(c.docs[id]), nil
}

// Find lists the documents matching q in insertion order unless q sorts.
func (s *DocumentStore) Find(ctx context.Context, name string, q ports.Query) ([]model.Document, error) {
	if id, ok := q.Filter[model.IDField].(string); ok && !idgen.Valid(id) {
		return nil, model.NewIDCastError(idgen.Kind, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := []model.Document{}
	c, ok := s.collections[name]
	if !ok {
		return out, nil
	}
	for _, id := range c.order {
		doc := c.docs[id]
		if storage.Match(doc, q.Filter) {
			out = append(out, storage.Clone(doc))
		}
	}

	storage.SortDocuments(out, q.Sort)
	return storage.Page(out, q), nil
}

// Insert stores a new document under a generated id.
func (s *DocumentStore) Insert(ctx context.Context, name string, doc model.Document) (model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	c := s.coll(name)
	stored := storage.Clone(doc)
	stored[model.IDField] = s.ids.New()

	if err := c.checkUnique(name, stored); err != nil {
		return nil, err
	}

	id := stored[model.IDField].(string)
	c.docs[id] = stored
	c.order = append(c.order, id)
	return storage.Clone(stored), nil
}

// UpdateByID merges or replaces a stored document.
func (s *DocumentStore) UpdateByID(ctx context.Context, name, id string, doc model.Document, replace bool) (model.Document, error) {
	if !idgen.Valid(id) {
		return nil, model.NewIDCastError(idgen.Kind, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	c, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	old, ok := c.docs[id]
	if !ok {
		return nil, nil
	}

	var updated model.Document
	if replace {
		updated = storage.Replace(old, doc)
	} else {
		updated = storage.Merge(old, doc)
	}
	if err := c.checkUnique(name, updated); err != nil {
		return nil, err
	}

	c.docs[id] = updated
	return storage.Clone(updated), nil
}

// DeleteByID removes a document and returns it.
func (s *DocumentStore) DeleteByID(ctx context.Context, name, id string) (model.Document, error) {
	if !idgen.Valid(id) {
		return nil, model.NewIDCastError(idgen.Kind, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	c, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	old, ok := c.docs[id]
	if !ok {
		return nil, nil
	}

	delete(c.docs, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return old, nil
}

// Ping reports whether the store is open.
func (s *DocumentStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close drops every collection.
func (s *DocumentStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = make(map[string]*collection)
	return nil
}

// checkUnique fails when another document holds the same value in a
// unique field. Absent and null values never conflict.
func (c *collection) checkUnique(name string, doc model.Document) error {
	id := doc[model.IDField]
	for _, field := range c.unique {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		for oid, other := range c.docs {
			if oid == id {
				continue
			}
			if ov, ok := other[field]; ok && storage.Compare(ov, v) == 0 {
				return &model.DuplicateKeyError{Collection: name, Keys: []string{field}}
			}
		}
	}
	return nil
}

var (
	_ ports.DocumentStore    = (*DocumentStore)(nil)
	_ ports.CollectionLister = (*DocumentStore)(nil)
)
