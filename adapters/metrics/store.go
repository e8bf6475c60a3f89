package metrics

import (
	"context"
	"time"

	"github.com/artpar/crudkit/domain/model"
	"github.com/artpar/crudkit/ports"
)

// Store wraps a ports.DocumentStore and records every operation.
type Store struct {
	next ports.DocumentStore
	c    *Collector
}

// InstrumentStore returns next with operation metrics.
func (c *Collector) InstrumentStore(next ports.DocumentStore) *Store {
	return &Store{next: next, c: c}
}

func (s *Store) observe(collection, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.c.StoreOperations.WithLabelValues(collection, op, result).Inc()
	s.c.StoreDuration.WithLabelValues(collection, op).Observe(time.Since(start).Seconds())
}

func (s *Store) EnsureCollection(ctx context.Context, m model.Model) error {
	start := time.Now()
	err := s.next.EnsureCollection(ctx, m)
	s.observe(m.Collection, "ensure", start, err)
	return err
}

func (s *Store) FindByID(ctx context.Context, collection, id string) (model.Document, error) {
	start := time.Now()
	doc, err := s.next.FindByID(ctx, collection, id)
	s.observe(collection, "find_one", start, err)
	return doc, err
}

func (s *Store) Find(ctx context.Context, collection string, q ports.Query) ([]model.Document, error) {
	start := time.Now()
	docs, err := s.next.Find(ctx, collection, q)
	s.observe(collection, "find", start, err)
	return docs, err
}

func (s *Store) Insert(ctx context.Context, collection string, doc model.Document) (model.Document, error) {
	start := time.Now()
	out, err := s.next.Insert(ctx, collection, doc)
	s.observe(collection, "insert", start, err)
	return out, err
}

func (s *Store) UpdateByID(ctx context.Context, collection, id string, doc model.Document, replace bool) (model.Document, error) {
	start := time.Now()
	out, err := s.next.UpdateByID(ctx, collection, id, doc, replace)
	op := "update"
	if replace {
		op = "replace"
	}
	s.observe(collection, op, start, err)
	return out, err
}

func (s *Store) DeleteByID(ctx context.Context, collection, id string) (model.Document, error) {
	start := time.Now()
	out, err := s.next.DeleteByID(ctx, collection, id)
	s.observe(collection, "delete", start, err)
	return out, err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}

var _ ports.DocumentStore = (*Store)(nil)
