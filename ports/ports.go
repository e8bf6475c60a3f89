// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/crudkit/domain/model"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher hashes secrets such as password fields.
type Hasher interface {
	Hash(plaintext string) ([]byte, error)
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// Query describes a collection read.
type Query struct {
	// Filter holds equality terms keyed by field name. The id field is
	// passed as a string and converted by the store.
	Filter model.Document

	Sort []model.SortField

	// Skip and Limit page the result; a zero Limit means no limit.
	Skip  int64
	Limit int64
}

// DocumentStore persists schemaless documents grouped in collections.
//
// Lookups by id return (nil, nil) when no document matches and a
// *model.CastError when the id is malformed. Writes violating a unique
// field return a *model.DuplicateKeyError.
type DocumentStore interface {
	// EnsureCollection prepares storage and unique indexes for a model.
	EnsureCollection(ctx context.Context, m model.Model) error

	// FindByID returns one document.
	FindByID(ctx context.Context, collection, id string) (model.Document, error)

	// Find returns the documents matching q.
	Find(ctx context.Context, collection string, q Query) ([]model.Document, error)

	// Insert stores doc and returns it with its generated id.
	Insert(ctx context.Context, collection string, doc model.Document) (model.Document, error)

	// UpdateByID merges doc into the stored document, or replaces it when
	// replace is set, and returns the document after the update.
	UpdateByID(ctx context.Context, collection, id string, doc model.Document, replace bool) (model.Document, error)

	// DeleteByID removes a document and returns it.
	DeleteByID(ctx context.Context, collection, id string) (model.Document, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close(ctx context.Context) error
}

// CollectionLister is implemented by stores that can enumerate their
// collections.
type CollectionLister interface {
	Collections(ctx context.Context) ([]string, error)
}
