package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/artpar/crudkit/adapters/idgen"
	"github.com/artpar/crudkit/core/storage"
	"github.com/artpar/crudkit/domain/model"
	"github.com/artpar/crudkit/ports"
	"github.com/mattn/go-sqlite3"
)

// DocumentStore implements ports.DocumentStore using SQLite.
type DocumentStore struct {
	db  *DB
	ids ports.IDGenerator

	mu     sync.RWMutex
	models map[string]model.Model
}

// NewDocumentStore creates a document store on a migrated database.
func NewDocumentStore(db *DB, ids ports.IDGenerator) *DocumentStore {
	return &DocumentStore{
		db:     db,
		ids:    ids,
		models: make(map[string]model.Model),
	}
}

func tableName(collection string) string {
	return `"doc_` + collection + `"`
}

func jsonPath(field string) string {
	return "json_extract(doc, '$." + field + "')"
}

func indexName(collection, field string) string {
	return "ux_" + collection + "_" + field
}

// dropStaleIndexes removes the unique indexes of fields that are no
// longer unique.
func dropStaleIndexes(ctx context.Context, tx *sql.Tx, collection string, unique []string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?`,
		strings.Trim(tableName(collection), `"`))
	if err != nil {
		return fmt.Errorf("list indexes of %s: %w", collection, err)
	}
	want := make(map[string]bool, len(unique))
	for _, field := range unique {
		want[indexName(collection, field)] = true
	}
	var stale []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		if strings.HasPrefix(name, indexName(collection, "")) && !want[name] {
			stale = append(stale, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range stale {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS "%s"`, name)); err != nil {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}
	return nil
}

// EnsureCollection creates the collection table, its unique indexes and
// its registry row.
func (s *DocumentStore) EnsureCollection(ctx context.Context, m model.Model) error {
	if !model.IsIdentifier(m.Collection) {
		return fmt.Errorf("invalid collection name %q", m.Collection)
	}
	unique := m.UniqueFields()

	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				_id TEXT PRIMARY KEY,
				doc TEXT NOT NULL CHECK (json_valid(doc))
			)`, tableName(m.Collection)))
		if err != nil {
			return fmt.Errorf("create collection %s: %w", m.Collection, err)
		}

		if err := dropStaleIndexes(ctx, tx, m.Collection, unique); err != nil {
			return err
		}

		for _, field := range unique {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(
				`CREATE UNIQUE INDEX IF NOT EXISTS "%s" ON %s (%s)`,
				indexName(m.Collection, field), tableName(m.Collection), jsonPath(field)))
			if err != nil {
				return fmt.Errorf("create unique index %s.%s: %w", m.Collection, field, mapError(m.Collection, err))
			}
		}

		fields, _ := json.Marshal(unique)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO collections (name, unique_fields) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET unique_fields = excluded.unique_fields, updated_at = CURRENT_TIMESTAMP
		`, m.Collection, string(fields))
		if err != nil {
			return fmt.Errorf("register collection %s: %w", m.Collection, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.models[m.Collection] = m
	s.mu.Unlock()
	return nil
}

// Collections lists the registered collection names.
func (s *DocumentStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *DocumentStore) model(collection string) (model.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[collection]
	if !ok {
		return model.Model{}, fmt.Errorf("collection %s not initialized", collection)
	}
	return m, nil
}

// FindByID retrieves a document by id.
func (s *DocumentStore) FindByID(ctx context.Context, collection, id string) (model.Document, error) {
	if !idgen.Valid(id) {
		return nil, model.NewIDCastError(idgen.Kind, id)
	}
	m, err := s.model(collection)
	if err != nil {
		return nil, err
	}

	var data string
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE _id = ?", tableName(collection)), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return decodeDoc(id, data, m)
}

// Find lists the documents matching q. Without a sort, documents come back
// in insertion order.
func (s *DocumentStore) Find(ctx context.Context, collection string, q ports.Query) ([]model.Document, error) {
	m, err := s.model(collection)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT _id, doc FROM %s", tableName(collection))
	var (
		where []string
		args  []any
	)
	for field, v := range q.Filter {
		if field == model.IDField {
			id := fmt.Sprint(v)
			if !idgen.Valid(id) {
				return nil, model.NewIDCastError(idgen.Kind, id)
			}
			where = append(where, "_id = ?")
			args = append(args, id)
			continue
		}
		if !model.IsIdentifier(field) {
			return nil, fmt.Errorf("invalid filter field %q", field)
		}
		if v == nil {
			where = append(where, jsonPath(field)+" IS NULL")
			continue
		}
		where = append(where, jsonPath(field)+" = ?")
		args = append(args, filterArg(v))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var order []string
	for _, f := range q.Sort {
		if !model.IsIdentifier(f.Name) {
			return nil, fmt.Errorf("invalid sort field %q", f.Name)
		}
		expr := jsonPath(f.Name)
		if f.Name == model.IDField {
			expr = "_id"
		}
		if f.Desc {
			expr += " DESC"
		}
		order = append(order, expr)
	}
	order = append(order, "rowid")
	query += " ORDER BY " + strings.Join(order, ", ")

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, q.Skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc, err := decodeDoc(id, data, m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Insert stores a new document under a generated id.
func (s *DocumentStore) Insert(ctx context.Context, collection string, doc model.Document) (model.Document, error) {
	m, err := s.model(collection)
	if err != nil {
		return nil, err
	}

	id := s.ids.New()
	data, err := encodeDoc(doc)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (_id, doc) VALUES (?, ?)", tableName(collection)), id, data)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, mapError(collection, err))
	}
	return decodeDoc(id, data, m)
}

// UpdateByID merges or replaces a stored document in one transaction.
func (s *DocumentStore) UpdateByID(ctx context.Context, collection, id string, doc model.Document, replace bool) (model.Document, error) {
	if !idgen.Valid(id) {
		return nil, model.NewIDCastError(idgen.Kind, id)
	}
	m, err := s.model(collection)
	if err != nil {
		return nil, err
	}

	var updated model.Document
	err = s.db.inTx(ctx, func(tx *sql.Tx) error {
		var data string
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT doc FROM %s WHERE _id = ?", tableName(collection)), id,
		).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", collection, err)
		}

		old, err := decodeDoc(id, data, m)
		if err != nil {
			return err
		}
		next := storage.Merge(old, doc)
		if replace {
			next = storage.Replace(old, doc)
		}

		encoded, err := encodeDoc(next)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET doc = ? WHERE _id = ?", tableName(collection)), encoded, id)
		if err != nil {
			return fmt.Errorf("update %s: %w", collection, mapError(collection, err))
		}

		updated, err = decodeDoc(id, encoded, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteByID removes a document and returns it.
func (s *DocumentStore) DeleteByID(ctx context.Context, collection, id string) (model.Document, error) {
	if !idgen.Valid(id) {
		return nil, model.NewIDCastError(idgen.Kind, id)
	}
	m, err := s.model(collection)
	if err != nil {
		return nil, err
	}

	var data string
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE _id = ? RETURNING doc", tableName(collection)), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", collection, err)
	}
	return decodeDoc(id, data, m)
}

// Ping checks the database connection.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *DocumentStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// mapError converts unique constraint failures to model.DuplicateKeyError.
func mapError(collection string, err error) error {
	var serr sqlite3.Error
	if !errors.As(err, &serr) || serr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return err
	}

	// "UNIQUE constraint failed: index 'ux_users_email'"
	var keys []string
	msg := serr.Error()
	if _, rest, ok := strings.Cut(msg, "index '"); ok {
		name, _, _ := strings.Cut(rest, "'")
		if field, ok := strings.CutPrefix(name, indexName(collection, "")); ok {
			keys = append(keys, field)
		}
	}
	return &model.DuplicateKeyError{Collection: collection, Keys: keys, Err: err}
}

var (
	_ ports.DocumentStore    = (*DocumentStore)(nil)
	_ ports.CollectionLister = (*DocumentStore)(nil)
)
