// Package mongo provides a document store on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/artpar/crudkit/core/storage"
	"github.com/artpar/crudkit/domain/model"
	"github.com/artpar/crudkit/ports"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// DefaultDatabase is used when neither the URI nor the options name one.
const DefaultDatabase = "crudkit"

// idKind names the identifier type in cast errors.
const idKind = "ObjectId"

// Options configure Connect.
type Options struct {
	// Database is used when the URI path names no database.
	Database string

	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// DocumentStore implements ports.DocumentStore using MongoDB.
type DocumentStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

// Connect opens a client with zstd wire compression and verifies the
// connection with a ping.
func Connect(ctx context.Context, uri string, opts Options) (*DocumentStore, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}
	dbName := databaseName(cs, opts.Database)

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetCompressors([]string{"zstd"}).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	opts.Logger.Info().
		Str("host", strings.Join(cs.Hosts, ",")).
		Str("database", dbName).
		Msg("mongo connected")

	return &DocumentStore{
		client: client,
		db:     client.Database(dbName),
		logger: opts.Logger,
	}, nil
}

// EnsureCollection creates a sparse unique index per unique field and
// drops the unique indexes of fields that lost the constraint.
// MongoDB creates the collection itself on first write.
func (s *DocumentStore) EnsureCollection(ctx context.Context, m model.Model) error {
	coll := s.db.Collection(m.Collection)
	unique := m.UniqueFields()

	specs, err := coll.Indexes().ListSpecifications(ctx)
	if err != nil && !isNamespaceNotFound(err) {
		return fmt.Errorf("list indexes on %s: %w", m.Collection, err)
	}
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	for _, name := range staleUniqueIndexes(names, unique) {
		if _, err := coll.Indexes().DropOne(ctx, name); err != nil {
			return fmt.Errorf("drop index %s on %s: %w", name, m.Collection, err)
		}
		s.logger.Info().Str("collection", m.Collection).Str("index", name).Msg("unique index dropped")
	}

	if len(unique) == 0 {
		return nil
	}
	indexes := make([]mongo.IndexModel, 0, len(unique))
	for _, field := range unique {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName(uniqueIndexName(field)),
		})
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create indexes on %s: %w", m.Collection, mapError(m.Collection, err))
	}
	return nil
}

// Collections lists the collection names of the database, sorted.
func (s *DocumentStore) Collections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// FindByID retrieves a document by id.
func (s *DocumentStore) FindByID(ctx context.Context, collection, id string) (model.Document, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	err = s.db.Collection(collection).FindOne(ctx, bson.M{model.IDField: oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return normalizeDoc(doc), nil
}

// Find lists the documents matching q.
func (s *DocumentStore) Find(ctx context.Context, collection string, q ports.Query) ([]model.Document, error) {
	filter, err := buildFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if sort := buildSort(q.Sort); len(sort) > 0 {
		opts.SetSort(sort)
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}

	docs := make([]model.Document, 0, len(raw))
	for _, d := range raw {
		docs = append(docs, normalizeDoc(d))
	}
	return docs, nil
}

// Insert stores a new document under a fresh ObjectId.
func (s *DocumentStore) Insert(ctx context.Context, collection string, doc model.Document) (model.Document, error) {
	stored := storage.Clone(doc)
	stored[model.IDField] = primitive.NewObjectID()

	if _, err := s.db.Collection(collection).InsertOne(ctx, stored); err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, mapError(collection, err))
	}
	return normalizeDoc(stored), nil
}

// UpdateByID merges doc with $set, or replaces the stored document keeping
// its id and creation time.
func (s *DocumentStore) UpdateByID(ctx context.Context, collection, id string, doc model.Document, replace bool) (model.Document, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	coll := s.db.Collection(collection)
	filter := bson.M{model.IDField: oid}

	var out bson.M
	switch {
	case replace:
		var old bson.M
		err = coll.FindOne(ctx, filter).Decode(&old)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", collection, err)
		}
		next := storage.Replace(old, doc)
		err = coll.FindOneAndReplace(ctx, filter, next,
			options.FindOneAndReplace().SetReturnDocument(options.After)).Decode(&out)

	default:
		set := setDoc(doc)
		if len(set) == 0 {
			return s.FindByID(ctx, collection, id)
		}
		err = coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&out)
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", collection, mapError(collection, err))
	}
	return normalizeDoc(out), nil
}

// DeleteByID removes a document and returns it.
func (s *DocumentStore) DeleteByID(ctx context.Context, collection, id string) (model.Document, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	err = s.db.Collection(collection).FindOneAndDelete(ctx, bson.M{model.IDField: oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", collection, err)
	}
	return normalizeDoc(doc), nil
}

// Ping checks connectivity with the primary.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *DocumentStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		s.logger.Error().Err(err).Msg("mongo disconnect failed")
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	s.logger.Info().Msg("mongo disconnected")
	return nil
}

var (
	_ ports.DocumentStore    = (*DocumentStore)(nil)
	_ ports.CollectionLister = (*DocumentStore)(nil)
)

// databaseName picks the URI database, then fallback, then DefaultDatabase.
const uniqueSuffix = "_unique"

func uniqueIndexName(field string) string {
	return field + uniqueSuffix
}

// staleUniqueIndexes returns the unique index names whose field is no
// longer in unique.
func staleUniqueIndexes(names, unique []string) []string {
	var stale []string
	for _, name := range names {
		field, ok := strings.CutSuffix(name, uniqueSuffix)
		if !ok || slices.Contains(unique, field) {
			continue
		}
		stale = append(stale, name)
	}
	return stale
}

// isNamespaceNotFound reports the error listIndexes returns for a
// collection that does not exist yet.
func isNamespaceNotFound(err error) bool {
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.Code == 26
}

func databaseName(cs *connstring.ConnString, fallback string) string {
	switch {
	case cs.Database != "":
		return cs.Database
	case fallback != "":
		return fallback
	}
	return DefaultDatabase
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, model.NewIDCastError(idKind, id)
	}
	return oid, nil
}

func buildFilter(filter model.Document) (bson.M, error) {
	out := make(bson.M, len(filter))
	for k, v := range filter {
		if k == model.IDField {
			oid, err := objectID(fmt.Sprint(v))
			if err != nil {
				return nil, err
			}
			out[k] = oid
			continue
		}
		out[k] = v
	}
	return out, nil
}

// buildSort converts sort fields to a sort document. A trailing _id key
// keeps the order stable between equal keys.
func buildSort(fields []model.SortField) bson.D {
	if len(fields) == 0 {
		return nil
	}
	out := make(bson.D, 0, len(fields)+1)
	hasID := false
	for _, f := range fields {
		dir := 1
		if f.Desc {
			dir = -1
		}
		if f.Name == model.IDField {
			hasID = true
		}
		out = append(out, bson.E{Key: f.Name, Value: dir})
	}
	if !hasID {
		out = append(out, bson.E{Key: model.IDField, Value: 1})
	}
	return out
}

// setDoc is the $set body of a merge update.
func setDoc(doc model.Document) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		if k == model.IDField || k == model.CreatedAtField {
			continue
		}
		out[k] = v
	}
	return out
}

// normalizeDoc converts driver types to the plain values used by handlers:
// ObjectIds become hex strings, datetimes become time.Time, nested
// documents become maps and int32 widens to int64.
func normalizeDoc(doc map[string]any) model.Document {
	out := make(model.Document, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC()
	case int32:
		return int64(x)
	case primitive.M:
		return normalizeDoc(x)
	case map[string]any:
		return normalizeDoc(x)
	case primitive.D:
		m := make(model.Document, len(x))
		for _, e := range x {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case primitive.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	}
	return v
}

// mapError converts duplicate key write errors to model.DuplicateKeyError.
func mapError(collection string, err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	return &model.DuplicateKeyError{Collection: collection, Keys: duplicateKeys(err), Err: err}
}

// duplicateKeys extracts field names from the server message, e.g.
// "E11000 duplicate key error collection: db.users index: email_unique dup key: { email: ... }".
func duplicateKeys(err error) []string {
	_, rest, ok := strings.Cut(err.Error(), "index: ")
	if !ok {
		return nil
	}
	name, _, _ := strings.Cut(rest, " ")
	if field, ok := strings.CutSuffix(name, uniqueSuffix); ok {
		return []string{field}
	}
	return []string{name}
}
