package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/crudkit/adapters/idgen"
	"github.com/artpar/crudkit/adapters/memory"
	"github.com/artpar/crudkit/adapters/mongo"
	"github.com/artpar/crudkit/adapters/sqlite"
	"github.com/artpar/crudkit/ports"
	"github.com/rs/zerolog"
)

// StoreKind names the adapter a DB_URI selects.
func StoreKind(uri string) (string, error) {
	switch {
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		return "mongo", nil
	case strings.HasPrefix(uri, "sqlite://"), strings.HasPrefix(uri, "file:"):
		return "sqlite", nil
	case strings.HasPrefix(uri, "memory://"):
		return "memory", nil
	}
	return "", fmt.Errorf("unsupported DB_URI scheme in %q (want mongodb://, mongodb+srv://, sqlite://, file: or memory://)", redactURI(uri))
}

// sqlitePath extracts the database file path from a sqlite:// or file: URI.
func sqlitePath(uri string) string {
	p := strings.TrimPrefix(uri, "sqlite://")
	p = strings.TrimPrefix(p, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

// OpenStore connects the document store selected by uri.
func OpenStore(ctx context.Context, uri, dbName string, logger zerolog.Logger) (ports.DocumentStore, error) {
	kind, err := StoreKind(uri)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "mongo":
		store, err := mongo.Connect(ctx, uri, mongo.Options{Database: dbName, Logger: logger})
		if err != nil {
			return nil, err
		}
		return store, nil

	case "sqlite":
		path := sqlitePath(uri)
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Str("path", path).Msg("database initialized")
		return sqlite.NewDocumentStore(db, idgen.UUID{}), nil
	}

	logger.Warn().Msg("using in-memory document store, data is lost on exit")
	return memory.New(), nil
}

// redactURI hides the password of a connection URI.
func redactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return uri
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return uri
	}
	return scheme + "://" + user + ":***@" + host
}
