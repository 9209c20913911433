package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Options selects and configures the item store backend.
type Options struct {
	Type string

	// SQLite is the operator database; the sqlite backend shares it.
	SQLite *sql.DB

	PostgresDSN        string
	PostgresMaxConns   int
	PostgresViaBouncer bool

	RedisAddr string

	MongoURI string
	MongoDB  string

	FirestoreProjectID string
}

// Open returns the item store named by opts.Type. An empty type means sqlite.
func Open(ctx context.Context, opts Options) (ItemStore, error) {
	switch opts.Type {
	case "", TypeSQLite:
		if opts.SQLite == nil {
			return nil, fmt.Errorf("sqlite item store needs an open database")
		}
		return NewSQLite(opts.SQLite), nil
	case TypePostgres:
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres item store needs PG_DSN")
		}
		return OpenPostgres(ctx, opts.PostgresDSN, PostgresOptions{
			MaxConns:   opts.PostgresMaxConns,
			ViaBouncer: opts.PostgresViaBouncer,
		})
	case TypeRedis:
		return OpenRedis(ctx, opts.RedisAddr)
	case TypeMongo:
		return OpenMongo(ctx, opts.MongoURI, opts.MongoDB)
	case TypeFirestore:
		if opts.FirestoreProjectID == "" {
			return nil, fmt.Errorf("firestore item store needs FIRESTORE_PROJECT_ID")
		}
		return OpenFirestore(ctx, opts.FirestoreProjectID)
	}
	return nil, fmt.Errorf("unknown store type %q", opts.Type)
}
