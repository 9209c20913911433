// Package config reads the settings shared by the server and the agent from
// command-line flags, falling back to environment variables.
package config

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/erazemk/oddaja/internal/session"
	"github.com/erazemk/oddaja/internal/store"
)

// Config holds every setting of both binaries. Each binary uses the subset
// it needs.
type Config struct {
	DBPath    string
	Addr      string
	AdminUser string
	LogPath   string

	StoreType          string
	PostgresDSN        string
	PostgresMaxConns   int
	PostgresViaBouncer bool
	RedisAddr          string
	MongoURI           string
	MongoDB            string
	FirestoreProjectID string

	SessionFile string
	MediaDir    string
}

const usage = `Usage: %s [flags]

Flags:
  -d, -db <path>           SQLite database path (env ODDAJA_DB, default: oddaja.sqlite3)
  -a, -addr <host:port>    listen address (env ODDAJA_ADDR, default: :8080)
  -s, -store <type>        item store: sqlite, postgres, redis, mongo, firestore
                           (env ODDAJA_STORE, default: sqlite)
  -u, -user <name>         admin username on first run (default: Admin)
  -l, -log <path>          log file path (env ODDAJA_LOG, default: stdout/stderr only)
  -pg <dsn>                Postgres DSN (env PG_DSN)
  -pg-max-conns <n>        Postgres pool size (env PG_MAX_CONNS, default: 4)
  -pg-bouncer              Postgres is behind a transaction pooler (env PG_BOUNCER)
  -redis <host:port>       Redis address (env REDIS_ADDR)
  -mongo <uri>             MongoDB URI (env MONGO_URI)
  -mongo-db <name>         MongoDB database (env MONGO_DB, default: oddaja)
  -firestore <project>     Firestore project id (env FIRESTORE_PROJECT_ID)
  -session <path>          agent session file (env ODDAJA_SESSION_FILE)
  -media <dir>             photo export directory (env ODDAJA_MEDIA_DIR)
  -h, -help                show this help and exit
`

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// Load parses args for the program called name. It returns flag.ErrHelp
// when help was requested; usage has then been written to out.
func Load(name string, args []string, out io.Writer) (*Config, error) {
	c := &Config{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprintf(out, usage, name) }

	str := func(p *string, long, short, def string) {
		fs.StringVar(p, long, def, "")
		if short != "" {
			fs.StringVar(p, short, def, "")
		}
	}

	str(&c.DBPath, "db", "d", env("ODDAJA_DB", "oddaja.sqlite3"))
	str(&c.Addr, "addr", "a", env("ODDAJA_ADDR", ":8080"))
	str(&c.StoreType, "store", "s", env("ODDAJA_STORE", store.TypeSQLite))
	str(&c.AdminUser, "user", "u", "Admin")
	str(&c.LogPath, "log", "l", env("ODDAJA_LOG", ""))
	str(&c.PostgresDSN, "pg", "", env("PG_DSN", ""))
	fs.IntVar(&c.PostgresMaxConns, "pg-max-conns", envInt("PG_MAX_CONNS", 4), "")
	fs.BoolVar(&c.PostgresViaBouncer, "pg-bouncer", envBool("PG_BOUNCER"), "")
	str(&c.RedisAddr, "redis", "", env("REDIS_ADDR", ""))
	str(&c.MongoURI, "mongo", "", env("MONGO_URI", ""))
	str(&c.MongoDB, "mongo-db", "", env("MONGO_DB", "oddaja"))
	str(&c.FirestoreProjectID, "firestore", "", env("FIRESTORE_PROJECT_ID", ""))
	str(&c.SessionFile, "session", "", env("ODDAJA_SESSION_FILE", session.DefaultPath()))
	str(&c.MediaDir, "media", "", env("ODDAJA_MEDIA_DIR", ""))

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that the chosen store has what it needs to connect.
func (c *Config) Validate() error {
	var missing string
	switch c.StoreType {
	case store.TypeSQLite:
		if c.DBPath == "" {
			missing = "-db"
		}
	case store.TypePostgres:
		if c.PostgresDSN == "" {
			missing = "-pg or PG_DSN"
		}
		if c.PostgresMaxConns < 1 {
			return errors.New("-pg-max-conns must be at least 1")
		}
	case store.TypeRedis:
		if c.RedisAddr == "" {
			missing = "-redis or REDIS_ADDR"
		}
	case store.TypeMongo:
		if c.MongoURI == "" || c.MongoDB == "" {
			missing = "-mongo and -mongo-db (MONGO_URI, MONGO_DB)"
		}
	case store.TypeFirestore:
		if c.FirestoreProjectID == "" {
			missing = "-firestore or FIRESTORE_PROJECT_ID"
		}
	default:
		return fmt.Errorf("unknown store type %q", c.StoreType)
	}
	if missing != "" {
		return fmt.Errorf("%s store needs %s", c.StoreType, missing)
	}
	return nil
}

// StoreOptions returns the item store options. database is the operator
// database, shared with the sqlite backend.
func (c *Config) StoreOptions(database *sql.DB) store.Options {
	return store.Options{
		Type:               c.StoreType,
		SQLite:             database,
		PostgresDSN:        c.PostgresDSN,
		PostgresMaxConns:   c.PostgresMaxConns,
		PostgresViaBouncer: c.PostgresViaBouncer,
		RedisAddr:          c.RedisAddr,
		MongoURI:           c.MongoURI,
		MongoDB:            c.MongoDB,
		FirestoreProjectID: c.FirestoreProjectID,
	}
}
