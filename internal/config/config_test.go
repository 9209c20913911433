package config

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/erazemk/oddaja/internal/store"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ODDAJA_DB", "ODDAJA_ADDR", "ODDAJA_STORE", "ODDAJA_LOG", "PG_DSN", "PG_MAX_CONNS", "PG_BOUNCER",
		"REDIS_ADDR", "MONGO_URI", "MONGO_DB", "FIRESTORE_PROJECT_ID", "ODDAJA_SESSION_FILE", "ODDAJA_MEDIA_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load("oddaja", nil, io.Discard)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DBPath != "oddaja.sqlite3" || c.Addr != ":8080" || c.StoreType != store.TypeSQLite {
		t.Errorf("unexpected defaults %+v", c)
	}
	if c.AdminUser != "Admin" || c.MongoDB != "oddaja" || c.PostgresMaxConns != 4 {
		t.Errorf("unexpected defaults %+v", c)
	}
	if c.SessionFile == "" {
		t.Error("expected a default session file")
	}
}

func TestShortAndLongFlags(t *testing.T) {
	clearEnv(t)
	for _, args := range [][]string{
		{"-d", "x.db", "-a", ":9000", "-u", "root", "-l", "out.log"},
		{"-db", "x.db", "-addr", ":9000", "-user", "root", "-log", "out.log"},
	} {
		c, err := Load("oddaja", args, io.Discard)
		if err != nil {
			t.Fatalf("Load(%v): %v", args, err)
		}
		if c.DBPath != "x.db" || c.Addr != ":9000" || c.AdminUser != "root" || c.LogPath != "out.log" {
			t.Errorf("Load(%v) = %+v", args, c)
		}
	}
}

func TestEnvironmentFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("ODDAJA_STORE", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("ODDAJA_MEDIA_DIR", "/tmp/media")

	c, err := Load("agent", nil, io.Discard)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.StoreType != store.TypeRedis || c.RedisAddr != "localhost:6379" || c.MediaDir != "/tmp/media" {
		t.Errorf("environment not applied: %+v", c)
	}

	// Flags win over the environment.
	c, err = Load("agent", []string{"-s", "sqlite"}, io.Discard)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.StoreType != store.TypeSQLite {
		t.Errorf("flag did not override environment: %s", c.StoreType)
	}
}

func TestValidation(t *testing.T) {
	clearEnv(t)
	tests := map[string]struct {
		args []string
		want string
	}{
		"unknown store":     {[]string{"-s", "etcd"}, "unknown store type"},
		"postgres no dsn":   {[]string{"-s", "postgres"}, "PG_DSN"},
		"redis no addr":     {[]string{"-s", "redis"}, "REDIS_ADDR"},
		"mongo no uri":      {[]string{"-s", "mongo"}, "MONGO_URI"},
		"firestore no proj": {[]string{"-s", "firestore"}, "FIRESTORE_PROJECT_ID"},
		"bad pool size":     {[]string{"-s", "postgres", "-pg", "postgres://x", "-pg-max-conns", "0"}, "pg-max-conns"},
		"extra argument":    {[]string{"serve"}, "unexpected argument"},
	}
	for name, tt := range tests {
		_, err := Load("oddaja", tt.args, io.Discard)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: expected error containing %q, got %v", name, tt.want, err)
		}
	}
}

func TestHelp(t *testing.T) {
	clearEnv(t)
	var buf bytes.Buffer
	_, err := Load("oddaja", []string{"-h"}, &buf)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
	if !strings.Contains(buf.String(), "Usage: oddaja") {
		t.Errorf("usage not written: %q", buf.String())
	}
}

func TestStoreOptions(t *testing.T) {
	c := &Config{StoreType: store.TypeMongo, MongoURI: "mongodb://x", MongoDB: "db"}
	opts := c.StoreOptions(nil)
	if opts.Type != store.TypeMongo || opts.MongoURI != "mongodb://x" || opts.MongoDB != "db" {
		t.Errorf("unexpected options %+v", opts)
	}
}
