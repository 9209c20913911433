package store

import (
	"context"
	"testing"

	"github.com/erazemk/oddaja/internal/db"
)

func TestJWTSecretGeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	secret1, err := JWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if len(secret1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	secret2, err := JWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestPutAndGetSetting(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, ok, err := GetSetting(ctx, database, "media_dir"); err != nil || ok {
		t.Fatalf("expected unset setting, got ok=%v err=%v", ok, err)
	}

	PutSetting(ctx, database, "media_dir", "/tmp/a")
	PutSetting(ctx, database, "media_dir", "/tmp/b")

	v, ok, err := GetSetting(ctx, database, "media_dir")
	if err != nil || !ok {
		t.Fatalf("GetSetting: ok=%v err=%v", ok, err)
	}
	if v != "/tmp/b" {
		t.Errorf("expected /tmp/b, got %q", v)
	}
}
