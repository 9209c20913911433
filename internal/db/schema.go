package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'operator' CHECK (role IN ('admin', 'operator')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
    id                    TEXT PRIMARY KEY,
    title                 TEXT NOT NULL,
    description           TEXT,
    price                 TEXT NOT NULL DEFAULT '0',
    photos                TEXT,
    status                TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'ready', 'processing', 'vinted_draft', 'published', 'error', 'sold')),
    notes                 TEXT,
    destination_reference TEXT,
    published_at          DATETIME,
    created_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_status_created
    ON listings(status, created_at);

CREATE TABLE IF NOT EXISTS bundles (
    id                    TEXT PRIMARY KEY,
    name                  TEXT NOT NULL,
    description           TEXT,
    total_price           TEXT NOT NULL DEFAULT '0',
    discount_percent      TEXT NOT NULL DEFAULT '0',
    photos                TEXT,
    listing_count         INTEGER NOT NULL DEFAULT 0,
    status                TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'ready', 'processing', 'vinted_draft', 'published', 'error', 'sold')),
    notes                 TEXT,
    destination_reference TEXT,
    published_at          DATETIME,
    created_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bundles_status_created
    ON bundles(status, created_at);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
