package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/erazemk/oddaja/internal/model"
)

// Postgres is an item store on a shared Postgres database, for queues worked
// from several machines.
type Postgres struct {
	pool *pgxpool.Pool
}

// PostgresOptions configures the connection pool.
type PostgresOptions struct {
	MaxConns int
	// ViaBouncer switches to the simple protocol for PgBouncer transaction pooling.
	ViaBouncer bool
}

// OpenPostgres connects to dsn and ensures the item tables exist.
func OpenPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.ViaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable("connecting to postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("pinging postgres", err)
	}

	s := &Postgres{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS listings (
    id                    TEXT PRIMARY KEY,
    title                 TEXT NOT NULL,
    description           TEXT,
    price                 NUMERIC(12,2) NOT NULL DEFAULT 0,
    photos                TEXT,
    status                TEXT NOT NULL DEFAULT 'draft',
    notes                 TEXT,
    destination_reference TEXT,
    published_at          TIMESTAMPTZ,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_listings_status_created ON listings(status, created_at);

CREATE TABLE IF NOT EXISTS bundles (
    id                    TEXT PRIMARY KEY,
    name                  TEXT NOT NULL,
    description           TEXT,
    total_price           NUMERIC(12,2) NOT NULL DEFAULT 0,
    discount_percent      NUMERIC(5,2) NOT NULL DEFAULT 0,
    photos                TEXT,
    listing_count         INTEGER NOT NULL DEFAULT 0,
    status                TEXT NOT NULL DEFAULT 'draft',
    notes                 TEXT,
    destination_reference TEXT,
    published_at          TIMESTAMPTZ,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_bundles_status_created ON bundles(status, created_at);
`

// EnsureSchema creates the item tables if they don't already exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(postgresSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating postgres schema: %w", err)
		}
	}
	return nil
}

const (
	pgListingSelect = `SELECT id, title, COALESCE(description, ''), price::text, COALESCE(photos, ''),
	        status, COALESCE(notes, ''), destination_reference, published_at, created_at FROM listings`
	pgBundleSelect = `SELECT id, name, COALESCE(description, ''), total_price::text, discount_percent::text,
	        COALESCE(photos, ''), listing_count, status, COALESCE(notes, ''), destination_reference,
	        published_at, created_at FROM bundles`
)

func pgSelect(kind model.Kind) string {
	if kind == model.KindBundle {
		return pgBundleSelect
	}
	return pgListingSelect
}

func scanPostgres(kind model.Kind, row pgx.Row) (*model.Record, error) {
	rec := &model.Record{Kind: kind}
	var (
		status, photos string
		ref            *string
		publishedAt    *time.Time
	)

	switch kind {
	case model.KindSingle:
		l := &model.ListingFields{}
		var price string
		if err := row.Scan(&rec.ID, &l.Title, &l.Description, &price, &photos, &status,
			&rec.Notes, &ref, &publishedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		l.Price = decimalOrZero(price)
		if photos != "" {
			l.Photos = []byte(photos)
		}
		rec.Listing = l
	case model.KindBundle:
		b := &model.BundleFields{}
		var total, discount string
		if err := row.Scan(&rec.ID, &b.Name, &b.Description, &total, &discount, &photos,
			&b.ListingCount, &status, &rec.Notes, &ref, &publishedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		b.TotalPrice = decimalOrZero(total)
		b.DiscountPercent = decimalOrZero(discount)
		if photos != "" {
			b.Photos = []byte(photos)
		}
		rec.Bundle = b
	default:
		return nil, fmt.Errorf("unknown item kind %q", kind)
	}

	rec.Status = model.Status(status)
	rec.DestinationReference = ref
	rec.PublishedAt = publishedAt
	return rec, nil
}

// FetchQueueCandidates returns records with a status in statuses, oldest first.
func (s *Postgres) FetchQueueCandidates(ctx context.Context, kind model.Kind, statuses []model.Status) ([]model.Record, error) {
	table, err := collection(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, pgSelect(kind)+` WHERE status = ANY($1) ORDER BY created_at, id`,
		statusStrings(statuses))
	if err != nil {
		return nil, unavailable("listing "+table, err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanPostgres(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("listing "+table, err)
	}
	return records, nil
}

func pgPlaceholder(i int) string {
	return "$" + strconv.Itoa(i)
}

// ConditionalUpdate applies patch only while the row still has the expected status.
func (s *Postgres) ConditionalUpdate(ctx context.Context, kind model.Kind, id string, expected model.Status, patch model.Patch) (int64, error) {
	table, err := collection(kind)
	if err != nil {
		return 0, err
	}
	cols, err := patchColumns(patch)
	if err != nil {
		return 0, err
	}

	set, args := setClause(cols, pgPlaceholder)
	n := len(args)
	args = append(args, id, string(expected))

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d AND status = $%d`, table, set, n+1, n+2), args...)
	if err != nil {
		return 0, unavailable("updating "+table, err)
	}
	return tag.RowsAffected(), nil
}

// Update applies patch regardless of the row's status.
func (s *Postgres) Update(ctx context.Context, kind model.Kind, id string, patch model.Patch) error {
	table, err := collection(kind)
	if err != nil {
		return err
	}
	cols, err := patchColumns(patch)
	if err != nil {
		return err
	}

	set, args := setClause(cols, pgPlaceholder)
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, set, len(args)), args...)
	if err != nil {
		return unavailable("updating "+table, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Get returns a record by kind and id.
func (s *Postgres) Get(ctx context.Context, kind model.Kind, id string) (*model.Record, error) {
	table, err := collection(kind)
	if err != nil {
		return nil, err
	}
	rec, err := scanPostgres(kind, s.pool.QueryRow(ctx, pgSelect(kind)+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("getting "+table, err)
	}
	return rec, nil
}

// Insert stores a new listing or bundle.
func (s *Postgres) Insert(ctx context.Context, rec model.Record) (model.Record, error) {
	rec, err := prepareInsert(rec)
	if err != nil {
		return rec, err
	}

	switch rec.Kind {
	case model.KindSingle:
		l := rec.Listing
		_, err = s.pool.Exec(ctx,
			`INSERT INTO listings (id, title, description, price, photos, status, notes,
			   destination_reference, published_at, created_at)
			 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)`,
			rec.ID, l.Title, l.Description, l.Price.String(), nullBytes(l.Photos), string(rec.Status),
			rec.Notes, rec.DestinationReference, rec.PublishedAt, rec.CreatedAt,
		)
	case model.KindBundle:
		b := rec.Bundle
		_, err = s.pool.Exec(ctx,
			`INSERT INTO bundles (id, name, description, total_price, discount_percent, photos,
			   listing_count, status, notes, destination_reference, published_at, created_at)
			 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID, b.Name, b.Description, b.TotalPrice.String(), b.DiscountPercent.String(), nullBytes(b.Photos),
			b.ListingCount, string(rec.Status), rec.Notes, rec.DestinationReference, rec.PublishedAt, rec.CreatedAt,
		)
	}
	if err != nil {
		return rec, unavailable("inserting "+string(rec.Kind), err)
	}
	return rec, nil
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
