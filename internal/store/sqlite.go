package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/oddaja/internal/model"
)

// SQLite is the default item store, backed by the same database as the
// operator accounts.
type SQLite struct {
	DB *sql.DB
}

// NewSQLite wraps an open database. The schema must already exist.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{DB: db}
}

const (
	listingColumns = `id, title, description, price, photos, status, notes, destination_reference, published_at, created_at`
	bundleColumns  = `id, name, description, total_price, discount_percent, photos, listing_count, status, notes, destination_reference, published_at, created_at`
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row selected with listingColumns or bundleColumns.
func scanRecord(kind model.Kind, row rowScanner) (*model.Record, error) {
	rec := &model.Record{Kind: kind}
	var (
		description, photos, notes, ref sql.NullString
		status                          string
		publishedAt                     sql.NullTime
	)

	switch kind {
	case model.KindSingle:
		l := &model.ListingFields{}
		if err := row.Scan(&rec.ID, &l.Title, &description, &l.Price, &photos, &status,
			&notes, &ref, &publishedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		l.Description = description.String
		if photos.Valid {
			l.Photos = []byte(photos.String)
		}
		rec.Listing = l
	case model.KindBundle:
		b := &model.BundleFields{}
		if err := row.Scan(&rec.ID, &b.Name, &description, &b.TotalPrice, &b.DiscountPercent, &photos,
			&b.ListingCount, &status, &notes, &ref, &publishedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		b.Description = description.String
		if photos.Valid {
			b.Photos = []byte(photos.String)
		}
		rec.Bundle = b
	default:
		return nil, fmt.Errorf("unknown item kind %q", kind)
	}

	rec.Status = model.Status(status)
	rec.Notes = notes.String
	if ref.Valid {
		rec.DestinationReference = &ref.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		rec.PublishedAt = &t
	}
	return rec, nil
}

func columnsFor(kind model.Kind) string {
	if kind == model.KindBundle {
		return bundleColumns
	}
	return listingColumns
}

// FetchQueueCandidates returns records with a status in statuses, oldest first.
func (s *SQLite) FetchQueueCandidates(ctx context.Context, kind model.Kind, statuses []model.Status) ([]model.Record, error) {
	table, err := collection(kind)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+columnsFor(kind)+` FROM `+table+`
		 WHERE status IN (`+placeholders+`) ORDER BY created_at, id`, args...,
	)
	if err != nil {
		return nil, unavailable("listing "+table, err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecord(kind, rows)
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

// ConditionalUpdate applies patch only while the row still has the expected status.
func (s *SQLite) ConditionalUpdate(ctx context.Context, kind model.Kind, id string, expected model.Status, patch model.Patch) (int64, error) {
	table, err := collection(kind)
	if err != nil {
		return 0, err
	}
	cols, err := patchColumns(patch)
	if err != nil {
		return 0, err
	}

	set, args := setClause(cols, func(int) string { return "?" })
	args = append(args, id, string(expected))

	result, err := s.DB.ExecContext(ctx,
		`UPDATE `+table+` SET `+set+` WHERE id = ? AND status = ?`, args...,
	)
	if err != nil {
		return 0, unavailable("updating "+table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, unavailable("updating "+table, err)
	}
	return n, nil
}

// Update applies patch regardless of the row's status.
func (s *SQLite) Update(ctx context.Context, kind model.Kind, id string, patch model.Patch) error {
	table, err := collection(kind)
	if err != nil {
		return err
	}
	cols, err := patchColumns(patch)
	if err != nil {
		return err
	}

	set, args := setClause(cols, func(int) string { return "?" })
	args = append(args, id)

	result, err := s.DB.ExecContext(ctx, `UPDATE `+table+` SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return unavailable("updating "+table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return unavailable("updating "+table, err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Get returns a record by kind and id.
func (s *SQLite) Get(ctx context.Context, kind model.Kind, id string) (*model.Record, error) {
	table, err := collection(kind)
	if err != nil {
		return nil, err
	}
	row := s.DB.QueryRowContext(ctx, `SELECT `+columnsFor(kind)+` FROM `+table+` WHERE id = ?`, id)
	rec, err := scanRecord(kind, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("getting "+table, err)
	}
	return rec, nil
}

// Insert stores a new listing or bundle.
func (s *SQLite) Insert(ctx context.Context, rec model.Record) (model.Record, error) {
	rec, err := prepareInsert(rec)
	if err != nil {
		return rec, err
	}

	var publishedAt *time.Time
	if rec.PublishedAt != nil {
		t := rec.PublishedAt.UTC()
		publishedAt = &t
	}

	switch rec.Kind {
	case model.KindSingle:
		l := rec.Listing
		_, err = s.DB.ExecContext(ctx,
			`INSERT INTO listings (`+listingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, l.Title, l.Description, l.Price.String(), nullBytes(l.Photos), string(rec.Status),
			rec.Notes, rec.DestinationReference, publishedAt, rec.CreatedAt,
		)
	case model.KindBundle:
		b := rec.Bundle
		_, err = s.DB.ExecContext(ctx,
			`INSERT INTO bundles (`+bundleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, b.Name, b.Description, b.TotalPrice.String(), b.DiscountPercent.String(), nullBytes(b.Photos),
			b.ListingCount, string(rec.Status), rec.Notes, rec.DestinationReference, publishedAt, rec.CreatedAt,
		)
	}
	if err != nil {
		return rec, fmt.Errorf("inserting %s %s: %w", rec.Kind, rec.ID, err)
	}
	return rec, nil
}

// Close is a no-op; the database handle is owned by the caller.
func (s *SQLite) Close() error {
	return nil
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
