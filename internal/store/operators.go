package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/oddaja/internal/model"
)

const operatorColumns = `id, username, password_hash, role, created_at, deleted_at`

func scanOperator(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var deletedAt sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return u, nil
}

// CreateOperator creates an operator account. role must be admin or operator.
func CreateOperator(ctx context.Context, db *sql.DB, username, passwordHash, role string) (*model.User, error) {
	if !model.ValidRole(role) {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
		username, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating operator %s: %w", username, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting operator id: %w", err)
	}
	return GetOperator(ctx, db, id)
}

// GetOperator returns an operator by id, or model.ErrNotFound.
func GetOperator(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u, err := scanOperator(db.QueryRowContext(ctx,
		`SELECT `+operatorColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting operator %d: %w", id, err)
	}
	return u, nil
}

// FindOperator returns the active operator with the given username, or
// model.ErrNotFound.
func FindOperator(ctx context.Context, db *sql.DB, username string) (*model.User, error) {
	u, err := scanOperator(db.QueryRowContext(ctx,
		`SELECT `+operatorColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding operator %s: %w", username, err)
	}
	return u, nil
}

// ListOperators returns active accounts ordered by id.
func ListOperators(ctx context.Context, db *sql.DB) ([]model.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+operatorColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing operators: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanOperator(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning operator: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CountAdmins returns the number of active admin accounts.
func CountAdmins(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ? AND deleted_at IS NULL`, model.RoleAdmin,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return n, nil
}

// execActive runs an update against one active account and reports
// model.ErrNotFound when nothing matched.
func execActive(ctx context.Context, db *sql.DB, op, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// SetOperatorRole changes an account's role.
func SetOperatorRole(ctx context.Context, db *sql.DB, id int64, role string) error {
	if !model.ValidRole(role) {
		return fmt.Errorf("invalid role %q", role)
	}
	return execActive(ctx, db, "setting operator role",
		`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`, role, id)
}

// SetOperatorPassword replaces an account's password hash.
func SetOperatorPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	return execActive(ctx, db, "setting operator password",
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`, passwordHash, id)
}

// DisableOperator soft-deletes an account. The username becomes free again.
func DisableOperator(ctx context.Context, db *sql.DB, id int64) error {
	return execActive(ctx, db, "disabling operator",
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
}
