package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const accountCols = `id, name, email, password_hash, role, disabled, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.Disabled, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByID returns nil, nil when no account matches.
func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetByEmail matches case-insensitively and returns nil, nil when absent.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE LOWER(email) = LOWER(?) LIMIT 1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO accounts (id, name, email, password_hash, role, disabled, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, a.ID, a.Name, a.Email, a.PasswordHash, a.Role, a.Disabled, a.CreatedAt)
	return err
}

// Update writes every mutable column of a.
func (s *Store) Update(ctx context.Context, a *Account) (int64, error) {
	const q = `UPDATE accounts SET name = ?, email = ?, password_hash = ?, role = ?, disabled = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, a.Name, a.Email, a.PasswordHash, a.Role, a.Disabled, a.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) List(ctx context.Context, role *string, p db.Page) ([]Account, int64, error) {
	where := ""
	var args []any
	if role != nil {
		where = " WHERE role = ?"
		args = append(args, *role)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	q := `SELECT ` + accountCols + ` FROM accounts` + where +
		` ORDER BY created_at ` + p.Direction() + `, id ` + p.Direction() + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]Account, 0, p.Limit)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// ===== notify.Directory =====

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *Store) recipients(ctx context.Context, col string, vals []string) ([]notify.Recipient, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	q := `SELECT id, name, email FROM accounts WHERE disabled = 0 AND ` + col +
		` IN (` + placeholders(len(vals)) + `) ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	defer rows.Close()

	var out []notify.Recipient
	for rows.Next() {
		var r notify.Recipient
		if err := rows.Scan(&r.ID, &r.Name, &r.Email); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) RecipientsByRole(ctx context.Context, roles ...string) ([]notify.Recipient, error) {
	return s.recipients(ctx, "role", roles)
}

func (s *Store) RecipientsByID(ctx context.Context, ids ...string) ([]notify.Recipient, error) {
	return s.recipients(ctx, "id", ids)
}
