package returns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const selectReturn = `
SELECT t.id, t.item_id, COALESCE(i.name, ''), t.release_id, t.returned_by, t.returned_by_email,
       t.quantity, t.item_condition, t.remarks, t.processed_by, COALESCE(a.name, ''),
       t.status, t.created_at, t.updated_at
FROM returns t
LEFT JOIN items i ON i.id = t.item_id
LEFT JOIN accounts a ON a.id = t.processed_by`

func scanReturn(row interface{ Scan(...any) error }) (*Return, error) {
	var (
		r         Return
		releaseID sql.NullString
		cond      string
		status    string
	)
	if err := row.Scan(&r.ID, &r.ItemID, &r.ItemName, &releaseID, &r.ReturnedBy, &r.ReturnedByEmail,
		&r.Quantity, &cond, &r.Remarks, &r.ProcessedBy, &r.ProcessedByName,
		&status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if releaseID.Valid {
		r.ReleaseID = &releaseID.String
	}
	r.Condition = Condition(cond)
	r.Status = Status(status)
	return &r, nil
}

func (s *Store) Insert(ctx context.Context, tx db.DBTX, r *Return) error {
	const q = `
INSERT INTO returns (id, item_id, release_id, returned_by, returned_by_email, quantity, item_condition,
                     remarks, processed_by, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var releaseID any
	if r.ReleaseID != nil {
		releaseID = *r.ReleaseID
	}
	_, err := tx.ExecContext(ctx, q, r.ID, r.ItemID, releaseID, r.ReturnedBy, r.ReturnedByEmail, r.Quantity,
		string(r.Condition), r.Remarks, r.ProcessedBy, string(r.Status), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert return: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, q db.DBTX, id string) (*Return, error) {
	r, err := scanReturn(q.QueryRowContext(ctx, selectReturn+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("return not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get return: %w", err)
	}
	return r, nil
}

// Update writes condition, remarks and status. Quantity is never touched.
func (s *Store) Update(ctx context.Context, r *Return, now time.Time) error {
	const q = `UPDATE returns SET item_condition = ?, remarks = ?, status = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, string(r.Condition), r.Remarks, string(r.Status), now, r.ID)
	if err != nil {
		return fmt.Errorf("update return: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return apperr.NotFound("return not found")
	}
	return nil
}

func (s *Store) List(ctx context.Context, f Filter, p db.Page) ([]Return, int64, error) {
	var (
		where []string
		args  []any
	)
	if f.ItemID != nil {
		where = append(where, "t.item_id = ?")
		args = append(args, *f.ItemID)
	}
	if f.ReleaseID != nil {
		where = append(where, "t.release_id = ?")
		args = append(args, *f.ReleaseID)
	}
	if f.Condition != nil {
		where = append(where, "t.item_condition = ?")
		args = append(args, string(*f.Condition))
	}
	if f.Status != nil {
		where = append(where, "t.status = ?")
		args = append(args, string(*f.Status))
	} else if !f.IncludeArchived {
		where = append(where, "t.status <> 'archived'")
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM returns t`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count returns: %w", err)
	}

	q := selectReturn + cond +
		` ORDER BY t.created_at ` + p.Direction() + `, t.id ` + p.Direction() + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list returns: %w", err)
	}
	defer rows.Close()

	out := make([]Return, 0, p.Limit)
	for rows.Next() {
		r, err := scanReturn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}
