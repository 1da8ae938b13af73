package releases

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

const selectRelease = `
SELECT r.id, r.item_id, COALESCE(i.name, ''), r.quantity, r.qty_returned, r.recipient,
       r.released_by, COALESCE(a.name, ''), r.reason, r.returnable, r.expected_return_by,
       r.approval_status, r.return_status, r.created_at, r.updated_at
FROM releases r
LEFT JOIN items i ON i.id = r.item_id
LEFT JOIN accounts a ON a.id = r.released_by`

func scanRelease(row interface{ Scan(...any) error }) (*Release, error) {
	var (
		r        Release
		exp      sql.NullTime
		approval string
		retState string
	)
	if err := row.Scan(&r.ID, &r.ItemID, &r.ItemName, &r.Quantity, &r.QtyReturned, &r.Recipient,
		&r.ReleasedBy, &r.ReleasedByName, &r.Reason, &r.Returnable, &exp,
		&approval, &retState, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if exp.Valid {
		t := exp.Time
		r.ExpectedReturnBy = &t
	}
	r.Approval = Approval(approval)
	r.ReturnStatus = ReturnState(retState)
	return &r, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (s *Store) Insert(ctx context.Context, tx db.DBTX, r *Release) error {
	const q = `
INSERT INTO releases (id, item_id, quantity, qty_returned, recipient, recipient_key, released_by, reason, returnable,
                      expected_return_by, approval_status, return_status, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, r.ID, r.ItemID, r.Quantity, r.Recipient, db.FoldKey(r.Recipient), r.ReleasedBy, r.Reason,
		r.Returnable, nullTime(r.ExpectedReturnBy), string(r.Approval), string(r.ReturnStatus), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert release: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, q db.DBTX, id string) (*Release, error) {
	r, err := scanRelease(q.QueryRowContext(ctx, selectRelease+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("release not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get release: %w", err)
	}
	return r, nil
}

// SetApproval moves the record from one approval state to another. It fails
// with a conflict if the state changed underneath the caller.
func (s *Store) SetApproval(ctx context.Context, tx db.DBTX, id string, from, to Approval, now time.Time) error {
	const q = `UPDATE releases SET approval_status = ?, updated_at = ? WHERE id = ? AND approval_status = ?`
	res, err := tx.ExecContext(ctx, q, string(to), now, id, string(from))
	if err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 && from != to {
		return apperr.Conflict("release approval changed concurrently")
	}
	return nil
}

// ApplyReturn books qty against the release. return_status is assigned
// first so both backends evaluate it against the old qty_returned. With
// capped set the update only matches while qty fits the outstanding balance,
// so concurrent returns cannot book more than was released.
func (s *Store) ApplyReturn(ctx context.Context, tx db.DBTX, id string, qty int, capped bool, now time.Time) error {
	q := `
UPDATE releases
SET return_status = CASE WHEN qty_returned + ? >= quantity THEN 'fully_returned' ELSE 'partially_returned' END,
    qty_returned = qty_returned + ?,
    updated_at = ?
WHERE id = ?`
	args := []any{qty, qty, now, id}
	if capped {
		q += ` AND qty_returned + ? <= quantity`
		args = append(args, qty)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("apply return: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	rel, err := s.Get(ctx, tx, id)
	if err != nil {
		return err
	}
	return apperr.Invalidf("return quantity %d exceeds outstanding %d", qty, rel.Outstanding())
}

func (s *Store) Update(ctx context.Context, tx db.DBTX, r *Release, now time.Time) error {
	const q = `
UPDATE releases SET item_id = ?, recipient = ?, recipient_key = ?, reason = ?, returnable = ?, expected_return_by = ?, updated_at = ?
WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, r.ItemID, r.Recipient, db.FoldKey(r.Recipient), r.Reason, r.Returnable, nullTime(r.ExpectedReturnBy), now, r.ID)
	if err != nil {
		return fmt.Errorf("update release: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM releases WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete release: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) ItemExists(ctx context.Context, q db.DBTX, itemID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = ?`, itemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) List(ctx context.Context, f Filter, p db.Page) ([]Release, int64, error) {
	var (
		where []string
		args  []any
	)
	if f.ItemID != nil {
		where = append(where, "r.item_id = ?")
		args = append(args, *f.ItemID)
	}
	if f.ReleasedBy != nil {
		where = append(where, "r.released_by = ?")
		args = append(args, *f.ReleasedBy)
	}
	if f.Recipient != nil {
		where = append(where, "r.recipient_key LIKE ? ESCAPE '"+db.LikeEscape+"'")
		args = append(args, db.ContainsPattern(*f.Recipient))
	}
	if f.Approval != nil {
		where = append(where, "r.approval_status = ?")
		args = append(args, string(*f.Approval))
	}
	if f.From != nil {
		where = append(where, "r.created_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "r.created_at <= ?")
		args = append(args, *f.To)
	}
	if f.Returnable != nil {
		where = append(where, "r.returnable = ?")
		args = append(args, *f.Returnable)
	}
	if f.OutstandingOnly {
		where = append(where, "r.returnable = 1 AND r.qty_returned < r.quantity")
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM releases r`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count releases: %w", err)
	}

	q := selectRelease + cond +
		` ORDER BY r.created_at ` + p.Direction() + `, r.id ` + p.Direction() + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list releases: %w", err)
	}
	defer rows.Close()

	out := make([]Release, 0, p.Limit)
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// OverdueCandidates returns returnable releases with a due date that are not
// yet fully returned, oldest due date first. The caller applies the overdue
// predicate.
func (s *Store) OverdueCandidates(ctx context.Context) ([]Release, error) {
	q := selectRelease + `
WHERE r.returnable = 1 AND r.expected_return_by IS NOT NULL AND r.return_status <> 'fully_returned'
ORDER BY r.expected_return_by ASC, r.id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("overdue releases: %w", err)
	}
	defer rows.Close()

	var out []Release
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
