package items

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

// Store is the stock ledger. It is the only code that writes
// items.quantity; every write is a single conditional UPDATE so same-item
// operations serialize on the row.
type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const itemCols = `id, name, category, measuring_unit, quantity, description, refundable, status,
	deleted_by, deleted_at, added_by, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var (
		it        Item
		unit      string
		status    string
		deletedBy sql.NullString
		deletedAt sql.NullTime
	)
	if err := row.Scan(&it.ID, &it.Name, &it.Category, &unit, &it.Quantity, &it.Description,
		&it.Refundable, &status, &deletedBy, &deletedAt, &it.AddedBy, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.Unit = Unit(unit)
	it.Status = Status(status)
	if deletedAt.Valid {
		it.Deleted = &Deletion{By: deletedBy.String, At: deletedAt.Time}
	}
	return &it, nil
}

// Get reads one item through q, which may be a transaction.
func (s *Store) Get(ctx context.Context, q db.DBTX, id string) (*Item, error) {
	it, err := scanItem(q.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

func (s *Store) Insert(ctx context.Context, q db.DBTX, it *Item) error {
	const stmt = `
INSERT INTO items (id, name, name_key, category, measuring_unit, quantity, description, refundable, status, added_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, stmt, it.ID, it.Name, db.FoldKey(it.Name), it.Category, string(it.Unit), it.Quantity,
		it.Description, it.Refundable, string(it.Status), it.AddedBy, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// ===== Ledger =====

// Release takes qty units out of stock. The status is assigned before the
// quantity so it sees the old value on both mysql (left-to-right SET) and
// sqlite (all expressions read the old row).
func (s *Store) Release(ctx context.Context, tx db.DBTX, itemID string, qty int, now time.Time) (*Item, error) {
	if qty <= 0 {
		return nil, apperr.Invalid("quantity must be > 0")
	}
	const stmt = `
UPDATE items
SET status = CASE WHEN quantity = ? THEN 'out' ELSE 'in' END,
    quantity = quantity - ?,
    updated_at = ?
WHERE id = ? AND deleted_at IS NULL AND quantity >= ?`
	res, err := tx.ExecContext(ctx, stmt, qty, qty, now, itemID, qty)
	if err != nil {
		return nil, fmt.Errorf("release stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.classifyRelease(ctx, tx, itemID)
	}
	return s.Get(ctx, tx, itemID)
}

// classifyRelease explains why the conditional release matched no row.
func (s *Store) classifyRelease(ctx context.Context, tx db.DBTX, itemID string) error {
	var (
		qty       int
		deletedAt sql.NullTime
	)
	err := tx.QueryRowContext(ctx, `SELECT quantity, deleted_at FROM items WHERE id = ?`, itemID).Scan(&qty, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("item not found")
	}
	if err != nil {
		return fmt.Errorf("classify release: %w", err)
	}
	if deletedAt.Valid {
		return apperr.Conflict("item is deleted")
	}
	return apperr.InsufficientStock(qty)
}

// Restock puts qty units back. A soft-deleted item keeps status deleted.
func (s *Store) Restock(ctx context.Context, tx db.DBTX, itemID string, qty int, now time.Time) (*Item, error) {
	if qty <= 0 {
		return nil, apperr.Invalid("quantity must be > 0")
	}
	const stmt = `
UPDATE items
SET quantity = quantity + ?,
    status = CASE WHEN deleted_at IS NOT NULL THEN 'deleted' ELSE 'in' END,
    updated_at = ?
WHERE id = ?`
	res, err := tx.ExecContext(ctx, stmt, qty, now, itemID)
	if err != nil {
		return nil, fmt.Errorf("restock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFound("item not found")
	}
	return s.Get(ctx, tx, itemID)
}

// Overwrite replaces every editable field and recomputes status unless the
// item is deleted.
func (s *Store) Overwrite(ctx context.Context, tx db.DBTX, it *Item, now time.Time) error {
	const stmt = `
UPDATE items
SET name = ?, name_key = ?, category = ?, measuring_unit = ?, quantity = ?, description = ?, refundable = ?,
    status = CASE WHEN deleted_at IS NOT NULL THEN 'deleted' WHEN ? = 0 THEN 'out' ELSE 'in' END,
    updated_at = ?
WHERE id = ?`
	res, err := tx.ExecContext(ctx, stmt, it.Name, db.FoldKey(it.Name), it.Category, string(it.Unit), it.Quantity,
		it.Description, it.Refundable, it.Quantity, now, it.ID)
	if err != nil {
		return fmt.Errorf("edit item: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return apperr.NotFound("item not found")
	}
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, tx db.DBTX, itemID, by string, now time.Time) error {
	const stmt = `
UPDATE items SET status = 'deleted', deleted_by = ?, deleted_at = ?, updated_at = ?
WHERE id = ? AND deleted_at IS NULL`
	res, err := tx.ExecContext(ctx, stmt, by, now, now, itemID)
	if err != nil {
		return fmt.Errorf("soft delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, tx, itemID); err != nil {
			return err
		}
		return apperr.Conflict("item is already deleted")
	}
	return nil
}

func (s *Store) Restore(ctx context.Context, tx db.DBTX, itemID string, now time.Time) error {
	const stmt = `
UPDATE items
SET status = CASE WHEN quantity = 0 THEN 'out' ELSE 'in' END,
    deleted_by = NULL, deleted_at = NULL, updated_at = ?
WHERE id = ? AND deleted_at IS NOT NULL`
	res, err := tx.ExecContext(ctx, stmt, now, itemID)
	if err != nil {
		return fmt.Errorf("restore item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, tx, itemID); err != nil {
			return err
		}
		return apperr.Invalid("item is not deleted")
	}
	return nil
}

// ===== Listing =====

func (s *Store) List(ctx context.Context, f Filter, p db.Page) ([]Item, int64, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != nil {
		where = append(where, "category = ?")
		args = append(args, *f.Category)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	} else if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if f.Refundable != nil {
		where = append(where, "refundable = ?")
		args = append(args, *f.Refundable)
	}
	if f.Name != nil {
		where = append(where, "name_key LIKE ? ESCAPE '"+db.LikeEscape+"'")
		args = append(args, db.ContainsPattern(*f.Name))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	q := `SELECT ` + itemCols + ` FROM items` + cond +
		` ORDER BY created_at ` + p.Direction() + `, id ` + p.Direction() + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	out := make([]Item, 0, p.Limit)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *it)
	}
	return out, total, rows.Err()
}

// AllActive streams every non-deleted item in name order to fn.
func (s *Store) AllActive(ctx context.Context, fn func(Item) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM items WHERE deleted_at IS NULL ORDER BY name, id`)
	if err != nil {
		return fmt.Errorf("scan items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return err
		}
		if err := fn(*it); err != nil {
			return err
		}
	}
	return rows.Err()
}

// AddedByName resolves the creator's display name. A removed account yields
// an empty name.
func (s *Store) AddedByName(ctx context.Context, q db.DBTX, accountID string) (string, error) {
	var name string
	err := q.QueryRowContext(ctx, `SELECT name FROM accounts WHERE id = ?`, accountID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("item creator: %w", err)
	}
	return name, nil
}

func (s *Store) ReleasesFor(ctx context.Context, q db.DBTX, itemID string) ([]ReleaseSummary, error) {
	const stmt = `
SELECT r.id, r.quantity, r.qty_returned, r.recipient, r.released_by, COALESCE(a.name, ''), r.reason,
       r.returnable, r.expected_return_by, r.approval_status, r.return_status, r.created_at
FROM releases r
LEFT JOIN accounts a ON a.id = r.released_by
WHERE r.item_id = ?
ORDER BY r.created_at DESC, r.id DESC`
	rows, err := q.QueryContext(ctx, stmt, itemID)
	if err != nil {
		return nil, fmt.Errorf("item releases: %w", err)
	}
	defer rows.Close()

	out := []ReleaseSummary{}
	for rows.Next() {
		var (
			r   ReleaseSummary
			exp sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Quantity, &r.QtyReturned, &r.Recipient, &r.ReleasedBy, &r.ReleasedByName,
			&r.Reason, &r.Returnable, &exp, &r.ApprovalStatus, &r.ReturnStatus, &r.CreatedAt); err != nil {
			return nil, err
		}
		if exp.Valid {
			t := exp.Time
			r.ExpectedReturnBy = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReturnsFor(ctx context.Context, q db.DBTX, itemIDs ...string) (map[string][]ReturnSummary, error) {
	out := map[string][]ReturnSummary{}
	if len(itemIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}
	stmt := `
SELECT item_id, id, release_id, returned_by, quantity, item_condition, status, created_at
FROM returns
WHERE item_id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",") + `)
ORDER BY created_at DESC, id DESC`
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("item returns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			itemID string
			r      ReturnSummary
			rel    sql.NullString
		)
		if err := rows.Scan(&itemID, &r.ID, &rel, &r.ReturnedBy, &r.Quantity, &r.Condition, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		if rel.Valid {
			r.ReleaseID = &rel.String
		}
		out[itemID] = append(out[itemID], r)
	}
	return out, rows.Err()
}
