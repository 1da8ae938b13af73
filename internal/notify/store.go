package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storeroom-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func (s *Store) Insert(ctx context.Context, n *Notification) error {
	meta, err := EncodeMeta(n.Meta)
	if err != nil {
		return err
	}
	var metaArg any
	if meta != nil {
		metaArg = string(meta)
	}
	const q = `
INSERT INTO notifications (id, message, item_id, to_user, type, meta, is_read, created_at)
VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
	_, err = s.db.ExecContext(ctx, q,
		n.ID, n.Message, nullable(n.ItemID), nullable(n.ToUser), string(n.Type), metaArg, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

type ListFilter struct {
	UserID     string
	UnreadOnly bool
	Type       *Type
}

// List returns the user's own notifications plus broadcasts (no target user).
func (s *Store) List(ctx context.Context, f ListFilter, p db.Page) ([]Notification, int64, error) {
	where := "WHERE (to_user = ? OR to_user IS NULL)"
	args := []any{f.UserID}
	if f.UnreadOnly {
		where += " AND is_read = 0"
	}
	if f.Type != nil {
		where += " AND type = ?"
		args = append(args, string(*f.Type))
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	q := `SELECT id, message, item_id, to_user, type, meta, is_read, created_at
FROM notifications ` + where + ` ORDER BY created_at ` + p.Direction() + `, id ` + p.Direction() + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0, p.Limit)
	for rows.Next() {
		var (
			n              Notification
			itemID, toUser sql.NullString
			meta           sql.NullString
			typ            string
		)
		if err := rows.Scan(&n.ID, &n.Message, &itemID, &toUser, &typ, &meta, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		n.Type = Type(typ)
		if itemID.Valid {
			n.ItemID = &itemID.String
		}
		if toUser.Valid {
			n.ToUser = &toUser.String
		}
		if meta.Valid {
			if n.Meta, err = DecodeMeta(n.Type, []byte(meta.String)); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// MarkRead flips the read flag on a notification visible to userID.
// It reports false when no such notification exists.
func (s *Store) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	const q = `UPDATE notifications SET is_read = 1 WHERE id = ? AND (to_user = ? OR to_user IS NULL)`
	res, err := s.db.ExecContext(ctx, q, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	// already read rows report 0 affected on mysql
	var one int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM notifications WHERE id = ? AND (to_user = ? OR to_user IS NULL)`, id, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
