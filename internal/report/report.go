package report

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"storeroom-backend/internal/inventory/items"
)

type ReleaseRow struct {
	ID           string
	ItemID       string
	ItemName     string
	Quantity     int
	QtyReturned  int
	Recipient    string
	ReleasedBy   string
	Approval     string
	ReturnStatus string
	CreatedAt    time.Time
}

type ReturnRow struct {
	ID         string
	ItemID     string
	ItemName   string
	Quantity   int
	ReturnedBy string
	Condition  string
	Status     string
	CreatedAt  time.Time
}

// ItemTotals is one line of the monthly summary sheet.
type ItemTotals struct {
	ItemID   string
	Name     string
	Category string
	Unit     string
	Released int
	Returned int
	OnHand   int
}

type Monthly struct {
	From     time.Time
	To       time.Time
	Releases []ReleaseRow
	Returns  []ReturnRow
	Totals   []ItemTotals
}

type Service struct {
	db     *sql.DB
	ledger *items.Store
}

func NewService(conn *sql.DB, ledger *items.Store) *Service {
	return &Service{db: conn, ledger: ledger}
}

// MonthStart truncates t to the first of its month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Monthly collects the releases and returns created in the month starting at
// from, plus per-item totals against current stock.
func (s *Service) Monthly(ctx context.Context, from time.Time) (*Monthly, error) {
	from = MonthStart(from)
	m := &Monthly{From: from, To: from.AddDate(0, 1, 0)}

	var err error
	if m.Releases, err = s.releases(ctx, m.From, m.To); err != nil {
		return nil, err
	}
	if m.Returns, err = s.returns(ctx, m.From, m.To); err != nil {
		return nil, err
	}

	totals := map[string]*ItemTotals{}
	err = s.ledger.AllActive(ctx, func(it items.Item) error {
		totals[it.ID] = &ItemTotals{
			ItemID: it.ID, Name: it.Name, Category: it.Category,
			Unit: string(it.Unit), OnHand: it.Quantity,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	line := func(id, name string) *ItemTotals {
		t, ok := totals[id]
		if !ok {
			t = &ItemTotals{ItemID: id, Name: name}
			totals[id] = t
		}
		return t
	}
	for _, r := range m.Releases {
		line(r.ItemID, r.ItemName).Released += r.Quantity
	}
	for _, r := range m.Returns {
		line(r.ItemID, r.ItemName).Returned += r.Quantity
	}
	for _, t := range totals {
		m.Totals = append(m.Totals, *t)
	}
	sort.Slice(m.Totals, func(i, j int) bool {
		if m.Totals[i].Name != m.Totals[j].Name {
			return m.Totals[i].Name < m.Totals[j].Name
		}
		return m.Totals[i].ItemID < m.Totals[j].ItemID
	})
	return m, nil
}

func (s *Service) releases(ctx context.Context, from, to time.Time) ([]ReleaseRow, error) {
	const q = `
SELECT r.id, r.item_id, COALESCE(i.name, ''), r.quantity, r.qty_returned, r.recipient,
       COALESCE(a.name, r.released_by), r.approval_status, r.return_status, r.created_at
FROM releases r
LEFT JOIN items i ON i.id = r.item_id
LEFT JOIN accounts a ON a.id = r.released_by
WHERE r.created_at >= ? AND r.created_at < ?
ORDER BY r.created_at, r.id`
	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("report releases: %w", err)
	}
	defer rows.Close()

	var out []ReleaseRow
	for rows.Next() {
		var r ReleaseRow
		if err := rows.Scan(&r.ID, &r.ItemID, &r.ItemName, &r.Quantity, &r.QtyReturned, &r.Recipient,
			&r.ReleasedBy, &r.Approval, &r.ReturnStatus, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Service) returns(ctx context.Context, from, to time.Time) ([]ReturnRow, error) {
	const q = `
SELECT t.id, t.item_id, COALESCE(i.name, ''), t.quantity, t.returned_by, t.item_condition, t.status, t.created_at
FROM returns t
LEFT JOIN items i ON i.id = t.item_id
WHERE t.created_at >= ? AND t.created_at < ?
ORDER BY t.created_at, t.id`
	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("report returns: %w", err)
	}
	defer rows.Close()

	var out []ReturnRow
	for rows.Next() {
		var r ReturnRow
		if err := rows.Scan(&r.ID, &r.ItemID, &r.ItemName, &r.Quantity, &r.ReturnedBy,
			&r.Condition, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Items returns every live item for the CSV export.
func (s *Service) Items(ctx context.Context) ([]items.Item, error) {
	var out []items.Item
	err := s.ledger.AllActive(ctx, func(it items.Item) error {
		out = append(out, it)
		return nil
	})
	return out, err
}
