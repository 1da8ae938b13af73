package items

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"storeroom-backend/internal/alerts"
	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/db"
	"storeroom-backend/internal/platform/ids"
)

type Service struct {
	db    *sql.DB
	store *Store
	eval  *alerts.Evaluator
	clock ids.Clock
	id    ids.IDGen
}

func NewService(conn *sql.DB, eval *alerts.Evaluator, clock ids.Clock, idgen ids.IDGen) *Service {
	return &Service{
		db:    conn,
		store: NewStore(conn),
		eval:  eval,
		clock: clock,
		id:    idgen,
	}
}

// Ledger exposes the stock ledger to the release and return services.
func (s *Service) Ledger() *Store { return s.store }

// StockOf is the evaluator's view of an item.
func StockOf(it *Item) alerts.Stock {
	return alerts.Stock{
		ItemID:   it.ID,
		Name:     it.Name,
		Category: it.Category,
		Unit:     string(it.Unit),
		Quantity: it.Quantity,
	}
}

func normalize(name, category, unit, description string) (string, string, Unit, string, error) {
	name = strings.TrimSpace(name)
	category = strings.TrimSpace(category)
	if name == "" || category == "" {
		return "", "", "", "", apperr.Invalid("name and category are required")
	}
	if unit == "" {
		unit = string(DefaultUnit)
	}
	if !ValidUnit(unit) {
		return "", "", "", "", apperr.Invalidf("unknown measuring unit %q", unit)
	}
	return name, category, Unit(unit), strings.TrimSpace(description), nil
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*Item, []notify.Event, error) {
	if req.Quantity == nil {
		return nil, nil, apperr.Invalid("quantity is required")
	}
	if *req.Quantity < 0 {
		return nil, nil, apperr.Invalid("quantity must be >= 0")
	}
	name, category, unit, desc, err := normalize(req.Name, req.Category, req.Unit, req.Description)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	it := &Item{
		ID:          s.id.NewULID(now),
		Name:        name,
		Category:    category,
		Unit:        unit,
		Quantity:    *req.Quantity,
		Description: desc,
		Refundable:  req.Refundable,
		Status:      StatusFor(*req.Quantity, false),
		AddedBy:     actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, s.db, it); err != nil {
		return nil, nil, err
	}

	events := []notify.Event{{
		Type:    notify.TypeAddItem,
		Message: fmt.Sprintf("Item %q (%s) added by %s.", it.Name, it.Category, actor.Name),
		ItemID:  it.ID,
		ToUser:  actor.ID,
		Meta: notify.AddItemMeta{
			ItemName:   it.Name,
			Category:   it.Category,
			Unit:       string(it.Unit),
			Quantity:   it.Quantity,
			Refundable: it.Refundable,
			UserName:   actor.Name,
			UserEmail:  actor.Email,
		},
		Email: &notify.EmailSpec{Subject: "New item added: " + it.Name, Admin: true},
	}}
	if ev := s.eval.LowStockEvent(StockOf(it)); ev != nil {
		events = append(events, *ev)
	}
	return it, events, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	var d Detail
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.store.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		d.Item = *it
		if d.AddedByName, err = s.store.AddedByName(ctx, tx, it.AddedBy); err != nil {
			return err
		}
		if d.Releases, err = s.store.ReleasesFor(ctx, tx, id); err != nil {
			return err
		}
		rets, err := s.store.ReturnsFor(ctx, tx, id)
		if err != nil {
			return err
		}
		d.Returns = rets[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	if d.Returns == nil {
		d.Returns = []ReturnSummary{}
	}
	return &d, nil
}

func (s *Service) List(ctx context.Context, f Filter, p db.Page) (ListResult, error) {
	list, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: list, Total: total, NextOffset: db.NextOffset(total, p)}, nil
}

// ListRefundable returns every live refundable item with its returns.
func (s *Service) ListRefundable(ctx context.Context) ([]RefundableItem, error) {
	yes := true
	list, _, err := s.store.List(ctx, Filter{Refundable: &yes}, db.Page{Limit: db.MaxLimit, Order: "desc"})
	if err != nil {
		return nil, err
	}
	itemIDs := make([]string, len(list))
	for i, it := range list {
		itemIDs[i] = it.ID
	}
	rets, err := s.store.ReturnsFor(ctx, s.db, itemIDs...)
	if err != nil {
		return nil, err
	}
	out := make([]RefundableItem, len(list))
	for i, it := range list {
		out[i] = RefundableItem{Item: it, Returns: rets[it.ID]}
		if out[i].Returns == nil {
			out[i].Returns = []ReturnSummary{}
		}
	}
	return out, nil
}

// Edit overwrites the item. Outstanding releases are not reconciled against
// a changed quantity.
func (s *Service) Edit(ctx context.Context, actor auth.Actor, id string, req EditRequest) (*Item, []notify.Event, error) {
	if req.Quantity == nil || *req.Quantity < 0 {
		return nil, nil, apperr.Invalid("quantity must be >= 0")
	}
	name, category, unit, desc, err := normalize(req.Name, req.Category, req.Unit, req.Description)
	if err != nil {
		return nil, nil, err
	}

	var before, after *Item
	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var err error
		if before, err = s.store.Get(ctx, tx, id); err != nil {
			return err
		}
		next := *before
		next.Name, next.Category, next.Unit, next.Description = name, category, unit, desc
		next.Quantity = *req.Quantity
		next.Refundable = req.Refundable
		if err := s.store.Overwrite(ctx, tx, &next, s.clock.Now()); err != nil {
			return err
		}
		after, err = s.store.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	events := []notify.Event{{
		Type:    notify.TypeUpdateItem,
		Message: fmt.Sprintf("Item %q updated by %s.", after.Name, actor.Name),
		ItemID:  after.ID,
		ToUser:  actor.ID,
		Meta: notify.UpdateItemMeta{
			ItemName:     after.Name,
			Category:     after.Category,
			Unit:         string(after.Unit),
			PrevQuantity: before.Quantity,
			Quantity:     after.Quantity,
			UserName:     actor.Name,
		},
		Email: &notify.EmailSpec{Subject: "Item updated: " + after.Name, Admin: true},
	}}
	if after.Deleted == nil {
		events = append(events, s.eval.AfterChange(StockOf(after), before.Quantity, "")...)
	}
	return after, events, nil
}

func (s *Service) SoftDelete(ctx context.Context, actor auth.Actor, id string) (*Item, []notify.Event, error) {
	var it *Item
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := s.store.SoftDelete(ctx, tx, id, actor.ID, s.clock.Now()); err != nil {
			return err
		}
		var err error
		it, err = s.store.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return it, []notify.Event{{
		Type:    notify.TypeDeleteItem,
		Message: fmt.Sprintf("Item %q deleted by %s.", it.Name, actor.Name),
		ItemID:  it.ID,
		ToUser:  actor.ID,
		Meta:    notify.DeleteItemMeta{ItemName: it.Name, Category: it.Category, UserName: actor.Name},
		Email:   &notify.EmailSpec{Subject: "Item deleted: " + it.Name, Admin: true},
	}}, nil
}

func (s *Service) Restore(ctx context.Context, actor auth.Actor, id string) (*Item, []notify.Event, error) {
	var it *Item
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := s.store.Restore(ctx, tx, id, s.clock.Now()); err != nil {
			return err
		}
		var err error
		it, err = s.store.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return it, []notify.Event{{
		Type:    notify.TypeDeleteItem,
		Message: fmt.Sprintf("Item %q restored by %s.", it.Name, actor.Name),
		ItemID:  it.ID,
		ToUser:  actor.ID,
		Meta:    notify.DeleteItemMeta{ItemName: it.Name, Category: it.Category, UserName: actor.Name, Restored: true},
	}}, nil
}
