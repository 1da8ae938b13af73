package returns

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"storeroom-backend/internal/alerts"
	"storeroom-backend/internal/inventory/items"
	"storeroom-backend/internal/inventory/releases"
	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/db"
	"storeroom-backend/internal/platform/ids"
)

type Options struct {
	// StrictBalance caps a return at what is still outstanding on the
	// release rather than the quantity originally released.
	StrictBalance bool
}

type Service struct {
	db       *sql.DB
	store    *Store
	items    *items.Service
	releases *releases.Store
	eval     *alerts.Evaluator
	clock    ids.Clock
	id       ids.IDGen
	opts     Options
}

func NewService(conn *sql.DB, itemSvc *items.Service, rels *releases.Store, eval *alerts.Evaluator,
	clock ids.Clock, idgen ids.IDGen, opts Options) *Service {
	return &Service{
		db:       conn,
		store:    NewStore(conn),
		items:    itemSvc,
		releases: rels,
		eval:     eval,
		clock:    clock,
		id:       idgen,
		opts:     opts,
	}
}

// CreateReturn books returned stock. The return record, the restock and
// the release back-link commit together.
func (s *Service) CreateReturn(ctx context.Context, actor auth.Actor, itemID string, req ItemReturnRequest) (*Return, []notify.Event, error) {
	req.ReturnedBy = strings.TrimSpace(req.ReturnedBy)
	req.ReturnedByEmail = strings.TrimSpace(req.ReturnedByEmail)
	if req.Quantity <= 0 {
		return nil, nil, apperr.Invalid("quantity must be > 0")
	}
	if req.ReturnedBy == "" {
		return nil, nil, apperr.Invalid("returned_by is required")
	}
	cond := ConditionGood
	if req.Condition != "" {
		if !ValidCondition(req.Condition) {
			return nil, nil, apperr.Invalidf("unknown condition %q", req.Condition)
		}
		cond = Condition(req.Condition)
	}
	if req.ReleaseID != nil && strings.TrimSpace(*req.ReleaseID) == "" {
		req.ReleaseID = nil
	}

	now := s.clock.Now()
	ret := &Return{
		ID:              s.id.NewULID(now),
		ItemID:          itemID,
		ReleaseID:       req.ReleaseID,
		ReturnedBy:      req.ReturnedBy,
		ReturnedByEmail: req.ReturnedByEmail,
		Quantity:        req.Quantity,
		Condition:       cond,
		Remarks:         strings.TrimSpace(req.Remarks),
		ProcessedBy:     actor.ID,
		Status:          StatusProcessed,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	ledger := s.items.Ledger()
	var (
		before int
		after  *items.Item
	)
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		it, err := ledger.Get(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if !it.Refundable {
			return apperr.Policy("item is not refundable")
		}
		if ret.ReleaseID != nil {
			if err := s.checkRelease(ctx, tx, *ret.ReleaseID, itemID, req.Quantity); err != nil {
				return err
			}
		}
		before = it.Quantity

		if err := s.store.Insert(ctx, tx, ret); err != nil {
			return err
		}
		if after, err = ledger.Restock(ctx, tx, itemID, req.Quantity, now); err != nil {
			return err
		}
		if ret.ReleaseID != nil {
			return s.releases.ApplyReturn(ctx, tx, *ret.ReleaseID, req.Quantity, s.opts.StrictBalance, now)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	ret.ItemName = after.Name
	ret.ProcessedByName = actor.Name

	var events []notify.Event
	if after.Deleted == nil {
		events = s.eval.AfterChange(items.StockOf(after), before, ret.ID)
	}
	confirm := notify.Event{
		Type: notify.TypeReturnConfirmation,
		Message: fmt.Sprintf("%d %s of %q returned by %s (%s).",
			ret.Quantity, after.Unit, after.Name, ret.ReturnedBy, ret.Condition),
		ItemID: after.ID,
		ToUser: actor.ID,
		Meta: notify.ReturnConfirmationMeta{
			ReturnID:    ret.ID,
			ReleaseID:   deref(ret.ReleaseID),
			ItemName:    after.Name,
			Quantity:    ret.Quantity,
			Condition:   string(ret.Condition),
			ReturnedBy:  ret.ReturnedBy,
			ProcessedBy: actor.Name,
		},
		Email: &notify.EmailSpec{
			Subject: "Return confirmation: " + after.Name,
			Roles:   []string{auth.RoleSuperAdmin},
		},
	}
	if ret.ReturnedByEmail != "" {
		confirm.Email.Addresses = []string{ret.ReturnedByEmail}
	}
	return ret, append(events, confirm), nil
}

func (s *Service) checkRelease(ctx context.Context, tx db.DBTX, releaseID, itemID string, qty int) error {
	rel, err := s.releases.Get(ctx, tx, releaseID)
	if err != nil {
		return err
	}
	if rel.ItemID != itemID {
		return apperr.Invalid("release belongs to a different item")
	}
	if !rel.Returnable {
		return apperr.Policy("release is not returnable")
	}
	limit := rel.Quantity
	if s.opts.StrictBalance {
		limit = rel.Outstanding()
	}
	if qty > limit {
		return apperr.Invalidf("return quantity %d exceeds %d", qty, limit)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Service) Get(ctx context.Context, id string) (*Return, error) {
	return s.store.Get(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, f Filter, p db.Page) (ListResult, error) {
	list, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: list, Total: total, NextOffset: db.NextOffset(total, p)}, nil
}

// Returnable lists refundable items with the returns booked against them.
func (s *Service) Returnable(ctx context.Context) ([]items.RefundableItem, error) {
	return s.items.ListRefundable(ctx)
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Return, error) {
	cur, err := s.store.Get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if req.Condition != nil {
		if !ValidCondition(*req.Condition) {
			return nil, apperr.Invalidf("unknown condition %q", *req.Condition)
		}
		cur.Condition = Condition(*req.Condition)
	}
	if req.Remarks != nil {
		cur.Remarks = strings.TrimSpace(*req.Remarks)
	}
	if req.Status != nil {
		switch st := Status(*req.Status); st {
		case StatusProcessed, StatusPendingReview, StatusArchived:
			cur.Status = st
		default:
			return nil, apperr.Invalidf("unknown status %q", *req.Status)
		}
	}
	if err := s.store.Update(ctx, cur, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, s.db, id)
}

// Archive is the delete operation for returns. Stock is left as is.
func (s *Service) Archive(ctx context.Context, id string) (*Return, error) {
	archived := string(StatusArchived)
	return s.Update(ctx, id, UpdateRequest{Status: &archived})
}
