package releases

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"storeroom-backend/internal/alerts"
	"storeroom-backend/internal/inventory/items"
	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/db"
	"storeroom-backend/internal/platform/httpx"
	"storeroom-backend/internal/platform/ids"
)

type Service struct {
	db     *sql.DB
	store  *Store
	ledger *items.Store
	eval   *alerts.Evaluator
	clock  ids.Clock
	id     ids.IDGen
}

func NewService(conn *sql.DB, ledger *items.Store, eval *alerts.Evaluator, clock ids.Clock, idgen ids.IDGen) *Service {
	return &Service{
		db:     conn,
		store:  NewStore(conn),
		ledger: ledger,
		eval:   eval,
		clock:  clock,
		id:     idgen,
	}
}

// Store is shared with the return service, which books returns against
// releases inside its own transaction.
func (s *Service) Store() *Store { return s.store }

// ParseDue reads an expected return date. Empty input clears it.
func ParseDue(v *string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, ok := httpx.ParseTime(strings.TrimSpace(*v))
	if !ok {
		return nil, apperr.Invalid("expected_return_by must be YYYY-MM-DD or RFC3339")
	}
	return t, nil
}

// CreateRelease takes stock out of the ledger and records who got it. The
// ledger update and the record insert share one transaction.
func (s *Service) CreateRelease(ctx context.Context, actor auth.Actor, in CreateInput) (*Release, []notify.Event, error) {
	in.Recipient = strings.TrimSpace(in.Recipient)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.Quantity <= 0 {
		return nil, nil, apperr.Invalid("quantity must be > 0")
	}
	if in.Recipient == "" {
		return nil, nil, apperr.Invalid("recipient is required")
	}
	if in.RequireReason && in.Reason == "" {
		return nil, nil, apperr.Invalid("reason is required")
	}

	now := s.clock.Now()
	rel := &Release{
		ID:           s.id.NewULID(now),
		ItemID:       in.ItemID,
		Quantity:     in.Quantity,
		Recipient:    in.Recipient,
		ReleasedBy:   actor.ID,
		Reason:       in.Reason,
		Approval:     ApprovalPending,
		ReturnStatus: ReturnPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var item *items.Item
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var err error
		if item, err = s.ledger.Release(ctx, tx, in.ItemID, in.Quantity, now); err != nil {
			return err
		}
		rel.Returnable = item.Refundable
		if in.Returnable != nil {
			rel.Returnable = *in.Returnable
		}
		if rel.Returnable {
			rel.ExpectedReturnBy = in.ExpectedReturnBy
		}
		return s.store.Insert(ctx, tx, rel)
	})
	if err != nil {
		return nil, nil, err
	}
	rel.ItemName = item.Name
	rel.ReleasedByName = actor.Name

	events := []notify.Event{{
		Type: notify.TypeReleaseItem,
		Message: fmt.Sprintf("%d %s of %q released to %s by %s.",
			rel.Quantity, item.Unit, item.Name, rel.Recipient, actor.Name),
		ItemID: item.ID,
		ToUser: actor.ID,
		Meta: notify.ReleaseItemMeta{
			ReleaseID:        rel.ID,
			ItemName:         item.Name,
			Unit:             string(item.Unit),
			Quantity:         rel.Quantity,
			Remaining:        item.Quantity,
			Recipient:        rel.Recipient,
			Reason:           rel.Reason,
			Returnable:       rel.Returnable,
			ExpectedReturnBy: rel.ExpectedReturnBy,
			UserName:         actor.Name,
		},
		Email: &notify.EmailSpec{
			Subject: "Item released: " + item.Name,
			Admin:   true,
			Roles:   []string{auth.RoleSuperAdmin},
			UserIDs: []string{actor.ID},
		},
	}}
	if ev := s.eval.LowStockEvent(items.StockOf(item)); ev != nil {
		events = append(events, *ev)
	}
	return rel, events, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Release, error) {
	return s.store.Get(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, f Filter, p db.Page) (ListResult, error) {
	list, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: list, Total: total, NextOffset: db.NextOffset(total, p)}, nil
}

// ListOverdue returns the releases for which alerts.IsOverdueRelease holds at
// now and that still have units outstanding.
func (s *Service) ListOverdue(ctx context.Context, now time.Time) ([]Release, error) {
	cands, err := s.store.OverdueCandidates(ctx)
	if err != nil {
		return nil, err
	}
	out := []Release{}
	for _, r := range cands {
		if alerts.IsOverdueRelease(alerts.Due{Returnable: r.Returnable, ExpectedReturnBy: r.ExpectedReturnBy}, now) &&
			r.Outstanding() > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// CanTransition reports whether the approval state machine allows from -> to.
// Anything may go back to pending; only pending may be approved or
// cancelled.
func CanTransition(from, to Approval) bool {
	switch to {
	case ApprovalPending:
		return true
	case ApprovalApproved, ApprovalCancelled:
		return from == ApprovalPending
	}
	return false
}

func (s *Service) SetApproval(ctx context.Context, actor auth.Actor, id string, to Approval) (*Release, []notify.Event, error) {
	if !ValidApproval(string(to)) {
		return nil, nil, apperr.Invalidf("unknown approval status %q", to)
	}
	var rel *Release
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		cur, err := s.store.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if !CanTransition(cur.Approval, to) {
			return apperr.Conflict(fmt.Sprintf("cannot move release from %s to %s", cur.Approval, to))
		}
		if err := s.store.SetApproval(ctx, tx, id, cur.Approval, to, s.clock.Now()); err != nil {
			return err
		}
		rel, err = s.store.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	var msg string
	switch to {
	case ApprovalApproved:
		msg = fmt.Sprintf("Your release of %d x %q to %s was approved by %s.", rel.Quantity, rel.ItemName, rel.Recipient, actor.Name)
	case ApprovalCancelled:
		msg = fmt.Sprintf("Your release of %d x %q to %s was cancelled by %s.", rel.Quantity, rel.ItemName, rel.Recipient, actor.Name)
	default:
		msg = fmt.Sprintf("Your release of %d x %q to %s was set back to pending by %s.", rel.Quantity, rel.ItemName, rel.Recipient, actor.Name)
	}
	return rel, []notify.Event{{
		Type:    notify.TypeInfo,
		Message: msg,
		ItemID:  rel.ItemID,
		ToUser:  rel.ReleasedBy,
		Meta:    notify.InfoMeta{ReleaseID: rel.ID, Approval: string(to), By: actor.Name},
	}}, nil
}

// Update edits the descriptive fields of a release. The stock decrement is
// not touched.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Release, error) {
	exp, err := ParseDue(req.ExpectedReturnBy)
	if err != nil {
		return nil, err
	}
	var rel *Release
	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		cur, err := s.store.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.ItemID != nil && *req.ItemID != cur.ItemID {
			ok, err := s.store.ItemExists(ctx, tx, *req.ItemID)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.NotFound("item not found")
			}
			cur.ItemID = *req.ItemID
		}
		if req.Recipient != nil {
			cur.Recipient = strings.TrimSpace(*req.Recipient)
			if cur.Recipient == "" {
				return apperr.Invalid("recipient must not be empty")
			}
		}
		if req.Reason != nil {
			cur.Reason = strings.TrimSpace(*req.Reason)
		}
		if req.Returnable != nil {
			cur.Returnable = *req.Returnable
		}
		if req.ExpectedReturnBy != nil {
			cur.ExpectedReturnBy = exp
		}
		if !cur.Returnable {
			cur.ExpectedReturnBy = nil
		}
		if err := s.store.Update(ctx, tx, cur, s.clock.Now()); err != nil {
			return err
		}
		rel, err = s.store.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// Delete removes the record. Stock is not given back.
func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("release not found")
	}
	return nil
}
