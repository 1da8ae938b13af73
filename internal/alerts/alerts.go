// Package alerts decides when stock is low and when a release is overdue.
// Everything here is pure; the sweep subpackage does the I/O.
package alerts

import (
	"fmt"
	"sort"
	"time"

	"storeroom-backend/internal/notify"
)

// Config is injected at construction.
type Config struct {
	// Threshold is the low-stock line for synchronous checks after a mutation.
	Threshold int
	// Tiers are the sweep thresholds, kept in descending order.
	Tiers []int
}

func DefaultConfig() Config {
	return Config{Threshold: 20, Tiers: []int{20, 10, 5}}
}

type Evaluator struct {
	cfg Config
}

func NewEvaluator(cfg Config) *Evaluator {
	tiers := append([]int(nil), cfg.Tiers...)
	sort.Sort(sort.Reverse(sort.IntSlice(tiers)))
	cfg.Tiers = tiers
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Threshold() int { return e.cfg.Threshold }

func IsLowStock(quantity, threshold int) bool { return quantity < threshold }

func (e *Evaluator) IsLow(quantity int) bool { return IsLowStock(quantity, e.cfg.Threshold) }

// Tier returns the largest configured tier that quantity is at or below, or
// 0 when quantity is above every tier.
func (e *Evaluator) Tier(quantity int) int {
	for _, t := range e.cfg.Tiers {
		if quantity <= t {
			return t
		}
	}
	return 0
}

// Due is the part of a release the overdue check looks at.
type Due struct {
	Returnable       bool
	ExpectedReturnBy *time.Time
}

func IsOverdueRelease(r Due, now time.Time) bool {
	return r.Returnable && r.ExpectedReturnBy != nil && !r.ExpectedReturnBy.After(now)
}

// Stock is an item as the evaluator sees it.
type Stock struct {
	ItemID   string
	Name     string
	Category string
	Unit     string
	Quantity int
}

var stockWatchers = []string{"admin", "superadmin"}

// LowStockEvent builds the alert for s, or nil when it is not low.
func (e *Evaluator) LowStockEvent(s Stock) *notify.Event {
	if !e.IsLow(s.Quantity) {
		return nil
	}
	return lowStock(s, e.cfg.Threshold, 0)
}

// SweepEvent is LowStockEvent for the scheduled sweep, with the tier recorded
// in the metadata.
func (e *Evaluator) SweepEvent(s Stock) *notify.Event {
	if !e.IsLow(s.Quantity) {
		return nil
	}
	return lowStock(s, e.cfg.Threshold, e.Tier(s.Quantity))
}

func lowStock(s Stock, threshold, tier int) *notify.Event {
	msg := fmt.Sprintf("Warning: item %q quantity is low (%d).", s.Name, s.Quantity)
	if tier > 0 {
		msg = fmt.Sprintf("Warning: item %q is at or below %d (%d left).", s.Name, tier, s.Quantity)
	}
	return &notify.Event{
		Type:    notify.TypeLowStock,
		Message: msg,
		ItemID:  s.ItemID,
		ToRoles: stockWatchers,
		Meta: notify.LowStockMeta{
			ItemName:  s.Name,
			Category:  s.Category,
			Unit:      s.Unit,
			Quantity:  s.Quantity,
			Threshold: threshold,
			Tier:      tier,
		},
		Email: &notify.EmailSpec{
			Subject: "Low stock warning: " + s.Name,
			Admin:   true,
			Roles:   stockWatchers,
		},
	}
}

// RestockEvent fires when a quantity change lifts an item from below the
// threshold to at or above it.
func (e *Evaluator) RestockEvent(s Stock, before int, returnID string) *notify.Event {
	if !e.IsLow(before) || e.IsLow(s.Quantity) {
		return nil
	}
	return &notify.Event{
		Type:    notify.TypeRestock,
		Message: fmt.Sprintf("Item %q is back in stock (%d).", s.Name, s.Quantity),
		ItemID:  s.ItemID,
		ToRoles: stockWatchers,
		Meta: notify.RestockMeta{
			ItemName:  s.Name,
			Quantity:  s.Quantity,
			Threshold: e.cfg.Threshold,
			ReturnID:  returnID,
		},
	}
}

// AfterChange is the synchronous check run after a quantity-changing
// mutation: either a low-stock alert or a restock notice, never both.
func (e *Evaluator) AfterChange(s Stock, before int, returnID string) []notify.Event {
	if ev := e.LowStockEvent(s); ev != nil {
		return []notify.Event{*ev}
	}
	if ev := e.RestockEvent(s, before, returnID); ev != nil {
		return []notify.Event{*ev}
	}
	return nil
}

// Overdue is a release past its expected return date.
type Overdue struct {
	ReleaseID        string
	ItemID           string
	ItemName         string
	Recipient        string
	ReleasedBy       string
	ExpectedReturnBy time.Time
	Outstanding      int
}

func OverdueEvent(o Overdue) notify.Event {
	return notify.Event{
		Type: notify.TypeReturnOverdue,
		Message: fmt.Sprintf("Return overdue: %d x %q released to %s was due %s.",
			o.Outstanding, o.ItemName, o.Recipient, o.ExpectedReturnBy.Format(time.DateOnly)),
		ItemID:  o.ItemID,
		ToUser:  o.ReleasedBy,
		ToRoles: stockWatchers,
		Meta: notify.ReturnOverdueMeta{
			ReleaseID:        o.ReleaseID,
			ItemName:         o.ItemName,
			Recipient:        o.Recipient,
			ExpectedReturnBy: o.ExpectedReturnBy,
			Outstanding:      o.Outstanding,
		},
		Email: &notify.EmailSpec{
			Subject: "Return overdue: " + o.ItemName,
			Admin:   true,
			Roles:   []string{"superadmin"},
			UserIDs: []string{o.ReleasedBy},
		},
	}
}
