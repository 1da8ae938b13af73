package releases

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeroom-backend/internal/alerts"
	"storeroom-backend/internal/inventory/items"
	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/db"
	"storeroom-backend/internal/platform/ids"
)

var (
	super = auth.Actor{ID: "s1", Role: auth.RoleSuperAdmin, Name: "Sam"}
	clerk = auth.Actor{ID: "u1", Role: auth.RoleUser, Name: "Uma"}
)

type fixture struct {
	db    *sql.DB
	items *items.Service
	svc   *Service
	clock *ids.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := db.NewTestDB(t)
	clock := &ids.FixedClock{T: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	eval := alerts.NewEvaluator(alerts.DefaultConfig())
	gen := ids.NewULIDGen()
	itemSvc := items.NewService(conn, eval, clock, gen)
	return &fixture{
		db:    conn,
		items: itemSvc,
		svc:   NewService(conn, itemSvc.Ledger(), eval, clock, gen),
		clock: clock,
	}
}

func (f *fixture) item(t *testing.T, qty int, refundable bool) *items.Item {
	t.Helper()
	it, _, err := f.items.Create(context.Background(), super, items.CreateRequest{
		Name: "Drill bit", Category: "tools", Quantity: &qty, Refundable: refundable,
	})
	require.NoError(t, err)
	return it
}

func (f *fixture) quantity(t *testing.T, id string) int {
	t.Helper()
	it, err := f.items.Ledger().Get(context.Background(), f.db, id)
	require.NoError(t, err)
	return it.Quantity
}

func boolp(b bool) *bool { return &b }

func eventTypes(evs []notify.Event) []notify.Type {
	out := make([]notify.Type, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Type)
	}
	return out
}

func TestCreateReleaseDecrementsStock(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, 30, true)
	due := f.clock.T.Add(7 * 24 * time.Hour)

	rel, events, err := f.svc.CreateRelease(context.Background(), clerk, CreateInput{
		ItemID: it.ID, Quantity: 12, Recipient: " Lab 3 ", Reason: "calibration",
		RequireReason: true, Returnable: boolp(true), ExpectedReturnBy: &due,
	})
	require.NoError(t, err)

	assert.Equal(t, 18, f.quantity(t, it.ID))
	assert.Equal(t, "Lab 3", rel.Recipient)
	assert.Equal(t, ApprovalPending, rel.Approval)
	assert.Equal(t, ReturnPending, rel.ReturnStatus)
	require.NotNil(t, rel.ExpectedReturnBy)
	assert.True(t, due.Equal(*rel.ExpectedReturnBy))

	// 18 is under the default threshold of 20.
	assert.Equal(t, []notify.Type{notify.TypeReleaseItem, notify.TypeLowStock}, eventTypes(events))
	assert.Equal(t, clerk.ID, events[0].ToUser)
	require.NotNil(t, events[0].Email)
	assert.True(t, events[0].Email.Admin)

	got, err := f.svc.Get(context.Background(), rel.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drill bit", got.ItemName)
	assert.Equal(t, 12, got.Quantity)
}

func TestCreateReleaseValidation(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, 10, false)

	cases := map[string]CreateInput{
		"zero quantity":   {ItemID: it.ID, Quantity: 0, Recipient: "x", Reason: "r"},
		"blank recipient": {ItemID: it.ID, Quantity: 1, Recipient: "  ", Reason: "r"},
		"missing reason":  {ItemID: it.ID, Quantity: 1, Recipient: "x", RequireReason: true},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.svc.CreateRelease(context.Background(), clerk, in)
			assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), "got %v", err)
		})
	}
	assert.Equal(t, 10, f.quantity(t, it.ID))
}

func TestInsufficientStockWritesNothing(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, 5, true)

	_, _, err := f.svc.CreateRelease(context.Background(), clerk, CreateInput{
		ItemID: it.ID, Quantity: 6, Recipient: "Ops",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientStock))
	assert.Equal(t, 5, f.quantity(t, it.ID))

	res, err := f.svc.List(context.Background(), Filter{}, db.Page{}.Normalize())
	require.NoError(t, err)
	assert.Zero(t, res.Total)

	_, _, err = f.svc.CreateRelease(context.Background(), clerk, CreateInput{
		ItemID: "missing", Quantity: 1, Recipient: "Ops",
	})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestLegacyPathDefaultsReturnableFromItem(t *testing.T) {
	f := newFixture(t)
	refundable := f.item(t, 50, true)
	consumable := f.item(t, 50, false)
	due := f.clock.T.Add(48 * time.Hour)

	r1, _, err := f.svc.CreateRelease(context.Background(), clerk, CreateInput{
		ItemID: refundable.ID, Quantity: 1, Recipient: "A", ExpectedReturnBy: &due,
	})
	require.NoError(t, err)
	assert.True(t, r1.Returnable)
	assert.NotNil(t, r1.ExpectedReturnBy)

	r2, _, err := f.svc.CreateRelease(context.Background(), clerk, CreateInput{
		ItemID: consumable.ID, Quantity: 1, Recipient: "A", ExpectedReturnBy: &due,
	})
	require.NoError(t, err)
	assert.False(t, r2.Returnable)
	assert.Nil(t, r2.ExpectedReturnBy, "due date only kept for returnable releases")
}

func TestApprovalTransitions(t *testing.T) {
	tests := []struct {
		from, to Approval
		ok       bool
	}{
		{ApprovalPending, ApprovalApproved, true},
		{ApprovalPending, ApprovalCancelled, true},
		{ApprovalApproved, ApprovalPending, true},
		{ApprovalCancelled, ApprovalPending, true},
		{ApprovalPending, ApprovalPending, true},
		{ApprovalApproved, ApprovalCancelled, false},
		{ApprovalCancelled, ApprovalApproved, false},
		{ApprovalApproved, ApprovalApproved, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestSetApproval(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, 40, true)
	rel, _, err := f.svc.CreateRelease(context.Background(), clerk, CreateInput{
		ItemID: it.ID, Quantity: 2, Recipient: "Lab",
	})
	require.NoError(t, err)
	ctx := context.Background()

	got, events, err := f.svc.SetApproval(ctx, super, rel.ID, ApprovalApproved)
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, got.Approval)
	require.Len(t, events, 1)
	assert.Equal(t, notify.TypeInfo, events[0].Type)
	assert.Equal(t, clerk.ID, events[0].ToUser)

	_, _, err = f.svc.SetApproval(ctx, super, rel.ID, ApprovalCancelled)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	_, _, err = f.svc.SetApproval(ctx, super, rel.ID, ApprovalPending)
	require.NoError(t, err)
	got, _, err = f.svc.SetApproval(ctx, super, rel.ID, ApprovalCancelled)
	require.NoError(t, err)
	assert.Equal(t, ApprovalCancelled, got.Approval)

	// stock is not restored by cancelling
	assert.Equal(t, 38, f.quantity(t, it.ID))

	_, _, err = f.svc.SetApproval(ctx, super, rel.ID, Approval("archived"))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
	_, _, err = f.svc.SetApproval(ctx, super, "nope", ApprovalPending)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, 40, true)
	ctx := context.Background()
	due := f.clock.T.Add(24 * time.Hour)
	rel, _, err := f.svc.CreateRelease(ctx, clerk, CreateInput{
		ItemID: it.ID, Quantity: 2, Recipient: "Lab", Returnable: boolp(true), ExpectedReturnBy: &due,
	})
	require.NoError(t, err)

	recipient := "Workshop"
	got, err := f.svc.Update(ctx, rel.ID, UpdateRequest{Recipient: &recipient, Returnable: boolp(false)})
	require.NoError(t, err)
	assert.Equal(t, "Workshop", got.Recipient)
	assert.False(t, got.Returnable)
	assert.Nil(t, got.ExpectedReturnBy)
	assert.Equal(t, 2, got.Quantity)

	missing := "no-such-item"
	_, err = f.svc.Update(ctx, rel.ID, UpdateRequest{ItemID: &missing})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	bad := "tomorrow"
	_, err = f.svc.Update(ctx, rel.ID, UpdateRequest{ExpectedReturnBy: &bad})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	require.NoError(t, f.svc.Delete(ctx, rel.ID))
	assert.True(t, apperr.Is(f.svc.Delete(ctx, rel.ID), apperr.CodeNotFound))
	assert.Equal(t, 38, f.quantity(t, it.ID))
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, 100, true)
	b := f.item(t, 100, false)

	for _, in := range []CreateInput{
		{ItemID: a.ID, Quantity: 1, Recipient: "Chemistry Lab"},
		{ItemID: a.ID, Quantity: 2, Recipient: "Physics"},
		{ItemID: b.ID, Quantity: 3, Recipient: "chemistry annex"},
		{ItemID: b.ID, Quantity: 1, Recipient: "Émile Zola"},
		{ItemID: b.ID, Quantity: 1, Recipient: "Stores 100%"},
	} {
		_, _, err := f.svc.CreateRelease(ctx, clerk, in)
		require.NoError(t, err)
		f.clock.T = f.clock.T.Add(time.Hour)
	}
	page := db.Page{}.Normalize()

	res, err := f.svc.List(ctx, Filter{ItemID: &a.ID}, page)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)

	q := "CHEMISTRY"
	res, err = f.svc.List(ctx, Filter{Recipient: &q}, page)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)

	for term, want := range map[string]int64{
		"Émile Zola": 1,
		"émile":      1,
		"ÉMILE":      1,
		"lab":        1,
		"%":          1,
		"_":          0,
	} {
		res, err = f.svc.List(ctx, Filter{Recipient: &term}, page)
		require.NoError(t, err)
		assert.EqualValues(t, want, res.Total, term)
	}

	res, err = f.svc.List(ctx, Filter{Returnable: boolp(true)}, page)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)

	res, err = f.svc.List(ctx, Filter{}, db.Page{Limit: 2, Order: "asc"}.Normalize())
	require.NoError(t, err)
	assert.EqualValues(t, 5, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Chemistry Lab", res.Items[0].Recipient)
	assert.Equal(t, 2, res.NextOffset)
}

func TestListOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, 100, true)
	past := f.clock.T.Add(-24 * time.Hour)
	future := f.clock.T.Add(24 * time.Hour)

	late, _, err := f.svc.CreateRelease(ctx, clerk, CreateInput{ItemID: it.ID, Quantity: 4, Recipient: "A", ExpectedReturnBy: &past})
	require.NoError(t, err)
	_, _, err = f.svc.CreateRelease(ctx, clerk, CreateInput{ItemID: it.ID, Quantity: 4, Recipient: "B", ExpectedReturnBy: &future})
	require.NoError(t, err)
	_, _, err = f.svc.CreateRelease(ctx, clerk, CreateInput{ItemID: it.ID, Quantity: 4, Recipient: "C"})
	require.NoError(t, err)

	list, err := f.svc.ListOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, late.ID, list[0].ID)

	// fully returned releases are no longer overdue
	require.NoError(t, db.RunInTx(ctx, f.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return f.svc.Store().ApplyReturn(ctx, tx, late.ID, 4, false, f.clock.Now())
	}))
	list, err = f.svc.ListOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := f.svc.Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, ReturnFully, got.ReturnStatus)
	assert.Equal(t, 4, got.QtyReturned)
}

func TestCappedApplyReturnStopsAtOutstanding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, 10, true)
	rel, _, err := f.svc.CreateRelease(ctx, clerk, CreateInput{ItemID: it.ID, Quantity: 5, Recipient: "Lab"})
	require.NoError(t, err)

	apply := func(qty int, capped bool) error {
		return db.RunInTx(ctx, f.db, nil, func(ctx context.Context, tx db.DBTX) error {
			return f.svc.Store().ApplyReturn(ctx, tx, rel.ID, qty, capped, f.clock.Now())
		})
	}

	// Two returns that each passed a balance check against the same snapshot.
	require.NoError(t, apply(5, true))
	err = apply(5, true)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	got, err := f.svc.Get(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.QtyReturned)
	assert.Equal(t, ReturnFully, got.ReturnStatus)

	assert.True(t, apperr.Is(apply(1, true), apperr.CodeInvalidArgument))
	assert.NoError(t, apply(1, false))

	missing := db.RunInTx(ctx, f.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return f.svc.Store().ApplyReturn(ctx, tx, "missing", 1, true, f.clock.Now())
	})
	assert.True(t, apperr.Is(missing, apperr.CodeNotFound))
}
