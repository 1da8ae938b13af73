package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeroom-backend/internal/alerts"
	"storeroom-backend/internal/inventory/items"
	"storeroom-backend/internal/inventory/releases"
	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/config"
	"storeroom-backend/internal/platform/db"
	"storeroom-backend/internal/platform/ids"
	"storeroom-backend/internal/platform/logging"
)

var super = auth.Actor{ID: "s1", Role: auth.RoleSuperAdmin, Name: "Sam"}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(evs ...notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
}

type fixture struct {
	items    *items.Service
	releases *releases.Service
	sweeper  *Sweeper
	pub      *recorder
	clock    *ids.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := db.NewTestDB(t)
	clock := &ids.FixedClock{T: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	eval := alerts.NewEvaluator(alerts.DefaultConfig())
	gen := ids.NewULIDGen()
	itemSvc := items.NewService(conn, eval, clock, gen)
	relSvc := releases.NewService(conn, itemSvc.Ledger(), eval, clock, gen)
	pub := &recorder{}
	return &fixture{
		items:    itemSvc,
		releases: relSvc,
		sweeper:  New(itemSvc.Ledger(), relSvc, eval, pub, clock, nil, logging.Discard()),
		pub:      pub,
		clock:    clock,
	}
}

func (f *fixture) item(t *testing.T, name string, qty int) *items.Item {
	t.Helper()
	it, _, err := f.items.Create(context.Background(), super, items.CreateRequest{
		Name: name, Category: "stationery", Quantity: &qty, Refundable: true,
	})
	require.NoError(t, err)
	return it
}

func TestLowStockSweepTiers(t *testing.T) {
	f := newFixture(t)
	f.item(t, "Binders", 50)
	f.item(t, "Envelopes", 18)
	f.item(t, "Pens", 7)
	f.item(t, "Staples", 2)
	gone := f.item(t, "Toner", 1)
	_, _, err := f.items.SoftDelete(context.Background(), super, gone.ID)
	require.NoError(t, err)

	res, err := f.sweeper.RunLowStockSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Checked)
	assert.Equal(t, 3, res.Alerted)

	tiers := map[string]int{}
	for _, ev := range f.pub.events {
		require.Equal(t, notify.TypeLowStock, ev.Type)
		meta := ev.Meta.(notify.LowStockMeta)
		tiers[meta.ItemName] = meta.Tier
	}
	// the largest tier at or above the quantity wins
	assert.Equal(t, map[string]int{"Envelopes": 20, "Pens": 20, "Staples": 20}, tiers)
}

func TestOverdueSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "Laptop", 30)
	due := f.clock.T.Add(-time.Hour)
	yes := true

	rel, _, err := f.releases.CreateRelease(ctx, super, releases.CreateInput{
		ItemID: it.ID, Quantity: 2, Recipient: "Intern", Returnable: &yes, ExpectedReturnBy: &due,
	})
	require.NoError(t, err)

	res, err := f.sweeper.Run(ctx, KindOverdue)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Alerted)
	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, notify.TypeReturnOverdue, ev.Type)
	assert.Equal(t, super.ID, ev.ToUser)
	assert.Equal(t, rel.ID, ev.Meta.(notify.ReturnOverdueMeta).ReleaseID)
}

func TestRunRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.sweeper.Run(context.Background(), "everything")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func TestSchedule(t *testing.T) {
	f := newFixture(t)
	c := cron.New()
	require.NoError(t, f.sweeper.Schedule(c, config.Default().Alerts))
	assert.Len(t, c.Entries(), 2)

	assert.Error(t, f.sweeper.Schedule(cron.New(), config.AlertsConfig{LowStockCron: "every day"}))
}
