package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"storeroom-backend/internal/alerts"
	"storeroom-backend/internal/inventory/items"
	"storeroom-backend/internal/inventory/releases"
	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/config"
	"storeroom-backend/internal/platform/ids"
	"storeroom-backend/internal/platform/logging"
)

const (
	KindLowStock = "low-stock"
	KindOverdue  = "overdue"

	lockTTL = 5 * time.Minute
)

type Result struct {
	Kind    string `json:"kind"`
	Checked int    `json:"checked"`
	Alerted int    `json:"alerted"`
	// Skipped is set when another replica holds the sweep lock.
	Skipped bool `json:"skipped,omitempty"`
}

type Sweeper struct {
	items    *items.Store
	releases *releases.Service
	eval     *alerts.Evaluator
	pub      notify.Publisher
	clock    ids.Clock
	locker   *redislock.Client
	log      logrus.FieldLogger
}

// New builds a sweeper. locker may be nil, in which case sweeps run
// unguarded.
func New(ledger *items.Store, rels *releases.Service, eval *alerts.Evaluator, pub notify.Publisher,
	clock ids.Clock, locker *redislock.Client, log logrus.FieldLogger) *Sweeper {
	return &Sweeper{
		items:    ledger,
		releases: rels,
		eval:     eval,
		pub:      pub,
		clock:    clock,
		locker:   locker,
		log:      log,
	}
}

// ConnectRedis returns nil clients when no address is configured.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, *redislock.Client, error) {
	if cfg.Addr == "" {
		return nil, nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, redislock.New(rdb), nil
}

// Run dispatches on kind.
func (s *Sweeper) Run(ctx context.Context, kind string) (Result, error) {
	switch kind {
	case KindLowStock:
		return s.RunLowStockSweep(ctx)
	case KindOverdue:
		return s.RunOverdueSweep(ctx)
	}
	return Result{}, apperr.Invalidf("unknown sweep %q, expected %s or %s", kind, KindLowStock, KindOverdue)
}

// RunLowStockSweep raises a tiered low-stock alert for every live item
// under the threshold.
func (s *Sweeper) RunLowStockSweep(ctx context.Context) (Result, error) {
	res := Result{Kind: KindLowStock}
	return s.locked(ctx, res, func(ctx context.Context) (Result, error) {
		var events []notify.Event
		err := s.items.AllActive(ctx, func(it items.Item) error {
			res.Checked++
			if ev := s.eval.SweepEvent(items.StockOf(&it)); ev != nil {
				events = append(events, *ev)
			}
			return nil
		})
		if err != nil {
			return res, err
		}
		res.Alerted = len(events)
		s.pub.Publish(events...)
		return res, nil
	})
}

// RunOverdueSweep alerts on every returnable release past its due date that
// still has units out.
func (s *Sweeper) RunOverdueSweep(ctx context.Context) (Result, error) {
	res := Result{Kind: KindOverdue}
	return s.locked(ctx, res, func(ctx context.Context) (Result, error) {
		list, err := s.releases.ListOverdue(ctx, s.clock.Now())
		if err != nil {
			return res, err
		}
		events := make([]notify.Event, 0, len(list))
		for _, r := range list {
			events = append(events, alerts.OverdueEvent(alerts.Overdue{
				ReleaseID:        r.ID,
				ItemID:           r.ItemID,
				ItemName:         r.ItemName,
				Recipient:        r.Recipient,
				ReleasedBy:       r.ReleasedBy,
				ExpectedReturnBy: *r.ExpectedReturnBy,
				Outstanding:      r.Outstanding(),
			}))
		}
		res.Checked = len(list)
		res.Alerted = len(events)
		s.pub.Publish(events...)
		return res, nil
	})
}

func (s *Sweeper) locked(ctx context.Context, res Result, fn func(context.Context) (Result, error)) (Result, error) {
	if s.locker == nil {
		return fn(ctx)
	}
	lock, err := s.locker.Obtain(ctx, "storeroom:sweep:"+res.Kind, lockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		s.log.WithField("kind", res.Kind).Info("sweep already running elsewhere")
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("obtain sweep lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logging.LogError(s.log, "sweep", "locked", "release lock", res.Kind, err)
		}
	}()
	return fn(ctx)
}

// Schedule registers both sweeps on c.
func (s *Sweeper) Schedule(c *cron.Cron, cfg config.AlertsConfig) error {
	for kind, spec := range map[string]string{KindLowStock: cfg.LowStockCron, KindOverdue: cfg.OverdueCron} {
		if spec == "" {
			continue
		}
		if _, err := c.AddFunc(spec, func() { s.runScheduled(kind) }); err != nil {
			return fmt.Errorf("schedule %s sweep %q: %w", kind, spec, err)
		}
	}
	return nil
}

func (s *Sweeper) runScheduled(kind string) {
	ctx, cancel := context.WithTimeout(context.Background(), lockTTL)
	defer cancel()
	res, err := s.Run(ctx, kind)
	if err != nil {
		logging.LogError(s.log, "sweep", "runScheduled", "scheduled sweep", kind, err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"kind":    res.Kind,
		"checked": res.Checked,
		"alerted": res.Alerted,
		"skipped": res.Skipped,
	}).Info("sweep finished")
}
