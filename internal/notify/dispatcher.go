package notify

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"storeroom-backend/internal/platform/ids"
	"storeroom-backend/internal/platform/logging"
)

// Event is a side effect produced by a committed mutation: notifications to
// store and, optionally, an email to send.
type Event struct {
	Type    Type
	Message string
	ItemID  string
	// ToUser targets a single account. ToRoles fans the notification out to
	// every account holding one of the roles. With neither set the
	// notification is a broadcast.
	ToUser  string
	ToRoles []string
	Meta    Meta
	Email   *EmailSpec
	At      time.Time
}

// EmailSpec lists who gets mailed about an event. All sources are merged and
// de-duplicated case-insensitively before sending.
type EmailSpec struct {
	Subject   string
	Addresses []string
	Roles     []string
	UserIDs   []string
	// Admin adds the configured administrator address.
	Admin bool
}

type Recipient struct {
	ID    string
	Name  string
	Email string
}

// Directory resolves accounts for fan-out. Disabled accounts are excluded.
type Directory interface {
	RecipientsByRole(ctx context.Context, roles ...string) ([]Recipient, error)
	RecipientsByID(ctx context.Context, ids ...string) ([]Recipient, error)
}

// Publisher is what handlers hand committed events to.
type Publisher interface {
	Publish(evs ...Event)
}

type notificationWriter interface {
	Insert(ctx context.Context, n *Notification) error
}

type Options struct {
	QueueSize  int
	AdminEmail string
	Sink       EventSink
}

const defaultQueueSize = 256

type Dispatcher struct {
	store  notificationWriter
	dir    Directory
	mailer Mailer
	sink   EventSink
	clock  ids.Clock
	ids    ids.IDGen
	log    logrus.FieldLogger
	admin  string
	queue  chan Event
}

func NewDispatcher(store notificationWriter, dir Directory, mailer Mailer, clock ids.Clock, idgen ids.IDGen, log logrus.FieldLogger, opts Options) *Dispatcher {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Dispatcher{
		store:  store,
		dir:    dir,
		mailer: mailer,
		sink:   opts.Sink,
		clock:  clock,
		ids:    idgen,
		log:    log,
		admin:  opts.AdminEmail,
		queue:  make(chan Event, size),
	}
}

// Publish enqueues events without blocking. When the queue is full the event
// is dropped and logged.
func (d *Dispatcher) Publish(evs ...Event) {
	for _, ev := range evs {
		if ev.At.IsZero() {
			ev.At = d.clock.Now()
		}
		select {
		case d.queue <- ev:
		default:
			d.log.WithFields(logrus.Fields{
				"module": "notify",
				"type":   ev.Type,
				"item":   ev.ItemID,
			}).Warn("notification queue full, dropping event")
		}
	}
}

// Run handles events until ctx is cancelled, then drains what is left in the
// queue with a short grace period.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.Handle(ctx, ev)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			d.Flush(drainCtx)
			cancel()
			return nil
		}
	}
}

// Flush handles every queued event on the calling goroutine and returns when
// the queue is empty. The CLI and tests use it instead of Run.
func (d *Dispatcher) Flush(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.Handle(ctx, ev)
		default:
			return
		}
	}
}

// Handle processes a single event. Failures are logged and never returned;
// the mutation that produced the event has already committed.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = d.clock.Now()
	}
	d.storeNotifications(ctx, ev)
	if ev.Email != nil {
		d.sendEmail(ctx, ev)
	}
	if d.sink != nil {
		if err := d.sink.PublishEvent(ctx, ev); err != nil {
			logging.LogError(d.log, "notify", "Handle", "publishing event", ev.Type, err)
		}
	}
}

func (d *Dispatcher) storeNotifications(ctx context.Context, ev Event) {
	var targets []string
	seen := map[string]bool{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}
	add(ev.ToUser)
	if len(ev.ToRoles) > 0 {
		rs, err := d.dir.RecipientsByRole(ctx, ev.ToRoles...)
		if err != nil {
			logging.LogError(d.log, "notify", "storeNotifications", "resolving roles", ev.ToRoles, err)
		}
		for _, r := range rs {
			add(r.ID)
		}
	}

	// no target at all means everyone sees it
	if len(targets) == 0 && len(ev.ToRoles) == 0 {
		targets = []string{""}
	}

	for _, to := range targets {
		n := &Notification{
			ID:        d.ids.NewULID(ev.At),
			Message:   ev.Message,
			Type:      ev.Type,
			Meta:      ev.Meta,
			CreatedAt: ev.At,
		}
		if ev.ItemID != "" {
			item := ev.ItemID
			n.ItemID = &item
		}
		if to != "" {
			user := to
			n.ToUser = &user
		}
		if err := d.store.Insert(ctx, n); err != nil {
			logging.LogError(d.log, "notify", "storeNotifications", "inserting notification", n.Type, err)
		}
	}
}

// Recipients merges every address source of spec and de-duplicates them.
func (d *Dispatcher) Recipients(ctx context.Context, spec EmailSpec) []string {
	var out []string
	seen := map[string]bool{}
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, addr)
	}

	if spec.Admin {
		add(d.admin)
	}
	for _, a := range spec.Addresses {
		add(a)
	}
	if len(spec.Roles) > 0 {
		rs, err := d.dir.RecipientsByRole(ctx, spec.Roles...)
		if err != nil {
			logging.LogError(d.log, "notify", "Recipients", "resolving roles", spec.Roles, err)
		}
		for _, r := range rs {
			add(r.Email)
		}
	}
	if len(spec.UserIDs) > 0 {
		rs, err := d.dir.RecipientsByID(ctx, spec.UserIDs...)
		if err != nil {
			logging.LogError(d.log, "notify", "Recipients", "resolving users", spec.UserIDs, err)
		}
		for _, r := range rs {
			add(r.Email)
		}
	}
	return out
}

func (d *Dispatcher) sendEmail(ctx context.Context, ev Event) {
	to := d.Recipients(ctx, *ev.Email)
	if len(to) == 0 {
		return
	}
	subject := ev.Email.Subject
	if subject == "" {
		subject = ev.Message
	}
	html, err := renderHTML(subject, ev.Message, ev.Meta)
	if err != nil {
		logging.LogError(d.log, "notify", "sendEmail", "rendering template", ev.Type, err)
		html = ""
	}
	for _, addr := range to {
		m := Mail{To: addr, Subject: subject, Text: ev.Message, HTML: html}
		if err := d.mailer.Send(ctx, m); err != nil {
			logging.LogError(d.log, "notify", "sendEmail", "sending mail", addr, err)
		}
	}
}
