package notify

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storeroom-backend/internal/platform/ids"
	"storeroom-backend/internal/platform/logging"
)

type memStore struct {
	mu   sync.Mutex
	rows []Notification
}

func (m *memStore) Insert(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *n)
	return nil
}

func (m *memStore) all() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.rows...)
}

type fakeDir struct{ accounts []struct{ Recipient; Role string } }

func (f fakeDir) RecipientsByRole(_ context.Context, roles ...string) ([]Recipient, error) {
	var out []Recipient
	for _, a := range f.accounts {
		for _, r := range roles {
			if a.Role == r {
				out = append(out, a.Recipient)
			}
		}
	}
	return out, nil
}

func (f fakeDir) RecipientsByID(_ context.Context, idsIn ...string) ([]Recipient, error) {
	var out []Recipient
	for _, a := range f.accounts {
		for _, id := range idsIn {
			if a.ID == id {
				out = append(out, a.Recipient)
			}
		}
	}
	return out, nil
}

type recMailer struct {
	mu   sync.Mutex
	sent []Mail
	fail map[string]bool
}

func (r *recMailer) Send(_ context.Context, m Mail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[m.To] {
		return errors.New("smtp down")
	}
	r.sent = append(r.sent, m)
	return nil
}

func (r *recMailer) to() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.sent {
		out = append(out, m.To)
	}
	sort.Strings(out)
	return out
}

func directory() fakeDir {
	d := fakeDir{}
	add := func(id, email, role string) {
		d.accounts = append(d.accounts, struct {
			Recipient
			Role string
		}{Recipient{ID: id, Name: id, Email: email}, role})
	}
	add("u1", "clerk@example.com", "user")
	add("s1", "Boss@Example.com", "superadmin")
	add("s2", "second@example.com", "superadmin")
	add("a1", "admin@example.com", "admin")
	return d
}

func newDispatcher(t *testing.T, size int, mailer *recMailer) (*Dispatcher, *memStore) {
	t.Helper()
	st := &memStore{}
	clock := &ids.FixedClock{T: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	d := NewDispatcher(st, directory(), mailer, clock, ids.NewULIDGen(), logging.Discard(),
		Options{QueueSize: size, AdminEmail: "boss@example.com"})
	return d, st
}

func TestRecipientsAreDeduplicated(t *testing.T) {
	d, _ := newDispatcher(t, 4, &recMailer{})

	got := d.Recipients(context.Background(), EmailSpec{
		Admin:     true,
		Addresses: []string{" clerk@example.com", ""},
		Roles:     []string{"superadmin"},
		UserIDs:   []string{"u1"},
	})
	// configured admin and s1 differ only in case
	assert.Equal(t, []string{"boss@example.com", "clerk@example.com", "second@example.com"}, got)
}

func TestHandleFansOutAndMails(t *testing.T) {
	mailer := &recMailer{fail: map[string]bool{"second@example.com": true}}
	d, st := newDispatcher(t, 4, mailer)

	d.Handle(context.Background(), Event{
		Type:    TypeLowStock,
		Message: "Widget is low (3)",
		ItemID:  "item1",
		ToRoles: []string{"admin", "superadmin"},
		Meta:    LowStockMeta{ItemName: "Widget", Quantity: 3, Threshold: 20, Unit: "piece"},
		Email:   &EmailSpec{Subject: "Low stock: Widget", Roles: []string{"admin", "superadmin"}},
	})

	rows := st.all()
	require.Len(t, rows, 3)
	for _, n := range rows {
		require.NotNil(t, n.ToUser)
		assert.Equal(t, "item1", *n.ItemID)
		assert.Equal(t, TypeLowStock, n.Type)
	}
	// the failing address is skipped, the rest still go out
	assert.Equal(t, []string{"Boss@Example.com", "admin@example.com"}, mailer.to())
	assert.True(t, strings.Contains(mailer.sent[0].HTML, "Widget"))
}

func TestHandleBroadcastWithoutTarget(t *testing.T) {
	d, st := newDispatcher(t, 4, &recMailer{})
	d.Handle(context.Background(), Event{Type: TypeInfo, Message: "hello"})

	rows := st.all()
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].ToUser)
}

func TestPublishNeverBlocks(t *testing.T) {
	d, st := newDispatcher(t, 2, &recMailer{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Publish(Event{Type: TypeInfo, Message: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	d.Flush(context.Background())
	assert.Len(t, st.all(), 2)
}

func TestRunDrainsOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	d, st := newDispatcher(t, 16, &recMailer{})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	for i := 0; i < 5; i++ {
		d.Publish(Event{Type: TypeInfo, Message: "x", ToUser: "u1"})
	}
	cancel()
	require.NoError(t, <-errc)
	assert.Len(t, st.all(), 5)
}

func TestRenderHTMLEscapes(t *testing.T) {
	html, err := renderHTML("s", "<b>msg</b>", ReleaseItemMeta{ItemName: "<script>", Quantity: 2})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;b&gt;msg&lt;/b&gt;")
}
