package ids

import (
	"crypto/rand"
	"sync"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

// ===== Clock & ID =====

type Clock interface{ Now() time.Time }

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant. Tests move it by assigning T.
type FixedClock struct{ T time.Time }

func (c *FixedClock) Now() time.Time { return c.T }

type IDGen interface{ NewULID(t time.Time) string }

// ULIDGen hands out monotonic ULIDs; the entropy source is shared so ids
// minted within the same millisecond still sort in creation order.
type ULIDGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewULIDGen() *ULIDGen {
	return &ULIDGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ULIDGen) NewULID(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// Valid reports whether s parses as a ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
