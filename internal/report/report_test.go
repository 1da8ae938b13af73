package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"storeroom-backend/internal/alerts"
	"storeroom-backend/internal/inventory/items"
	"storeroom-backend/internal/inventory/releases"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/db"
	"storeroom-backend/internal/platform/ids"
)

var super = auth.Actor{ID: "s1", Role: auth.RoleSuperAdmin, Name: "Sam"}

func setup(t *testing.T) (*Service, *items.Service, *releases.Service, *ids.FixedClock) {
	t.Helper()
	conn := db.NewTestDB(t)
	clock := &ids.FixedClock{T: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	eval := alerts.NewEvaluator(alerts.DefaultConfig())
	gen := ids.NewULIDGen()
	itemSvc := items.NewService(conn, eval, clock, gen)
	relSvc := releases.NewService(conn, itemSvc.Ledger(), eval, clock, gen)
	return NewService(conn, itemSvc.Ledger()), itemSvc, relSvc, clock
}

func TestMonthlyWorkbook(t *testing.T) {
	svc, itemSvc, relSvc, clock := setup(t)
	ctx := context.Background()
	qty := 40
	it, _, err := itemSvc.Create(ctx, super, items.CreateRequest{Name: "Markers", Category: "office", Quantity: &qty})
	require.NoError(t, err)

	_, _, err = relSvc.CreateRelease(ctx, super, releases.CreateInput{ItemID: it.ID, Quantity: 5, Recipient: "Room A"})
	require.NoError(t, err)
	_, _, err = relSvc.CreateRelease(ctx, super, releases.CreateInput{ItemID: it.ID, Quantity: 3, Recipient: "Room B"})
	require.NoError(t, err)

	// next month, excluded from March
	clock.T = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	_, _, err = relSvc.CreateRelease(ctx, super, releases.CreateInput{ItemID: it.ID, Quantity: 1, Recipient: "Room C"})
	require.NoError(t, err)

	m, err := svc.Monthly(ctx, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), m.From)
	require.Len(t, m.Releases, 2)
	require.Len(t, m.Totals, 1)
	assert.Equal(t, 8, m.Totals[0].Released)
	assert.Equal(t, 31, m.Totals[0].OnHand)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, m))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetSummary, sheetReleases, sheetReturns}, f.GetSheetList())
	title, err := f.GetCellValue(sheetSummary, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Storeroom report 2025-03", title)
	released, err := f.GetCellValue(sheetSummary, "D3")
	require.NoError(t, err)
	assert.Equal(t, "8", released)

	rows, err := f.GetRows(sheetReleases)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "Room A", rows[1][4])
}

func TestItemsCSVCharsets(t *testing.T) {
	list := []items.Item{{
		ID: "01J", Name: "ボールペン", Category: "office", Unit: items.DefaultUnit,
		Quantity: 12, Status: items.StatusIn, CreatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}}

	enc, err := Encoding("shift_jis")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteItemsCSV(&buf, list, enc))
	assert.NotContains(t, buf.String(), "ボールペン", "output must not be utf-8")

	decoded, err := io.ReadAll(transform.NewReader(&buf, japanese.ShiftJIS.NewDecoder()))
	require.NoError(t, err)
	recs, err := csv.NewReader(bytes.NewReader(decoded)).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "ボールペン", recs[1][1])
	assert.Equal(t, "12", recs[1][4])

	// windows-1252 cannot hold katakana; the row is still written
	enc, err = Encoding("windows-1252")
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, WriteItemsCSV(&buf, list, enc))
	assert.Contains(t, buf.String(), "office")

	_, err = Encoding("ebcdic")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}
