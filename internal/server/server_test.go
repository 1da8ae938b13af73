package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeroom-backend/internal/alerts/sweep"
	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/config"
	"storeroom-backend/internal/platform/db"
	"storeroom-backend/internal/platform/ids"
	"storeroom-backend/internal/platform/logging"
)

func init() { gin.SetMode(gin.TestMode) }

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(evs ...notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
}

func (r *recorder) types() []notify.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	t      *testing.T
	router *gin.Engine
	pub    *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := db.NewTestDB(t)
	cfg := config.Default()
	svcs := NewServices(conn, &cfg, ids.RealClock{}, ids.NewULIDGen())
	pub := &recorder{}
	log := logging.Discard()
	sw := sweep.New(svcs.Items.Ledger(), svcs.Releases, svcs.Eval, pub, svcs.Clock, nil, log)

	_, created, err := svcs.Accounts.SeedAdmin(context.Background(), "Root", "root@example.com", "rootpassword")
	require.NoError(t, err)
	require.True(t, created)

	return &harness{t: t, router: NewRouter(&cfg, log, svcs, pub, sw), pub: pub}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *harness) login(email, password string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	return decode[struct {
		Token string `json:"token"`
	}](h.t, w).Token
}

func TestOpsEndpoints(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api-docs/openapi.yaml", "", nil).Code)

	w := h.do(http.MethodGet, "/api/v1/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[errBody](t, w).Error.Code)

	root := h.login("root@example.com", "rootpassword")
	w = h.do(http.MethodGet, "/api/v1/no-such-thing", root, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestStockRoundTripOverHTTP(t *testing.T) {
	h := newHarness(t)
	root := h.login("root@example.com", "rootpassword")

	w := h.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Uma", "email": "uma@example.com", "password": "umapassword",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "user", decode[map[string]any](t, w)["role"])
	user := h.login("uma@example.com", "umapassword")

	// any signed-in user may add stock
	w = h.do(http.MethodPost, "/api/v1/items", user, map[string]any{
		"name": "Safety goggles", "category": "ppe", "quantity": 25, "refundable": true, "measuring_unit": "pair",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	itemID := decode[map[string]any](t, w)["id"].(string)

	w = h.do(http.MethodPost, "/api/v1/items", user, map[string]any{
		"name": "Gloves", "category": "ppe", "quantity": 5, "measuring_unit": "bucket",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	editBody := map[string]any{"name": "Safety goggles", "category": "ppe", "quantity": 30, "measuring_unit": "pair", "refundable": true}
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPut, "/api/v1/items/"+itemID, user, editBody).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPut, "/api/v1/items/"+itemID, root, editBody).Code)

	// the item route requires a reason
	w = h.do(http.MethodPost, "/api/v1/items/"+itemID+"/release", user, map[string]any{"quantity": 2, "recipient": "Lab 1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/items/"+itemID+"/release", user, map[string]any{"quantity": 31, "recipient": "Lab 1", "reason": "inspection"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", decode[errBody](t, w).Error.Code)

	w = h.do(http.MethodPost, "/api/v1/items/"+itemID+"/release", user, map[string]any{
		"quantity": 12, "recipient": "Lab 1", "reason": "inspection", "returnable": true, "expected_return_by": "2030-01-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	releaseID := decode[map[string]any](t, w)["id"].(string)

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPatch, "/api/v1/releases/"+releaseID+"/approve", user, nil).Code)
	w = h.do(http.MethodPatch, "/api/v1/releases/"+releaseID+"/approve", root, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "approved", decode[map[string]any](t, w)["approval_status"])
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPatch, "/api/v1/releases/"+releaseID+"/cancel", root, nil).Code)

	w = h.do(http.MethodPost, "/api/v1/items/"+itemID+"/return", user, map[string]any{
		"release_id": releaseID, "returned_by": "Lab 1", "quantity": 12, "condition": "good",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/api/v1/releases/"+releaseID, user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fully_returned", decode[map[string]any](t, w)["return_status"])

	w = h.do(http.MethodGet, "/api/v1/items/"+itemID, user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[map[string]any](t, w)
	assert.EqualValues(t, 30, detail["quantity"])
	assert.Len(t, detail["releases"], 1)
	assert.Len(t, detail["returns"], 1)

	assert.Contains(t, h.pub.types(), notify.TypeReleaseItem)
	assert.Contains(t, h.pub.types(), notify.TypeReturnConfirmation)
	assert.Contains(t, h.pub.types(), notify.TypeRegistration)
}

func TestRoleGatedEndpoints(t *testing.T) {
	h := newHarness(t)
	root := h.login("root@example.com", "rootpassword")

	w := h.do(http.MethodPost, "/api/v1/users", root, map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "adapassword", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	admin := h.login("ada@example.com", "adapassword")

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/users", admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/v1/alerts/sweeps/low-stock", admin, nil).Code)

	w = h.do(http.MethodPost, "/api/v1/alerts/sweeps/low-stock", root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "low-stock", decode[map[string]any](t, w)["kind"])
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/alerts/sweeps/bogus", root, nil).Code)

	w = h.do(http.MethodGet, "/api/v1/reports/items.csv?charset=shift_jis", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/reports/items.csv?charset=klingon", admin, nil).Code)

	w = h.do(http.MethodGet, "/api/v1/reports/monthly?month=2025-03", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxType, w.Header().Get("Content-Type"))

	w = h.do(http.MethodGet, "/api/v1/notifications", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
