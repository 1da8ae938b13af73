package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireAuth(secret), func(c *gin.Context) {
		a, _ := FromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": a.ID, "role": a.Role})
	})
	r.GET("/admin", RequireAuth(secret), RequireRole(RoleAdmin, RoleSuperAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r := router()
	iss := NewIssuer(secret, time.Hour)
	tok, _, err := iss.Issue(Actor{ID: "u1", Role: RoleUser}, time.Now())
	require.NoError(t, err)

	w := do(r, "/me", tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"u1"`)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "garbage").Code)

	other, _, err := NewIssuer([]byte("other"), time.Hour).Issue(Actor{ID: "u1", Role: RoleUser}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", other).Code)

	expired, _, err := iss.Issue(Actor{ID: "u1", Role: RoleUser}, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", expired).Code)
}

func TestRequireRole(t *testing.T) {
	r := router()
	iss := NewIssuer(secret, time.Hour)

	user, _, _ := iss.Issue(Actor{ID: "u1", Role: RoleUser}, time.Now())
	admin, _, _ := iss.Issue(Actor{ID: "a1", Role: RoleAdmin}, time.Now())

	w := do(r, "/admin", user)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"FORBIDDEN"`)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", admin).Code)
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "hunter22"))
	assert.False(t, CheckPassword(h, "hunter23"))
}
