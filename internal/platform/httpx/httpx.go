package httpx

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"storeroom-backend/internal/platform/db"
)

func ParseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

// ParsePage reads limit/offset/order from the query string.
func ParsePage(c *gin.Context) db.Page {
	return db.Page{
		Limit:  ParseIntDefault(c.Query("limit"), db.DefaultLimit),
		Offset: ParseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}.Normalize()
}

// ParseBool returns nil when the parameter is absent or unparsable.
func ParseBool(c *gin.Context, key string) *bool {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

// ParseTime accepts RFC3339 or a plain 2006-01-02 date (UTC midnight).
func ParseTime(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return &t, true
	}
	return nil, false
}

// OptString returns nil for an absent or empty query parameter.
func OptString(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}
