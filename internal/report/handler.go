package report

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/ids"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc   *Service
	clock ids.Clock
}

// RegisterRoutes expects r to run auth.RequireAuth already.
func RegisterRoutes(r gin.IRoutes, svc *Service, clock ids.Clock) {
	h := &Handler{svc: svc, clock: clock}
	managers := auth.RequireRole(auth.RoleAdmin, auth.RoleSuperAdmin)

	r.GET("/reports/monthly", managers, h.Monthly)
	r.GET("/reports/items.csv", managers, h.ItemsCSV)
}

// Monthly serves ?month=YYYY-MM, defaulting to the current month.
func (h *Handler) Monthly(c *gin.Context) {
	month := h.clock.Now()
	if v := c.Query("month"); v != "" {
		t, err := time.Parse("2006-01", v)
		if err != nil {
			apperr.Render(c, apperr.Invalid("month must be YYYY-MM"))
			return
		}
		month = t
	}
	m, err := h.svc.Monthly(c.Request.Context(), month)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, m); err != nil {
		apperr.Render(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="storeroom-`+m.From.Format("2006-01")+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) ItemsCSV(c *gin.Context) {
	charset := c.DefaultQuery("charset", CharsetUTF8)
	enc, err := Encoding(charset)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	list, err := h.svc.Items(c.Request.Context())
	if err != nil {
		apperr.Render(c, err)
		return
	}
	var buf bytes.Buffer
	if err := WriteItemsCSV(&buf, list, enc); err != nil {
		apperr.Render(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="items.csv"`)
	c.Data(http.StatusOK, "text/csv; charset="+charset, buf.Bytes())
}
