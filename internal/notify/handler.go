package notify

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/db"
	"storeroom-backend/internal/platform/httpx"
)

type Handler struct{ store *Store }

func RegisterRoutes(r gin.IRoutes, store *Store) {
	h := &Handler{store: store}
	r.GET("/notifications", h.List)
	r.PATCH("/notifications/:id/read", h.MarkRead)
}

type ListResponse struct {
	Items      []Notification `json:"items"`
	Total      int64          `json:"total"`
	NextOffset int            `json:"next_offset"`
}

func (h *Handler) List(c *gin.Context) {
	a, _ := auth.FromContext(c)
	f := ListFilter{UserID: a.ID}
	if b := httpx.ParseBool(c, "unread"); b != nil {
		f.UnreadOnly = *b
	}
	if v := c.Query("type"); v != "" {
		t := Type(v)
		f.Type = &t
	}
	p := httpx.ParsePage(c)
	items, total, err := h.store.List(c.Request.Context(), f, p)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: items, Total: total, NextOffset: db.NextOffset(total, p)})
}

func (h *Handler) MarkRead(c *gin.Context) {
	a, _ := auth.FromContext(c)
	ok, err := h.store.MarkRead(c.Request.Context(), c.Param("id"), a.ID)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	if !ok {
		apperr.Render(c, apperr.NotFound("notification not found"))
		return
	}
	c.Status(http.StatusNoContent)
}
