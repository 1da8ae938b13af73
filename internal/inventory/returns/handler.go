package returns

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/httpx"
)

type Handler struct {
	svc *Service
	pub notify.Publisher
}

// RegisterRoutes expects r to run auth.RequireAuth already.
func RegisterRoutes(r gin.IRoutes, svc *Service, pub notify.Publisher) {
	h := &Handler{svc: svc, pub: pub}

	r.POST("/items/:id/return", h.ReturnItem)
	r.POST("/returns", h.Create)
	r.GET("/returns", h.List)
	r.GET("/returns/returnable", h.Returnable)
	r.GET("/returns/:id", h.Get)
	r.PUT("/returns/:id", h.Update)
	r.DELETE("/returns/:id", h.Archive)
}

func (h *Handler) ReturnItem(c *gin.Context) {
	var req ItemReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	h.create(c, c.Param("id"), req)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	h.create(c, req.ItemID, req.ItemReturnRequest)
}

func (h *Handler) create(c *gin.Context, itemID string, req ItemReturnRequest) {
	a, _ := auth.FromContext(c)
	ret, events, err := h.svc.CreateReturn(c.Request.Context(), a, itemID, req)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	h.pub.Publish(events...)
	c.Header("Location", "/returns/"+ret.ID)
	c.JSON(http.StatusCreated, ret)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		ItemID:    httpx.OptString(c, "item_id"),
		ReleaseID: httpx.OptString(c, "release_id"),
	}
	if v := c.Query("condition"); v != "" {
		if !ValidCondition(v) {
			apperr.Render(c, apperr.Invalidf("unknown condition %q", v))
			return
		}
		cond := Condition(v)
		f.Condition = &cond
	}
	if v := c.Query("status"); v != "" {
		st := Status(v)
		if st != StatusProcessed && st != StatusPendingReview && st != StatusArchived {
			apperr.Render(c, apperr.Invalidf("unknown status %q", v))
			return
		}
		f.Status = &st
	}
	if b := httpx.ParseBool(c, "include_archived"); b != nil {
		f.IncludeArchived = *b
	}
	res, err := h.svc.List(c.Request.Context(), f, httpx.ParsePage(c))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Returnable(c *gin.Context) {
	list, err := h.svc.Returnable(c.Request.Context())
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": len(list)})
}

func (h *Handler) Get(c *gin.Context) {
	ret, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	ret, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}

func (h *Handler) Archive(c *gin.Context) {
	ret, err := h.svc.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}
