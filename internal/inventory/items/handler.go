package items

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

// RegisterRoutes expects r to run auth.RequireAuth already. Release and
// return on an item are mounted by their own packages.
func RegisterRoutes(r gin.IRoutes, svc *Service, pub notify.Publisher) {
	RegisterValidators()
	h := &Handler{svc: svc, pub: pub}

	r.POST("/items", h.Create)
	r.GET("/items", h.List)
	r.GET("/items/:id", h.Get)
	r.PUT("/items/:id", auth.RequireRole(auth.RoleSuperAdmin), h.Edit)
	r.DELETE("/items/:id", auth.RequireRole(auth.RoleSuperAdmin), h.Delete)
	r.PATCH("/items/:id/restore", auth.RequireRole(auth.RoleSuperAdmin), h.Restore)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	a, _ := auth.FromContext(c)
	it, events, err := h.svc.Create(c.Request.Context(), a, req)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	h.pub.Publish(events...)
	c.Header("Location", "/items/"+it.ID)
	c.JSON(http.StatusCreated, it)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		Category:   httpx.OptString(c, "category"),
		Refundable: httpx.ParseBool(c, "refundable"),
		Name:       httpx.OptString(c, "q"),
	}
	if v := c.Query("status"); v != "" {
		st := Status(v)
		if st != StatusIn && st != StatusOut && st != StatusDeleted {
			apperr.Render(c, apperr.Invalidf("unknown status %q", v))
			return
		}
		f.Status = &st
	}
	if b := httpx.ParseBool(c, "include_deleted"); b != nil {
		f.IncludeDeleted = *b
	}
	res, err := h.svc.List(c.Request.Context(), f, httpx.ParsePage(c))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) Edit(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	a, _ := auth.FromContext(c)
	it, events, err := h.svc.Edit(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	h.pub.Publish(events...)
	c.JSON(http.StatusOK, it)
}

func (h *Handler) Delete(c *gin.Context) {
	a, _ := auth.FromContext(c)
	it, events, err := h.svc.SoftDelete(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	h.pub.Publish(events...)
	c.JSON(http.StatusOK, it)
}

func (h *Handler) Restore(c *gin.Context) {
	a, _ := auth.FromContext(c)
	it, events, err := h.svc.Restore(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	h.pub.Publish(events...)
	c.JSON(http.StatusOK, it)
}
