package releases

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/httpx"
	"storeroom-backend/internal/platform/ids"
)

type Handler struct {
	svc   *Service
	pub   notify.Publisher
	clock ids.Clock
}

// RegisterRoutes expects r to run auth.RequireAuth already.
func RegisterRoutes(r gin.IRoutes, svc *Service, pub notify.Publisher) {
	h := &Handler{svc: svc, pub: pub, clock: svc.clock}
	managers := auth.RequireRole(auth.RoleAdmin, auth.RoleSuperAdmin)
	super := auth.RequireRole(auth.RoleSuperAdmin)

	r.POST("/items/:id/release", h.ReleaseItem)
	r.POST("/releases", h.Create)
	r.GET("/releases", h.List)
	r.GET("/releases/overdue", h.Overdue)
	r.GET("/releases/:id", h.Get)
	r.PUT("/releases/:id", managers, h.Update)
	r.DELETE("/releases/:id", managers, h.Delete)
	r.PATCH("/releases/:id/approve", super, h.transition(ApprovalApproved))
	r.PATCH("/releases/:id/cancel", super, h.transition(ApprovalCancelled))
	r.PATCH("/releases/:id/pending", super, h.transition(ApprovalPending))
	r.PATCH("/releases/:id/status", super, h.SetStatus)
}

func (h *Handler) ReleaseItem(c *gin.Context) {
	var req ItemReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	due, err := ParseDue(req.ExpectedReturnBy)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	h.create(c, CreateInput{
		ItemID:           c.Param("id"),
		Quantity:         req.Quantity,
		Recipient:        req.Recipient,
		Reason:           req.Reason,
		RequireReason:    true,
		Returnable:       &req.Returnable,
		ExpectedReturnBy: due,
	})
}

func (h *Handler) Create(c *gin.Context) {
	var req LegacyReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	due, err := ParseDue(req.ExpectedReturnBy)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	h.create(c, CreateInput{
		ItemID:           req.ItemID,
		Quantity:         req.Quantity,
		Recipient:        req.Recipient,
		Reason:           req.Reason,
		Returnable:       req.Returnable,
		ExpectedReturnBy: due,
	})
}

func (h *Handler) create(c *gin.Context, in CreateInput) {
	a, _ := auth.FromContext(c)
	rel, events, err := h.svc.CreateRelease(c.Request.Context(), a, in)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	h.pub.Publish(events...)
	c.Header("Location", "/releases/"+rel.ID)
	c.JSON(http.StatusCreated, rel)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		ItemID:     httpx.OptString(c, "item_id"),
		ReleasedBy: httpx.OptString(c, "released_by"),
		Recipient:  httpx.OptString(c, "recipient"),
		Returnable: httpx.ParseBool(c, "returnable"),
	}
	if v := c.Query("approval_status"); v != "" {
		if !ValidApproval(v) {
			apperr.Render(c, apperr.Invalidf("unknown approval_status %q", v))
			return
		}
		a := Approval(v)
		f.Approval = &a
	}
	var ok bool
	if f.From, ok = httpx.ParseTime(c.Query("from")); !ok {
		apperr.Render(c, apperr.Invalid("invalid from"))
		return
	}
	if f.To, ok = httpx.ParseTime(c.Query("to")); !ok {
		apperr.Render(c, apperr.Invalid("invalid to"))
		return
	}
	if b := httpx.ParseBool(c, "outstanding"); b != nil {
		f.OutstandingOnly = *b
	}
	res, err := h.svc.List(c.Request.Context(), f, httpx.ParsePage(c))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Overdue(c *gin.Context) {
	list, err := h.svc.ListOverdue(c.Request.Context(), h.clock.Now())
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": len(list)})
}

func (h *Handler) Get(c *gin.Context) {
	rel, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	rel, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		apperr.Render(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SetStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	h.setApproval(c, Approval(req.Status))
}

func (h *Handler) transition(to Approval) gin.HandlerFunc {
	return func(c *gin.Context) { h.setApproval(c, to) }
}

func (h *Handler) setApproval(c *gin.Context, to Approval) {
	a, _ := auth.FromContext(c)
	rel, events, err := h.svc.SetApproval(c.Request.Context(), a, c.Param("id"), to)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	h.pub.Publish(events...)
	c.JSON(http.StatusOK, rel)
}
