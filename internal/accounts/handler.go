package accounts

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

// RegisterRoutes mounts login/register on public and everything else on
// protected, which must already run auth.RequireAuth.
func RegisterRoutes(public, protected gin.IRoutes, svc *Service, pub notify.Publisher) {
	h := &Handler{svc: svc, pub: pub}

	public.POST("/auth/register", h.Register)
	public.POST("/auth/login", h.Login)

	protected.GET("/auth/me", h.Me)
	protected.GET("/users/profile", h.Me)
	protected.PUT("/users/profile", h.UpdateProfile)

	protected.GET("/users", auth.RequireRole(auth.RoleAdmin, auth.RoleSuperAdmin), h.List)
	protected.POST("/users", auth.RequireRole(auth.RoleSuperAdmin), h.Create)
	protected.GET("/users/:id", h.Get)
	protected.PUT("/users/:id", auth.RequireRole(auth.RoleSuperAdmin), h.Update)
	protected.DELETE("/users/:id", auth.RequireRole(auth.RoleSuperAdmin), h.Delete)
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	acct, events, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	h.pub.Publish(events...)
	c.JSON(http.StatusCreated, acct)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Me(c *gin.Context) {
	a, _ := auth.FromContext(c)
	acct, err := h.svc.Get(c.Request.Context(), a.ID)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	a, _ := auth.FromContext(c)
	var req ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	acct, err := h.svc.UpdateProfile(c.Request.Context(), a.ID, req)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (h *Handler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), httpx.OptString(c, "role"), httpx.ParsePage(c))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	acct, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.Header("Location", "/users/"+acct.ID)
	c.JSON(http.StatusCreated, acct)
}

func (h *Handler) Get(c *gin.Context) {
	acct, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.RenderBind(c, err)
		return
	}
	acct, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		apperr.Render(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (h *Handler) Delete(c *gin.Context) {
	a, _ := auth.FromContext(c)
	if err := h.svc.Delete(c.Request.Context(), a, c.Param("id")); err != nil {
		apperr.Render(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
