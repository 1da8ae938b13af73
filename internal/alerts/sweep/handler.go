package sweep

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
)

// RegisterRoutes mounts POST /alerts/sweeps/:kind for superadmins.
func RegisterRoutes(r gin.IRoutes, s *Sweeper) {
	r.POST("/alerts/sweeps/:kind", auth.RequireRole(auth.RoleSuperAdmin), func(c *gin.Context) {
		res, err := s.Run(c.Request.Context(), c.Param("kind"))
		if err != nil {
			apperr.Render(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})
}
