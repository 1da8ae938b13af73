package server

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storeroom-backend/internal/accounts"
	"storeroom-backend/internal/alerts"
	"storeroom-backend/internal/alerts/sweep"
	"storeroom-backend/internal/inventory/items"
	"storeroom-backend/internal/inventory/releases"
	"storeroom-backend/internal/inventory/returns"
	"storeroom-backend/internal/notify"
	"storeroom-backend/internal/platform/apidocs"
	"storeroom-backend/internal/platform/apperr"
	"storeroom-backend/internal/platform/auth"
	"storeroom-backend/internal/platform/config"
	"storeroom-backend/internal/platform/ids"
	"storeroom-backend/internal/platform/logging"
	"storeroom-backend/internal/report"
)

// Services is every domain service built over one connection.
type Services struct {
	Clock         ids.Clock
	IDs           ids.IDGen
	Eval          *alerts.Evaluator
	Accounts      *accounts.Service
	Items         *items.Service
	Releases      *releases.Service
	Returns       *returns.Service
	Reports       *report.Service
	Notifications *notify.Store
}

func NewServices(conn *sql.DB, cfg *config.Config, clock ids.Clock, idgen ids.IDGen) *Services {
	eval := alerts.NewEvaluator(alerts.Config{
		Threshold: cfg.Alerts.LowStockThreshold,
		Tiers:     cfg.Alerts.SweepThresholds,
	})
	itemSvc := items.NewService(conn, eval, clock, idgen)
	relSvc := releases.NewService(conn, itemSvc.Ledger(), eval, clock, idgen)
	return &Services{
		Clock:    clock,
		IDs:      idgen,
		Eval:     eval,
		Accounts: accounts.NewService(conn, auth.NewIssuer(cfg.JWTKey(), cfg.Auth.TokenTTL), clock, idgen),
		Items:    itemSvc,
		Releases: relSvc,
		Returns: returns.NewService(conn, itemSvc, relSvc.Store(), eval, clock, idgen,
			returns.Options{StrictBalance: cfg.Returns.StrictBalance}),
		Reports:       report.NewService(conn, itemSvc.Ledger()),
		Notifications: notify.NewStore(conn),
	}
}

// NewRouter mounts every route under /api/v1.
func NewRouter(cfg *config.Config, logger *logrus.Logger, svc *Services, pub notify.Publisher, sweeper *sweep.Sweeper) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logging.RequestLogger(logger), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Location", "X-Request-ID"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	apidocs.RegisterRoutes(r)

	api := r.Group("/api/v1")
	protected := api.Group("", auth.RequireAuth(cfg.JWTKey()))

	accounts.RegisterRoutes(api, protected, svc.Accounts, pub)
	items.RegisterRoutes(protected, svc.Items, pub)
	releases.RegisterRoutes(protected, svc.Releases, pub)
	returns.RegisterRoutes(protected, svc.Returns, pub)
	notify.RegisterRoutes(protected, svc.Notifications)
	report.RegisterRoutes(protected, svc.Reports, svc.Clock)
	sweep.RegisterRoutes(protected, sweeper)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			apperr.Render(c, apperr.NotFound("no such endpoint"))
			return
		}
		c.Status(http.StatusNotFound)
	})
	return r
}
