package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricescout/api/handler"
	"github.com/use-agent/pricescout/api/middleware"
	"github.com/use-agent/pricescout/browser"
	"github.com/use-agent/pricescout/catalog"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/gate"
	"github.com/use-agent/pricescout/scraper"
	"github.com/use-agent/pricescout/store"
)

// Deps carries everything the routes need. The stats endpoints read the
// pool and gate directly rather than through the service so they stay
// responsive while scrapes are in flight.
type Deps struct {
	Service *scraper.Service
	Pool    *browser.Pool
	Gate    *gate.Gate
	Store   *store.Store
	Catalog *catalog.Client
	Config  *config.Config
	Start   time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and stats endpoints are intentionally outside auth so monitoring
// probes always work.
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(d.Config.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(d.Pool, d.Gate, d.Start))
	v1.GET("/pool/stats", handler.PoolStats(d.Pool))
	v1.GET("/gate/stats", handler.GateStats(d.Gate))

	protected := v1.Group("")
	if d.Config.Auth.Enabled {
		protected.Use(middleware.Auth(d.Config.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(d.Config.RateLimit))

	// Price lookup
	protected.POST("/cards/price", handler.Price(d.Service))

	// Catalog proxy
	protected.GET("/card-sets/:code", handler.SetName(d.Catalog))

	return r
}
