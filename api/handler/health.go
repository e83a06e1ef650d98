package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricescout/browser"
	"github.com/use-agent/pricescout/gate"
	"github.com/use-agent/pricescout/models"
)

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when any pool slot is permanently down or when every
// gate slot is in use; both mean new requests will queue or fail.
func Health(pool *browser.Pool, g *gate.Gate, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		poolStats := pool.Stats()
		gateStats := g.Stats()

		status := "healthy"
		if poolStats.DegradedSlots > 0 || gateStats.InUse >= gateStats.Capacity {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: poolStats,
			GateStats: gateStats,
			Version:   "0.1.0",
		})
	}
}
