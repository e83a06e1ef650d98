package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricescout/browser"
	"github.com/use-agent/pricescout/gate"
)

// PoolStats returns a handler for GET /api/v1/pool/stats.
func PoolStats(pool *browser.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, pool.Stats())
	}
}

// GateStats returns a handler for GET /api/v1/gate/stats.
func GateStats(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, g.Stats())
	}
}
