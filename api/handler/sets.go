package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricescout/catalog"
	"github.com/use-agent/pricescout/models"
)

// SetName returns a handler for GET /api/v1/card-sets/:code, a thin proxy
// over the catalog's memoized set index. Useful for checking what set name
// a scrape will filter on before submitting it.
func SetName(cat *catalog.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
		if code == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "set code is required",
				},
			})
			return
		}

		name, err := cat.SetName(c.Request.Context(), code)
		if err != nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"set_code": code,
			"set_name": name,
		})
	}
}
