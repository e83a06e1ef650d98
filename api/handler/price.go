package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricescout/models"
	"github.com/use-agent/pricescout/scraper"
)

// Price returns a handler for POST /api/v1/cards/price.
//
// The response body is a PriceResult in every case where the request was
// well-formed: failures carry success=false, the error detail, and any
// diagnostic the scraper captured; the HTTP status tells retrying clients
// how to react.
func Price(svc *scraper.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		result, err := svc.ScrapePrice(c.Request.Context(), &req)
		if err != nil {
			status := mapErrorToStatus(err)
			if result != nil {
				c.JSON(status, result)
				return
			}
			scrapeErr, ok := err.(*models.ScrapeError)
			if !ok {
				scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
			}
			c.JSON(status, models.ErrorResponse{Success: false, Error: scrapeErr.ToDetail()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// mapErrorToStatus translates error codes to HTTP status codes.
//
// Saturation (admission timeout, exhausted or degraded pool) maps to 503 so
// load balancers back off; a missing variant or price is 404; upstream
// navigation trouble is 502/504.
func mapErrorToStatus(err error) int {
	switch models.CodeOf(err) {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNoVariantFound, models.ErrCodePriceNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeAdmissionTimeout, models.ErrCodePoolExhausted, models.ErrCodeBrowserLaunch:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeNavigation:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
