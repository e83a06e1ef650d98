package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/use-agent/pricescout/models"
)

func TestMapErrorToStatus(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{models.ErrCodeInvalidInput, http.StatusBadRequest},
		{models.ErrCodeNoVariantFound, http.StatusNotFound},
		{models.ErrCodePriceNotFound, http.StatusNotFound},
		{models.ErrCodeAdmissionTimeout, http.StatusServiceUnavailable},
		{models.ErrCodePoolExhausted, http.StatusServiceUnavailable},
		{models.ErrCodeBrowserLaunch, http.StatusServiceUnavailable},
		{models.ErrCodeNavigation, http.StatusGatewayTimeout},
		{models.ErrCodeRateLimited, http.StatusTooManyRequests},
		{models.ErrCodeUnauthorized, http.StatusUnauthorized},
		{models.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		err := models.NewScrapeError(c.code, "x", nil)
		if got := mapErrorToStatus(err); got != c.want {
			t.Errorf("mapErrorToStatus(%s) = %d, want %d", c.code, got, c.want)
		}
	}

	// Untyped errors map to 500.
	if got := mapErrorToStatus(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("untyped error = %d, want 500", got)
	}
}
