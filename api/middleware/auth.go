package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricescout/models"
)

// identityKey is the gin context key under which Auth records the caller
// identity. RateLimit reads it so authenticated clients are bucketed by
// key rather than by IP.
const identityKey = "caller_identity"

// Auth guards the scrape surface with static API keys. Every key grants
// the same access; the point is keeping anonymous traffic away from an
// endpoint that ties up a real browser for seconds per call.
//
// Keys arrive as X-API-Key or as a bearer token. Comparison is constant
// time across the whole key set so response timing does not reveal how
// close a guessed key came.
func Auth(apiKeys []string) gin.HandlerFunc {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		presented := presentedKey(c)
		if !keyAuthorized(keys, presented) {
			msg := "invalid API key"
			if presented == "" {
				msg = "missing API key: provide X-API-Key or Authorization: Bearer <key>"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeUnauthorized,
					Message: msg,
				},
			})
			return
		}
		c.Set(identityKey, identityFor(presented))
		c.Next()
	}
}

// presentedKey tries X-API-Key first, then Authorization: Bearer.
func presentedKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// keyAuthorized compares against every configured key even after a match,
// keeping the work identical for valid and invalid keys.
func keyAuthorized(keys [][]byte, presented string) bool {
	if presented == "" {
		return false
	}
	p := []byte(presented)
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare(k, p)
	}
	return match == 1
}

// identityFor derives a short fingerprint from the key so downstream
// middleware and logs can name the caller without carrying the secret.
func identityFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key:" + hex.EncodeToString(sum[:6])
}
