package api

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/mr1hm/go-flood-risk/internal/apperrors"
	"github.com/mr1hm/go-flood-risk/internal/models"
)

// RateLimitMiddleware applies one global token bucket to every request.
// A non-positive rps disables limiting.
func RateLimitMiddleware(rps float64) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := int(math.Ceil(rps))
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResult{
				Error:   true,
				Code:    apperrors.CodeRateLimited,
				Message: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
