// Package middleware holds gin middleware for the HTTP surface.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-rooms/internal/repository"
)

// RateLimit rejects clients exceeding limit requests per window, keyed by
// client IP. Counting lives in the state repository so limits hold across
// instances. On a counter failure the request is allowed through: the admin
// surface should not go dark because Redis blinked.
func RateLimit(store repository.StateRepository, limit int, window time.Duration) gin.HandlerFunc {
	log := logrus.WithField("component", "ratelimit")
	return func(c *gin.Context) {
		exceeded, err := store.CheckRateLimit(c.Request.Context(), c.ClientIP(), limit, window)
		if err != nil {
			log.WithError(err).Warn("Rate limit check failed, allowing request")
			c.Next()
			return
		}
		if exceeded {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
