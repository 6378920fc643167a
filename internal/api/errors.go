package api

import (
	"errors"
	"net/http"

	"github.com/blog-moderation-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// respondError maps service errors to HTTP responses. Unknown errors are
// logged and reported as 500 without detail.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	var verr *service.ValidationErrors
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "Validation failed",
			"fields": verr.Errors,
		})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to do that"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
