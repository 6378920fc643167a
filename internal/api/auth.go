package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/blog-moderation-api/internal/config"
	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const viewerKey = "viewer"

// viewerMiddleware resolves the bearer token, if any, to the current user.
// Requests without a token continue anonymously; a bad token is rejected.
func viewerMiddleware(cfg *config.AuthConfig, users service.UserService, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("middleware", "auth").Logger()

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)
	secret := []byte(cfg.JWTSecret)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid authorization header",
				"message": "Format should be: Bearer <token>",
			})
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := parser.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			log.Debug().Err(err).Msg("Token validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		user, err := users.GetUser(c.Request.Context(), claims.Subject)
		if errors.Is(err, service.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown user"})
			return
		}
		if err != nil {
			respondError(c, log, err)
			c.Abort()
			return
		}

		c.Set(viewerKey, user)
		c.Next()
	}
}

// requireAuth rejects anonymous requests
func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if viewerFrom(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Next()
	}
}

// requireOperator allows only the listed user IDs through. An empty list
// closes the route to everyone.
func requireOperator(ids []string) gin.HandlerFunc {
	operators := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		operators[id] = struct{}{}
	}
	return func(c *gin.Context) {
		viewer := viewerFrom(c)
		if viewer == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if _, ok := operators[viewer.ID]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Operator access required"})
			return
		}
		c.Next()
	}
}

// viewerFrom returns the signed-in user, or nil for anonymous requests
func viewerFrom(c *gin.Context) *models.User {
	if v, ok := c.Get(viewerKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
