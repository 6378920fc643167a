package api

import (
	"net/http"

	"github.com/blog-moderation-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UserHandler handles account endpoints
type UserHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(services *service.Services, log zerolog.Logger) *UserHandler {
	return &UserHandler{
		services: services,
		log:      log.With().Str("handler", "user").Logger(),
	}
}

// DeleteMe handles DELETE /v1/users/me. Posts and comments go with the account.
func (h *UserHandler) DeleteMe(c *gin.Context) {
	viewer := viewerFrom(c)
	if err := h.services.User.DeleteUser(c.Request.Context(), viewer, viewer.ID); err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info().Str("user_id", viewer.ID).Msg("Account deleted")
	c.Status(http.StatusNoContent)
}
