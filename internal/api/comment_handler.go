package api

import (
	"net/http"

	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/service"
	"github.com/blog-moderation-api/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// CommentHandler handles comment submission and moderation
type CommentHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(services *service.Services, log zerolog.Logger) *CommentHandler {
	return &CommentHandler{
		services: services,
		log:      log.With().Str("handler", "comment").Logger(),
	}
}

// CreateComment handles POST /v1/posts/:id/comments
func (h *CommentHandler) CreateComment(c *gin.Context) {
	postID := c.Param("id")
	if !validation.IsValidUUID(postID) {
		respondError(c, h.log, service.ErrNotFound)
		return
	}

	var req models.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	resp, err := h.services.Comment.CreateComment(c.Request.Context(), viewerFrom(c), postID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ApproveComment handles PATCH /v1/comments/:id/approve
func (h *CommentHandler) ApproveComment(c *gin.Context) {
	id := c.Param("id")
	if !validation.IsValidUUID(id) {
		respondError(c, h.log, service.ErrNotFound)
		return
	}

	comment, err := h.services.Comment.ApproveComment(c.Request.Context(), viewerFrom(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"comment": comment,
		"message": "Comment approved.",
	})
}

// DeleteComment handles DELETE /v1/comments/:id
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	id := c.Param("id")
	if !validation.IsValidUUID(id) {
		respondError(c, h.log, service.ErrNotFound)
		return
	}

	if err := h.services.Comment.DeleteComment(c.Request.Context(), viewerFrom(c), id); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}
