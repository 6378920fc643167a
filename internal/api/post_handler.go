package api

import (
	"net/http"
	"strconv"

	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/service"
	"github.com/blog-moderation-api/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PostHandler handles post endpoints
type PostHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewPostHandler creates a new post handler
func NewPostHandler(services *service.Services, log zerolog.Logger) *PostHandler {
	return &PostHandler{
		services: services,
		log:      log.With().Str("handler", "post").Logger(),
	}
}

// ListPosts handles GET /v1/posts
func (h *PostHandler) ListPosts(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	result, err := h.services.Post.ListPublished(c.Request.Context(), c.Query("search"), page)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPost handles GET /v1/posts/:slug
func (h *PostHandler) GetPost(c *gin.Context) {
	detail, err := h.services.Post.GetPost(c.Request.Context(), viewerFrom(c), c.Param("slug"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// CreatePost handles POST /v1/posts
func (h *PostHandler) CreatePost(c *gin.Context) {
	var req models.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	post, err := h.services.Post.CreatePost(c.Request.Context(), viewerFrom(c), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, post)
}

// UpdatePost handles PUT /v1/posts/:id
func (h *PostHandler) UpdatePost(c *gin.Context) {
	id := c.Param("id")
	if !validation.IsValidUUID(id) {
		respondError(c, h.log, service.ErrNotFound)
		return
	}

	var req models.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	post, err := h.services.Post.UpdatePost(c.Request.Context(), viewerFrom(c), id, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, post)
}

// DeletePost handles DELETE /v1/posts/:id
func (h *PostHandler) DeletePost(c *gin.Context) {
	id := c.Param("id")
	if !validation.IsValidUUID(id) {
		respondError(c, h.log, service.ErrNotFound)
		return
	}

	if err := h.services.Post.DeletePost(c.Request.Context(), viewerFrom(c), id); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}
