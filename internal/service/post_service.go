package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blog-moderation-api/internal/config"
	"github.com/blog-moderation-api/internal/database"
	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/repository"
	"github.com/blog-moderation-api/internal/storage"
	"github.com/blog-moderation-api/internal/validation"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
)

const maxSlugInsertRetries = 3

// postService is the concrete implementation of PostService
type postService struct {
	repos     *repository.Repositories
	comments  CommentService
	validator *validation.Validator
	files     storage.FileStore
	cfg       *config.BlogConfig
	now       func() time.Time
	log       zerolog.Logger
}

func newPostService(repos *repository.Repositories, comments CommentService, validator *validation.Validator,
	files storage.FileStore, cfg *config.BlogConfig, now func() time.Time, log zerolog.Logger) *postService {
	return &postService{
		repos:     repos,
		comments:  comments,
		validator: validator,
		files:     files,
		cfg:       cfg,
		now:       now,
		log:       log.With().Str("service", "post").Logger(),
	}
}

// CreatePost stores a new post owned by actor under a unique slug
func (s *postService) CreatePost(ctx context.Context, actor *models.User, req *models.PostRequest) (*models.Post, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if err := newValidationErrors(s.validator.ValidatePost(req)); err != nil {
		return nil, err
	}

	publishedAt, _ := validation.ParsePublishedAt(req.PublishedAt)
	now := s.now()
	post := &models.Post{
		ID:            uuid.New().String(),
		UserID:        actor.ID,
		Title:         strings.TrimSpace(req.Title),
		Body:          strings.TrimSpace(req.Body),
		FeaturedImage: req.FeaturedImage,
		PublishedAt:   publishedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
		AuthorName:    actor.Name,
	}

	// A concurrent insert can take the slug between the check and the write
	var err error
	for attempt := 0; attempt < maxSlugInsertRetries; attempt++ {
		post.Slug, err = s.uniqueSlug(ctx, post.Title)
		if err != nil {
			return nil, err
		}
		err = s.repos.Post.Create(ctx, post)
		if !database.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, repository.ErrMissingReference) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	s.log.Info().
		Str("post_id", post.ID).
		Str("slug", post.Slug).
		Bool("published", post.IsPublished(now)).
		Msg("Post created")
	return post, nil
}

// UpdatePost changes a post's content. Only the owner may update; the slug
// is kept.
func (s *postService) UpdatePost(ctx context.Context, actor *models.User, id string, req *models.PostRequest) (*models.Post, error) {
	post, err := s.repos.Post.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil {
		return nil, ErrNotFound
	}
	if !CanManagePost(actor, post) {
		return nil, denied(actor)
	}
	if err := newValidationErrors(s.validator.ValidatePost(req)); err != nil {
		return nil, err
	}

	publishedAt, _ := validation.ParsePublishedAt(req.PublishedAt)
	oldImage := post.FeaturedImage

	post.Title = strings.TrimSpace(req.Title)
	post.Body = strings.TrimSpace(req.Body)
	post.PublishedAt = publishedAt
	post.UpdatedAt = s.now()
	switch {
	case req.RemoveFeaturedImage:
		post.FeaturedImage = ""
	case req.FeaturedImage != "":
		post.FeaturedImage = req.FeaturedImage
	}

	if err := s.repos.Post.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}

	if oldImage != "" && oldImage != post.FeaturedImage {
		s.deleteImage(ctx, post.ID, oldImage)
	}

	s.log.Info().Str("post_id", post.ID).Msg("Post updated")
	return post, nil
}

// DeletePost removes a post, its comments and its featured image
func (s *postService) DeletePost(ctx context.Context, actor *models.User, id string) error {
	post, err := s.repos.Post.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil {
		return ErrNotFound
	}
	if !CanManagePost(actor, post) {
		return denied(actor)
	}

	ok, err := s.repos.Post.Delete(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	if post.FeaturedImage != "" {
		s.deleteImage(ctx, post.ID, post.FeaturedImage)
	}

	s.log.Info().Str("post_id", post.ID).Msg("Post deleted")
	return nil
}

// GetPost returns a post and the comment thread as viewer sees it. Drafts
// are reported as not found to everyone but their owner.
func (s *postService) GetPost(ctx context.Context, viewer *models.User, slug string) (*models.PostDetail, error) {
	post, err := s.repos.Post.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil || !post.VisibleTo(viewer, s.now()) {
		return nil, ErrNotFound
	}

	thread, err := s.comments.GetThread(ctx, post, viewer)
	if err != nil {
		return nil, err
	}
	post.CommentCount = thread.Count

	return &models.PostDetail{Post: post, Thread: thread}, nil
}

// ListPublished returns one page of published posts, optionally filtered
// by a search term
func (s *postService) ListPublished(ctx context.Context, search string, page int) (*models.PostPage, error) {
	if page < 1 {
		page = 1
	}
	perPage := s.cfg.PostsPerPage

	search = strings.TrimSpace(search)
	if utf8.RuneCountInString(search) < s.cfg.SearchMinLength {
		search = ""
	}

	// Pages past the last representable offset are empty
	offset, limit := 0, 0
	if page-1 <= math.MaxInt/perPage-1 {
		offset = (page - 1) * perPage
		limit = perPage
	}
	if search != "" {
		if remaining := s.cfg.SearchMaxResults - offset; remaining < limit {
			limit = remaining
		}
	}

	// Past the search cap only the total is needed
	if limit < 0 {
		limit = 0
	}

	posts, total, err := s.repos.Post.ListPublished(ctx,
		models.PostQuery{Search: search, Limit: limit, Offset: offset}, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	result := &models.PostPage{Posts: []*models.Post{}, Page: page, PerPage: perPage, Search: search}
	if search != "" && total > s.cfg.SearchMaxResults {
		total = s.cfg.SearchMaxResults
	}
	result.Total = total
	result.TotalPages = (total + perPage - 1) / perPage

	if len(posts) > 0 {
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.ID
		}
		counts, err := s.repos.Comment.CountApprovedByPosts(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to count comments: %w", err)
		}
		for _, p := range posts {
			p.CommentCount = counts[p.ID]
		}
		result.Posts = posts
	}

	return result, nil
}

// uniqueSlug derives a slug from title, appending -1, -2, ... until unused
func (s *postService) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "post"
	}

	candidate := base
	for i := 1; ; i++ {
		exists, err := s.repos.Post.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
}

func (s *postService) deleteImage(ctx context.Context, postID, path string) {
	if err := s.files.Delete(ctx, path); err != nil {
		s.log.Warn().Err(err).Str("post_id", postID).Str("path", path).Msg("Failed to delete featured image")
	}
}
