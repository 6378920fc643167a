package service

import (
	"github.com/blog-moderation-api/internal/models"
)

// CanCreateComment reports whether actor may comment. Any signed-in user
// may comment on a post they can see.
func CanCreateComment(actor *models.User) bool {
	return actor != nil
}

// CanApproveComment reports whether actor may approve comment on post: the
// post owner may, except for comments they wrote themselves.
func CanApproveComment(actor *models.User, comment *models.Comment, post *models.Post) bool {
	if actor == nil || comment == nil || post == nil || comment.PostID != post.ID {
		return false
	}
	return post.IsOwnedBy(actor) && !comment.IsAuthoredBy(actor)
}

// CanDeleteComment reports whether actor may delete comment on post: its
// author or the post owner.
func CanDeleteComment(actor *models.User, comment *models.Comment, post *models.Post) bool {
	if actor == nil || comment == nil || post == nil || comment.PostID != post.ID {
		return false
	}
	return comment.IsAuthoredBy(actor) || post.IsOwnedBy(actor)
}

// CanManagePost reports whether actor may update or delete post
func CanManagePost(actor *models.User, post *models.Post) bool {
	return post != nil && post.IsOwnedBy(actor)
}
