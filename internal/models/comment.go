package models

import (
	"time"
)

// CommentState is the moderation state of a comment. The only transition is
// pending to approved.
type CommentState string

const (
	CommentStatePending  CommentState = "pending"
	CommentStateApproved CommentState = "approved"
)

// Comment represents a comment on a post
type Comment struct {
	ID        string    `json:"id" db:"id"`
	PostID    string    `json:"post_id" db:"post_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Body      string    `json:"body" db:"body"`
	Approved  bool      `json:"approved" db:"approved"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Filled by queries that join users
	AuthorName string `json:"author_name,omitempty" db:"-"`
}

// State returns the moderation state derived from Approved
func (c *Comment) State() CommentState {
	if c.Approved {
		return CommentStateApproved
	}
	return CommentStatePending
}

// IsAuthoredBy reports whether u wrote the comment
func (c *Comment) IsAuthoredBy(u *User) bool {
	return u != nil && c.UserID == u.ID
}

// CommentRequest is the body accepted when submitting a comment
type CommentRequest struct {
	Body string `json:"body"`
}

// CommentFilter narrows a per-post comment query. Nil Approved matches both
// states; empty UserID matches every author.
type CommentFilter struct {
	Approved *bool
	UserID   string
}

// CommentThread is the partition of a post's comments for one viewer.
//
// Comments is what the viewer sees in the feed: approved comments plus, for
// a signed-in viewer who does not own the post, their own pending comments,
// newest first. Count only ever counts approved comments. PendingComments is
// the moderation queue and is populated for the post owner only.
type CommentThread struct {
	Comments        []*Comment `json:"items"`
	Count           int        `json:"count"`
	PendingComments []*Comment `json:"pending"`
	PendingCount    int        `json:"pending_count"`
	CanModerate     bool       `json:"can_moderate"`
}

// CommentCreatedEvent is published synchronously after a comment is stored.
// Post and Author are resolved at publish time.
type CommentCreatedEvent struct {
	CommentID string
	Comment   *Comment
	Post      *Post
	Author    *User
}

// CommentResponse is returned after a comment is submitted
type CommentResponse struct {
	Comment *Comment `json:"comment"`
	Message string   `json:"message"`
}
