package models

import (
	"time"
)

// Post represents a blog post. A post is published once PublishedAt is set
// and not in the future; anything else is a draft.
type Post struct {
	ID            string     `json:"id" db:"id"`
	UserID        string     `json:"user_id" db:"user_id"`
	Title         string     `json:"title" db:"title"`
	Slug          string     `json:"slug" db:"slug"`
	Body          string     `json:"body" db:"body"`
	FeaturedImage string     `json:"featured_image,omitempty" db:"featured_image"`
	PublishedAt   *time.Time `json:"published_at,omitempty" db:"published_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`

	// Filled by queries, not stored on the row
	AuthorName   string `json:"author_name,omitempty" db:"-"`
	CommentCount int    `json:"comment_count" db:"-"`
}

// IsPublished reports whether the post is publicly visible at now
func (p *Post) IsPublished(now time.Time) bool {
	return p.PublishedAt != nil && !p.PublishedAt.After(now)
}

// IsOwnedBy reports whether u authored the post
func (p *Post) IsOwnedBy(u *User) bool {
	return u != nil && p.UserID == u.ID
}

// VisibleTo reports whether viewer may see the post at now: published posts
// are public, drafts and scheduled posts are visible to their owner only.
func (p *Post) VisibleTo(viewer *User, now time.Time) bool {
	return p.IsPublished(now) || p.IsOwnedBy(viewer)
}

// PostRequest is the body accepted when creating or updating a post
type PostRequest struct {
	Title               string `json:"title"`
	Body                string `json:"body"`
	PublishedAt         string `json:"published_at,omitempty"`
	FeaturedImage       string `json:"featured_image,omitempty"`
	RemoveFeaturedImage bool   `json:"remove_featured_image,omitempty"`
}

// PostQuery selects a page of published posts
type PostQuery struct {
	Search string
	Limit  int
	Offset int
}

// PostPage is one page of the published post listing
type PostPage struct {
	Posts      []*Post `json:"posts"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
	Search     string  `json:"search,omitempty"`
}

// PostDetail is a single post with the comment thread as seen by a viewer
type PostDetail struct {
	Post   *Post          `json:"post"`
	Thread *CommentThread `json:"comments"`
}
