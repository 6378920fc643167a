package service

import (
	"sort"

	"github.com/blog-moderation-api/internal/models"
)

// ResolveThread partitions a post's comments for viewer.
//
// Approved comments form the public feed and the displayed count. The post
// owner additionally gets every pending comment as the moderation queue.
// Any other signed-in viewer gets their own pending comments merged into the
// feed without changing the count. Anonymous viewers see approved comments
// only. Comments belonging to other posts are ignored.
func ResolveThread(post *models.Post, viewer *models.User, comments []*models.Comment) *models.CommentThread {
	thread := &models.CommentThread{
		Comments:        []*models.Comment{},
		PendingComments: []*models.Comment{},
		CanModerate:     post.IsOwnedBy(viewer),
	}

	sorted := make([]*models.Comment, 0, len(comments))
	seen := make(map[string]bool, len(comments))
	for _, c := range comments {
		if c.PostID != post.ID || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		sorted = append(sorted, c)
	}
	sortNewestFirst(sorted)

	for _, c := range sorted {
		switch {
		case c.Approved:
			thread.Comments = append(thread.Comments, c)
			thread.Count++
		case thread.CanModerate:
			thread.PendingComments = append(thread.PendingComments, c)
		case c.IsAuthoredBy(viewer):
			thread.Comments = append(thread.Comments, c)
		}
	}

	thread.PendingCount = len(thread.PendingComments)
	return thread
}

func sortNewestFirst(comments []*models.Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.After(comments[j].CreatedAt)
		}
		return comments[i].ID > comments[j].ID
	})
}
