package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/repository"
)

// NewMockRepositories returns linked in-memory repositories sharing one
// lock, so cascades and author-name joins behave like the database.
func NewMockRepositories() (*repository.Repositories, *MockStore) {
	store := NewMockStore()
	store.EnforceReferences = true
	return &repository.Repositories{
		User:    store.Users,
		Post:    store.Posts,
		Comment: store.Comments,
		Job:     store.Jobs,
	}, store
}

// MockStore groups the linked mock repositories
type MockStore struct {
	mu sync.RWMutex
	// EnforceReferences makes inserts fail with ErrMissingReference when
	// the referenced post or user is absent
	EnforceReferences bool

	Users    *MockUserRepository
	Posts    *MockPostRepository
	Comments *MockCommentRepository
	Jobs     *MockJobRepository
}

// NewMockStore creates an empty linked store
func NewMockStore() *MockStore {
	s := &MockStore{}
	s.Users = &MockUserRepository{store: s, Users: make(map[string]*models.User)}
	s.Posts = &MockPostRepository{store: s, Posts: make(map[string]*models.Post)}
	s.Comments = &MockCommentRepository{store: s, Comments: make(map[string]*models.Comment)}
	s.Jobs = &MockJobRepository{
		store:    s,
		Jobs:     make(map[string]*models.Job),
		Attempts: make(map[string][]models.JobAttempt),
	}
	return s
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	store       *MockStore
	Users       map[string]*models.User
	CreateError error
	GetError    error
	DeleteError error
	GetCalls    int
}

var _ repository.UserRepository = (*MockUserRepository)(nil)

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	u := *user
	m.Users[user.ID] = &u
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.GetCalls++
	if m.GetError != nil {
		return nil, m.GetError
	}
	u, ok := m.Users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) Exists(ctx context.Context, id string) (bool, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	_, exists := m.Users[id]
	return exists, nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return len(m.Users), nil
}

// Delete cascades like the PostgreSQL implementation
func (m *MockUserRepository) Delete(ctx context.Context, id string) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	if _, ok := m.Users[id]; !ok {
		return false, nil
	}

	for postID, p := range m.store.Posts.Posts {
		if p.UserID == id {
			m.store.Comments.deleteByPostLocked(postID)
			delete(m.store.Posts.Posts, postID)
		}
	}
	for commentID, c := range m.store.Comments.Comments {
		if c.UserID == id {
			delete(m.store.Comments.Comments, commentID)
		}
	}
	delete(m.Users, id)
	return true, nil
}

func (m *MockUserRepository) nameLocked(id string) string {
	if u, ok := m.Users[id]; ok {
		return u.Name
	}
	return ""
}

// MockPostRepository is a mock implementation of PostRepository
type MockPostRepository struct {
	store       *MockStore
	Posts       map[string]*models.Post
	CreateError error
	UpdateError error
	DeleteError error
}

var _ repository.PostRepository = (*MockPostRepository)(nil)

func (m *MockPostRepository) Create(ctx context.Context, post *models.Post) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	if _, ok := m.store.Users.Users[post.UserID]; !ok && m.store.EnforceReferences {
		return repository.ErrMissingReference
	}
	p := *post
	m.Posts[post.ID] = &p
	return nil
}

func (m *MockPostRepository) Update(ctx context.Context, post *models.Post) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.UpdateError != nil {
		return m.UpdateError
	}
	existing, ok := m.Posts[post.ID]
	if !ok {
		return nil
	}
	existing.Title = post.Title
	existing.Body = post.Body
	existing.FeaturedImage = post.FeaturedImage
	existing.PublishedAt = post.PublishedAt
	existing.UpdatedAt = post.UpdatedAt
	return nil
}

func (m *MockPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	p, ok := m.Posts[id]
	if !ok {
		return nil, nil
	}
	return m.withAuthorLocked(p), nil
}

func (m *MockPostRepository) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	for _, p := range m.Posts {
		if p.Slug == slug {
			return m.withAuthorLocked(p), nil
		}
	}
	return nil, nil
}

func (m *MockPostRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	for _, p := range m.Posts {
		if p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPostRepository) ListPublished(ctx context.Context, q models.PostQuery, now time.Time) ([]*models.Post, int, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var matched []*models.Post
	for _, p := range m.Posts {
		if !p.IsPublished(now) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Body), search) {
			continue
		}
		matched = append(matched, m.withAuthorLocked(p))
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PublishedAt.Equal(*matched[j].PublishedAt) {
			return matched[i].PublishedAt.After(*matched[j].PublishedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if q.Offset >= total {
		return nil, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return matched[q.Offset:end], total, nil
}

func (m *MockPostRepository) Count(ctx context.Context) (int, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return len(m.Posts), nil
}

// Delete removes the post and its comments
func (m *MockPostRepository) Delete(ctx context.Context, id string) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	if _, ok := m.Posts[id]; !ok {
		return false, nil
	}
	m.store.Comments.deleteByPostLocked(id)
	delete(m.Posts, id)
	return true, nil
}

func (m *MockPostRepository) withAuthorLocked(p *models.Post) *models.Post {
	cp := *p
	cp.AuthorName = m.store.Users.nameLocked(p.UserID)
	return &cp
}

// MockCommentRepository is a mock implementation of CommentRepository
type MockCommentRepository struct {
	store        *MockStore
	Comments     map[string]*models.Comment
	CreateError  error
	ApproveError error
	ApproveCalls int
}

var _ repository.CommentRepository = (*MockCommentRepository)(nil)

// Create stores the comment. When the post or author is unknown to the
// linked store it fails the way a foreign key would.
func (m *MockCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	if _, ok := m.store.Posts.Posts[comment.PostID]; !ok && m.store.EnforceReferences {
		return repository.ErrMissingReference
	}
	if _, ok := m.store.Users.Users[comment.UserID]; !ok && m.store.EnforceReferences {
		return repository.ErrMissingReference
	}
	c := *comment
	m.Comments[comment.ID] = &c
	return nil
}

func (m *MockCommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	c, ok := m.Comments[id]
	if !ok {
		return nil, nil
	}
	return m.withAuthorLocked(c), nil
}

func (m *MockCommentRepository) Approve(ctx context.Context, id string) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.ApproveCalls++
	if m.ApproveError != nil {
		return false, m.ApproveError
	}
	c, ok := m.Comments[id]
	if !ok {
		return false, nil
	}
	c.Approved = true
	return true, nil
}

func (m *MockCommentRepository) Delete(ctx context.Context, id string) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.Comments[id]; !ok {
		return false, nil
	}
	delete(m.Comments, id)
	return true, nil
}

func (m *MockCommentRepository) ListByPost(ctx context.Context, postID string, filter models.CommentFilter) ([]*models.Comment, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	var comments []*models.Comment
	for _, c := range m.Comments {
		if c.PostID != postID {
			continue
		}
		if filter.Approved != nil && c.Approved != *filter.Approved {
			continue
		}
		if filter.UserID != "" && c.UserID != filter.UserID {
			continue
		}
		comments = append(comments, m.withAuthorLocked(c))
	}

	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.After(comments[j].CreatedAt)
		}
		return comments[i].ID > comments[j].ID
	})
	return comments, nil
}

func (m *MockCommentRepository) CountApprovedByPosts(ctx context.Context, postIDs []string) (map[string]int, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	wanted := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		wanted[id] = true
	}
	counts := make(map[string]int)
	for _, c := range m.Comments {
		if c.Approved && wanted[c.PostID] {
			counts[c.PostID]++
		}
	}
	return counts, nil
}

func (m *MockCommentRepository) Count(ctx context.Context) (int, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return len(m.Comments), nil
}

func (m *MockCommentRepository) CountPending(ctx context.Context) (int, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	count := 0
	for _, c := range m.Comments {
		if !c.Approved {
			count++
		}
	}
	return count, nil
}

func (m *MockCommentRepository) deleteByPostLocked(postID string) {
	for id, c := range m.Comments {
		if c.PostID == postID {
			delete(m.Comments, id)
		}
	}
}

func (m *MockCommentRepository) withAuthorLocked(c *models.Comment) *models.Comment {
	cp := *c
	cp.AuthorName = m.store.Users.nameLocked(c.UserID)
	return &cp
}

// MockJobRepository is a mock implementation of JobRepository
type MockJobRepository struct {
	store       *MockStore
	Jobs        map[string]*models.Job
	Attempts    map[string][]models.JobAttempt
	CreateError error
	UpdateError error
}

var _ repository.JobRepository = (*MockJobRepository)(nil)

// NewMockJobRepository creates a standalone job repository
func NewMockJobRepository() *MockJobRepository {
	return NewMockStore().Jobs
}

func (m *MockJobRepository) Create(ctx context.Context, job *models.Job) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	j := *job
	m.Jobs[job.ID] = &j
	return nil
}

func (m *MockJobRepository) Update(ctx context.Context, job *models.Job) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.UpdateError != nil {
		return m.UpdateError
	}
	j := *job
	m.Jobs[job.ID] = &j
	return nil
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	j, ok := m.Jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *MockJobRepository) GetDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	var due []*models.Job
	for _, j := range m.Jobs {
		if j.Status == models.JobStatusPending && !j.AvailableAt.After(now) {
			cp := *j
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if !due[i].AvailableAt.Equal(due[k].AvailableAt) {
			return due[i].AvailableAt.Before(due[k].AvailableAt)
		}
		return due[i].CreatedAt.Before(due[k].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MockJobRepository) MarkJobAsProcessing(ctx context.Context, jobID string, now time.Time) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	j, exists := m.Jobs[jobID]
	if !exists || j.Status != models.JobStatusPending || j.AvailableAt.After(now) || j.Attempts >= j.MaxAttempts {
		return false, nil
	}
	j.Status = models.JobStatusProcessing
	j.Attempts++
	started := now
	j.StartedAt = &started
	return true, nil
}

func (m *MockJobRepository) RecoverInterrupted(ctx context.Context, now time.Time) (int, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	recovered := 0
	for _, j := range m.Jobs {
		if j.Status != models.JobStatusProcessing {
			continue
		}
		if j.Attempts >= j.MaxAttempts {
			failed := now
			j.Status = models.JobStatusFailed
			j.FailedAt = &failed
			if j.LastError == "" {
				j.LastError = "interrupted"
			}
		} else {
			j.Status = models.JobStatusPending
			j.AvailableAt = now
			if j.StartedAt != nil {
				if next := j.StartedAt.Add(j.RetryDelay); next.After(now) {
					j.AvailableAt = next
				}
			}
		}
		recovered++
	}
	return recovered, nil
}

func (m *MockJobRepository) ListFailed(ctx context.Context, limit int) ([]*models.Job, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	var failed []*models.Job
	for _, j := range m.Jobs {
		if j.Status == models.JobStatusFailed {
			cp := *j
			failed = append(failed, &cp)
		}
	}
	sort.Slice(failed, func(i, k int) bool {
		return failed[i].FailedAt.After(*failed[k].FailedAt)
	})
	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (m *MockJobRepository) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	count := 0
	for _, j := range m.Jobs {
		if j.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *MockJobRepository) AddAttempt(ctx context.Context, attempt *models.JobAttempt) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.Attempts[attempt.JobID] = append(m.Attempts[attempt.JobID], *attempt)
	return nil
}

func (m *MockJobRepository) GetAttempts(ctx context.Context, jobID string) ([]models.JobAttempt, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	attempts := make([]models.JobAttempt, len(m.Attempts[jobID]))
	copy(attempts, m.Attempts[jobID])
	return attempts, nil
}

// JobsByType returns copies of all jobs of the given type
func (m *MockJobRepository) JobsByType(jobType models.JobType) []*models.Job {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var jobs []*models.Job
	for _, j := range m.Jobs {
		if j.Type == jobType {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}
	return jobs
}
