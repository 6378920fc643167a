package mocks

import (
	"context"
	"sync"

	"github.com/blog-moderation-api/internal/mail"
	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/service"
	"github.com/blog-moderation-api/internal/storage"
)

// MockMailer records sent messages. SendFunc, when set, decides the outcome.
type MockMailer struct {
	mu       sync.Mutex
	Sent     []*mail.Message
	Calls    int
	SendFunc func(ctx context.Context, msg *mail.Message) error
}

// Verify interface compliance
var _ mail.Mailer = (*MockMailer)(nil)

func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

func (m *MockMailer) Send(ctx context.Context, msg *mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// Messages returns a copy of the successfully sent messages
func (m *MockMailer) Messages() []*mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*mail.Message(nil), m.Sent...)
}

// SendCalls returns how many times Send was called
func (m *MockMailer) SendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MockFileStore records deleted paths
type MockFileStore struct {
	mu          sync.Mutex
	Deleted     []string
	DeleteError error
}

var _ storage.FileStore = (*MockFileStore)(nil)

func NewMockFileStore() *MockFileStore {
	return &MockFileStore{}
}

func (m *MockFileStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.Deleted = append(m.Deleted, path)
	return nil
}

// DeletedPaths returns a copy of the deleted paths
func (m *MockFileStore) DeletedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Deleted...)
}

// MockCommentCreatedListener records the events it receives
type MockCommentCreatedListener struct {
	mu     sync.Mutex
	Events []*models.CommentCreatedEvent
	Err    error
}

var _ service.CommentCreatedListener = (*MockCommentCreatedListener)(nil)

func NewMockCommentCreatedListener() *MockCommentCreatedListener {
	return &MockCommentCreatedListener{}
}

func (m *MockCommentCreatedListener) OnCommentCreated(ctx context.Context, event *models.CommentCreatedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return m.Err
}

// Received returns a copy of the received events
func (m *MockCommentCreatedListener) Received() []*models.CommentCreatedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.CommentCreatedEvent(nil), m.Events...)
}
