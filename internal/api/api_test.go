package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blog-moderation-api/internal/api"
	"github.com/blog-moderation-api/internal/config"
	"github.com/blog-moderation-api/internal/mocks"
	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	testSecret = "test-secret"
	testIssuer = "blog-test"
)

type testEnv struct {
	router *gin.Engine
	store  *mocks.MockStore
	svc    *service.Services
	mailer *mocks.MockMailer
}

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(ctx context.Context) error { return f.err }

func setupTestRouter(t *testing.T, db api.HealthChecker) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repos, store := mocks.NewMockRepositories()
	mailer := mocks.NewMockMailer()

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "8080"},
		Blog: config.BlogConfig{
			PostsPerPage:     10,
			SearchMinLength:  3,
			SearchMaxResults: 50,
			SiteBaseURL:      "http://blog.test",
		},
		Moderation: config.ModerationConfig{
			Enabled:          true,
			CommentMinLength: 3,
			CommentMaxLength: 1000,
		},
		Notification: config.NotificationConfig{
			MaxAttempts:  3,
			RetryDelay:   time.Minute,
			PollInterval: time.Second,
			Workers:      1,
		},
		Auth: config.AuthConfig{JWTSecret: testSecret, Issuer: testIssuer, OperatorIDs: []string{"alice"}},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}

	log := zerolog.Nop()
	svc := service.NewServices(repos, cfg, service.Dependencies{
		Mailer: mailer,
		Files:  mocks.NewMockFileStore(),
	}, log)

	for _, u := range []*models.User{
		{ID: "alice", Name: "Alice", Email: "alice@example.com"},
		{ID: "bob", Name: "Bob", Email: "bob@example.com"},
	} {
		if err := repos.User.Create(context.Background(), u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	return &testEnv{
		router: api.NewRouter(svc, cfg, db, log),
		store:  store,
		svc:    svc,
		mailer: mailer,
	}
}

func signToken(t *testing.T, subject, issuer, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, user, testIssuer, testSecret))
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

// createPost publishes a post as owner through the API
func (e *testEnv) createPost(t *testing.T, owner, title string) *models.Post {
	t.Helper()
	w := e.do(t, "POST", "/v1/posts", owner, map[string]string{
		"title":        title,
		"body":         "A body long enough to pass validation.",
		"published_at": "2020-01-01T00:00:00Z",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create post: status %d body %s", w.Code, w.Body.String())
	}
	var post models.Post
	decode(t, w, &post)
	return &post
}

func (e *testEnv) createComment(t *testing.T, postID, author, body string) *models.CommentResponse {
	t.Helper()
	w := e.do(t, "POST", "/v1/posts/"+postID+"/comments", author, map[string]string{"body": body})
	if w.Code != http.StatusCreated {
		t.Fatalf("create comment: status %d body %s", w.Code, w.Body.String())
	}
	var resp models.CommentResponse
	decode(t, w, &resp)
	return &resp
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		db         api.HealthChecker
		wantCode   int
		wantStatus string
	}{
		{"no database", nil, http.StatusOK, "healthy"},
		{"database up", fakeDB{}, http.StatusOK, "healthy"},
		{"database down", fakeDB{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(t, tt.db)
			w := env.do(t, "GET", "/health", "", nil)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}

			var response map[string]interface{}
			decode(t, w, &response)
			if response["status"] != tt.wantStatus {
				t.Errorf("Expected status %q, got %v", tt.wantStatus, response["status"])
			}
			if response["service"] != "blog-moderation-api" {
				t.Errorf("Expected service name, got %v", response["service"])
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestRouter(t, nil)
	post := env.createPost(t, "alice", "Metrics post")
	env.createComment(t, post.ID, "bob", "Pending comment")

	w := env.do(t, "GET", "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Database models.Stats `json:"database"`
	}
	decode(t, w, &response)

	if response.Database.Users != 2 {
		t.Errorf("Expected 2 users, got %d", response.Database.Users)
	}
	if response.Database.Posts != 1 {
		t.Errorf("Expected 1 post, got %d", response.Database.Posts)
	}
	if response.Database.PendingComments != 1 {
		t.Errorf("Expected 1 pending comment, got %d", response.Database.PendingComments)
	}
	if response.Database.PendingJobs != 1 {
		t.Errorf("Expected 1 pending job, got %d", response.Database.PendingJobs)
	}
}

func TestAuthentication(t *testing.T) {
	env := setupTestRouter(t, nil)
	post := env.createPost(t, "alice", "Auth post")
	path := "/v1/posts/" + post.ID + "/comments"
	body := []byte(`{"body":"Hello there"}`)

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "bob", testIssuer, "other-secret"), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, "bob", "elsewhere", testSecret), http.StatusUnauthorized},
		{"unknown user", "Bearer " + signToken(t, "ghost", testIssuer, testSecret), http.StatusUnauthorized},
		{"valid token", "Bearer " + signToken(t, "bob", testIssuer, testSecret), http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", path, bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestCreateComment_Endpoint(t *testing.T) {
	env := setupTestRouter(t, nil)
	post := env.createPost(t, "alice", "Comment post")

	t.Run("pending under moderation", func(t *testing.T) {
		resp := env.createComment(t, post.ID, "bob", "Nice write-up")
		if resp.Comment.Approved {
			t.Error("Expected comment to be pending")
		}
		if resp.Message != service.MessageCommentPending {
			t.Errorf("Expected pending message, got %q", resp.Message)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		w := env.do(t, "POST", "/v1/posts/"+post.ID+"/comments", "bob", map[string]string{"body": "<b>a</b>"})
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("Expected status 422, got %d", w.Code)
		}
		var response struct {
			Fields []struct {
				Field string `json:"field"`
			} `json:"fields"`
		}
		decode(t, w, &response)
		if len(response.Fields) != 1 || response.Fields[0].Field != "body" {
			t.Errorf("Expected one comment field error, got %+v", response.Fields)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/posts/"+post.ID+"/comments", bytes.NewReader([]byte("{")))
		req.Header.Set("Authorization", "Bearer "+signToken(t, "bob", testIssuer, testSecret))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("unknown post", func(t *testing.T) {
		w := env.do(t, "POST", "/v1/posts/00000000-0000-0000-0000-000000000000/comments", "bob", map[string]string{"body": "Hello there"})
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("non-uuid post id", func(t *testing.T) {
		w := env.do(t, "POST", "/v1/posts/not-a-uuid/comments", "bob", map[string]string{"body": "Hello there"})
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

func TestApproveComment_Endpoint(t *testing.T) {
	env := setupTestRouter(t, nil)
	post := env.createPost(t, "alice", "Approve post")
	resp := env.createComment(t, post.ID, "bob", "Please approve me")
	path := "/v1/comments/" + resp.Comment.ID + "/approve"

	tests := []struct {
		name     string
		user     string
		wantCode int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"comment author", "bob", http.StatusForbidden},
		{"post owner", "alice", http.StatusOK},
		{"post owner again", "alice", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "PATCH", path, tt.user, nil)
			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}

	stored := env.store.Comments.Comments[resp.Comment.ID]
	if stored == nil || !stored.Approved {
		t.Error("Expected stored comment to be approved")
	}
}

func TestDeleteComment_Endpoint(t *testing.T) {
	env := setupTestRouter(t, nil)
	post := env.createPost(t, "alice", "Delete post")
	resp := env.createComment(t, post.ID, "bob", "Delete me later")

	// Seed a third user who is neither author nor owner
	if err := env.store.Users.Create(context.Background(), &models.User{ID: "carol", Name: "Carol"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	w := env.do(t, "DELETE", "/v1/comments/"+resp.Comment.ID, "carol", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for stranger, got %d", w.Code)
	}

	w = env.do(t, "DELETE", "/v1/comments/"+resp.Comment.ID, "alice", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 for post owner, got %d", w.Code)
	}

	w = env.do(t, "DELETE", "/v1/comments/"+resp.Comment.ID, "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after deletion, got %d", w.Code)
	}
}

func TestGetPost_ThreadPerViewer(t *testing.T) {
	env := setupTestRouter(t, nil)
	post := env.createPost(t, "alice", "Thread post")
	pending := env.createComment(t, post.ID, "bob", "Waiting in the queue")

	tests := []struct {
		name          string
		user          string
		wantItems     int
		wantCount     int
		wantPending   int
		wantModerator bool
	}{
		{"anonymous sees nothing pending", "", 0, 0, 0, false},
		{"author sees own pending", "bob", 1, 0, 0, false},
		{"owner sees moderation queue", "alice", 0, 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", "/v1/posts/"+post.Slug, tt.user, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			var detail models.PostDetail
			decode(t, w, &detail)
			thread := detail.Thread
			if len(thread.Comments) != tt.wantItems {
				t.Errorf("Expected %d items, got %d", tt.wantItems, len(thread.Comments))
			}
			if thread.Count != tt.wantCount {
				t.Errorf("Expected count %d, got %d", tt.wantCount, thread.Count)
			}
			if len(thread.PendingComments) != tt.wantPending {
				t.Errorf("Expected %d pending, got %d", tt.wantPending, len(thread.PendingComments))
			}
			if thread.CanModerate != tt.wantModerator {
				t.Errorf("Expected can_moderate %v, got %v", tt.wantModerator, thread.CanModerate)
			}
		})
	}

	env.do(t, "PATCH", "/v1/comments/"+pending.Comment.ID+"/approve", "alice", nil)

	w := env.do(t, "GET", "/v1/posts/"+post.Slug, "", nil)
	var detail models.PostDetail
	decode(t, w, &detail)
	if detail.Thread.Count != 1 || len(detail.Thread.Comments) != 1 {
		t.Errorf("Expected approved comment to be public, got %+v", detail.Thread)
	}
}

func TestDraftPost_HiddenFromOthers(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do(t, "POST", "/v1/posts", "alice", map[string]string{
		"title": "Secret draft",
		"body":  "Not ready for readers yet.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	var draft models.Post
	decode(t, w, &draft)

	if w := env.do(t, "GET", "/v1/posts/"+draft.Slug, "bob", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for other user, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/v1/posts/"+draft.Slug, "alice", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for owner, got %d", w.Code)
	}

	w = env.do(t, "GET", "/v1/posts", "", nil)
	var page models.PostPage
	decode(t, w, &page)
	if page.Total != 0 {
		t.Errorf("Expected draft to be excluded from listing, got total %d", page.Total)
	}
}

func TestListPosts_PageBounds(t *testing.T) {
	env := setupTestRouter(t, nil)
	env.createPost(t, "alice", "Paged post")

	tests := []struct {
		name      string
		query     string
		wantPosts int
	}{
		{"first page", "?page=1", 1},
		{"second page", "?page=2", 0},
		{"invalid page", "?page=abc", 1},
		{"negative page", "?page=-4", 1},
		{"offset would overflow", "?page=922337203685477582", 0},
		{"overflow with search", "?page=922337203685477582&search=paged", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", "/v1/posts"+tt.query, "", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			var page models.PostPage
			decode(t, w, &page)
			if len(page.Posts) != tt.wantPosts {
				t.Errorf("Expected %d posts, got %d", tt.wantPosts, len(page.Posts))
			}
		})
	}
}

func TestPostLifecycle_Endpoints(t *testing.T) {
	env := setupTestRouter(t, nil)
	post := env.createPost(t, "alice", "Lifecycle")

	update := map[string]string{"title": "Lifecycle updated", "body": "Updated body for the post.", "published_at": "2020-01-01T00:00:00Z"}
	if w := env.do(t, "PUT", "/v1/posts/"+post.ID, "bob", update); w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner update, got %d", w.Code)
	}
	if w := env.do(t, "PUT", "/v1/posts/"+post.ID, "alice", update); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for owner update, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/v1/posts", "alice", map[string]string{"title": "", "body": "short"}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for invalid post, got %d", w.Code)
	}

	w := env.do(t, "GET", "/v1/posts?search=updated", "", nil)
	var page models.PostPage
	decode(t, w, &page)
	if page.Total != 1 {
		t.Errorf("Expected search to find the post, got total %d", page.Total)
	}

	if w := env.do(t, "DELETE", "/v1/posts/"+post.ID, "bob", nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner delete, got %d", w.Code)
	}
	if w := env.do(t, "DELETE", "/v1/posts/"+post.ID, "alice", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for owner delete, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/v1/posts/"+post.Slug, "alice", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestDeleteMe_RemovesContent(t *testing.T) {
	env := setupTestRouter(t, nil)
	post := env.createPost(t, "alice", "Alice post")
	env.createComment(t, post.ID, "bob", "Bob comment")

	if w := env.do(t, "DELETE", "/v1/users/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for anonymous, got %d", w.Code)
	}
	if w := env.do(t, "DELETE", "/v1/users/me", "alice", nil); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}

	if n, _ := env.store.Posts.Count(context.Background()); n != 0 {
		t.Errorf("Expected posts to be removed, got %d", n)
	}
	if n, _ := env.store.Comments.Count(context.Background()); n != 0 {
		t.Errorf("Expected comments on removed posts to be gone, got %d", n)
	}

	// The token now names a user that no longer exists
	if w := env.do(t, "GET", "/v1/posts", "alice", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for deleted user, got %d", w.Code)
	}
}

func TestFailedJobsEndpoint(t *testing.T) {
	env := setupTestRouter(t, nil)
	ctx := context.Background()

	// No handler is registered for this type, so the first run fails for good
	job, err := env.svc.Job.Enqueue(ctx, models.JobType("unknown"), map[string]string{"x": "y"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if w := env.do(t, "GET", "/v1/jobs/failed", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for anonymous, got %d", w.Code)
	}

	if ran := env.svc.Job.RunDueJobs(ctx); ran != 1 {
		t.Fatalf("Expected 1 job to run, got %d", ran)
	}

	w := env.do(t, "GET", "/v1/jobs/failed", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var response struct {
		Jobs  []models.JobResponse `json:"jobs"`
		Count int                  `json:"count"`
	}
	decode(t, w, &response)
	if response.Count != 1 || response.Jobs[0].ID != job.ID {
		t.Fatalf("Expected the failed job to be listed, got %+v", response)
	}
	if len(response.Jobs[0].Failures) != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", len(response.Jobs[0].Failures))
	}

	if w := env.do(t, "GET", "/v1/jobs/"+job.ID, "alice", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for known job, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/v1/jobs/00000000-0000-0000-0000-000000000000", "alice", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown job, got %d", w.Code)
	}
}

func TestJobRoutes_OperatorOnly(t *testing.T) {
	env := setupTestRouter(t, nil)
	job, err := env.svc.Job.Enqueue(context.Background(), models.JobType("unknown"), nil)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	tests := []struct {
		name     string
		path     string
		user     string
		expected int
	}{
		{"anonymous failed list", "/v1/jobs/failed", "", http.StatusUnauthorized},
		{"non-operator failed list", "/v1/jobs/failed", "bob", http.StatusForbidden},
		{"non-operator job detail", "/v1/jobs/" + job.ID, "bob", http.StatusForbidden},
		{"operator failed list", "/v1/jobs/failed", "alice", http.StatusOK},
		{"operator job detail", "/v1/jobs/" + job.ID, "alice", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", tt.path, tt.user, nil)
			if w.Code != tt.expected {
				t.Errorf("Expected %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestRouter(t, nil)

	req := httptest.NewRequest("OPTIONS", "/v1/posts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}
}
