package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quockhanh41/blog-microservice/internal/post/adapters/primary/events"
	"github.com/quockhanh41/blog-microservice/internal/post/core/domain"
)

// --- FAKES ---

type fakePostService struct {
	created *domain.Post
	posts   []*domain.Post
	err     error

	lastAuthorID  string
	lastAuthorIDs []string
	lastLimit     int
	lastSortAsc   bool
}

func (f *fakePostService) CreatePost(_ context.Context, authorID, title, content string) (*domain.Post, error) {
	f.lastAuthorID = authorID
	if f.err != nil {
		return nil, f.err
	}
	if f.created != nil {
		return f.created, nil
	}
	return &domain.Post{ID: "p1", AuthorID: authorID, Username: "alice", Title: title, Content: content, CreatedAt: time.Now()}, nil
}

func (f *fakePostService) GetPost(_ context.Context, postID string) (*domain.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.posts {
		if p.ID == postID {
			return p, nil
		}
	}
	return nil, domain.ErrPostNotFound
}

func (f *fakePostService) ListPosts(_ context.Context, authorIDs []string, limit int, sortAsc bool) ([]*domain.Post, error) {
	f.lastAuthorIDs = authorIDs
	f.lastLimit = limit
	f.lastSortAsc = sortAsc
	if f.err != nil {
		return nil, f.err
	}
	return f.posts, nil
}

func (f *fakePostService) ApplyUserEvent(context.Context, domain.UserEvent) error { return nil }

type fakeConsumerStatus struct{ state events.State }

func (f *fakeConsumerStatus) State() events.State { return f.state }
func (f *fakeConsumerStatus) Healthy() bool       { return f.state != events.StateDegraded }

type fakeVerifier struct {
	userID string
	err    error
}

func (f *fakeVerifier) Validate(string) (string, error) { return f.userID, f.err }

func doRequest(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// --- TESTS ---

func TestCreatePostWithGatewayHeader(t *testing.T) {
	svc := &fakePostService{}
	handler := NewServer(svc, nil, nil).Handler()

	rec := doRequest(t, handler, http.MethodPost, "/posts",
		`{"title":"Hello","content":"World"}`,
		map[string]string{"X-User-ID": "u1", "Content-Type": "application/json"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body: %s)", rec.Code, rec.Body.String())
	}
	if svc.lastAuthorID != "u1" {
		t.Errorf("author id = %q, want u1", svc.lastAuthorID)
	}

	var resp postResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Username != "alice" || resp.Title != "Hello" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCreatePostRequiresIdentity(t *testing.T) {
	handler := NewServer(&fakePostService{}, nil, nil).Handler()

	rec := doRequest(t, handler, http.MethodPost, "/posts", `{"title":"t","content":"c"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreatePostWithBearerToken(t *testing.T) {
	svc := &fakePostService{}
	handler := NewServer(svc, &fakeVerifier{userID: "u9"}, nil).Handler()

	rec := doRequest(t, handler, http.MethodPost, "/posts",
		`{"title":"t","content":"c"}`,
		map[string]string{"Authorization": "Bearer sometoken"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if svc.lastAuthorID != "u9" {
		t.Errorf("author id = %q, want u9", svc.lastAuthorID)
	}
}

func TestCreatePostValidationMapsTo400(t *testing.T) {
	svc := &fakePostService{err: domain.ErrInvalidTitle}
	handler := NewServer(svc, nil, nil).Handler()

	rec := doRequest(t, handler, http.MethodPost, "/posts",
		`{"title":"","content":"c"}`, map[string]string{"X-User-ID": "u1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetPostNotFound(t *testing.T) {
	handler := NewServer(&fakePostService{}, nil, nil).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/posts/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListPostsParsesQueryShape(t *testing.T) {
	svc := &fakePostService{}
	handler := NewServer(svc, nil, nil).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/posts?user_ids=a&user_ids=b&limit=20&sort=desc", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.lastAuthorIDs) != 2 || svc.lastAuthorIDs[0] != "a" || svc.lastAuthorIDs[1] != "b" {
		t.Errorf("author ids = %v, want [a b]", svc.lastAuthorIDs)
	}
	if svc.lastLimit != 20 {
		t.Errorf("limit = %d, want 20", svc.lastLimit)
	}
	if svc.lastSortAsc {
		t.Error("sort=desc should map to sortAsc=false")
	}

	// Lectures publiques : pas d'identité requise, réponse = tableau JSON
	var out []postResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty array, got %v", out)
	}
}

func TestListPostsUpstreamFailureMapsTo500(t *testing.T) {
	svc := &fakePostService{err: errors.New("db down")}
	handler := NewServer(svc, nil, nil).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/posts?user_ids=a", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHealthReportsConsumerState(t *testing.T) {
	cases := []struct {
		name       string
		state      events.State
		wantStatus string
	}{
		{"running", events.StateRunning, "ok"},
		{"degraded", events.StateDegraded, "degraded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewServer(&fakePostService{}, nil, &fakeConsumerStatus{state: tc.state}).Handler()

			rec := doRequest(t, handler, http.MethodGet, "/health", "", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode health body: %v", err)
			}
			if body["status"] != tc.wantStatus {
				t.Errorf("status = %q, want %q", body["status"], tc.wantStatus)
			}
			if body["consumer"] != tc.state.String() {
				t.Errorf("consumer = %q, want %q", body["consumer"], tc.state.String())
			}
		})
	}
}

func TestHealthWithoutConsumer(t *testing.T) {
	handler := NewServer(&fakePostService{}, nil, nil).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}
