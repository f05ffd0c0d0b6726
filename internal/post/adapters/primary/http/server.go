package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quockhanh41/blog-microservice/internal/post/adapters/primary/events"
	"github.com/quockhanh41/blog-microservice/internal/post/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/post/core/ports"
)

// TokenVerifier valide un access token et retourne l'ID de l'auteur.
type TokenVerifier interface {
	Validate(tokenString string) (string, error)
}

// ConsumerStatus expose l'état du consumer d'événements pour /health.
// Le service continue de servir les lectures même en mode dégradé.
type ConsumerStatus interface {
	State() events.State
	Healthy() bool
}

type Server struct {
	service  ports.PostService
	verifier TokenVerifier
	consumer ConsumerStatus // nil si le consumer n'est pas câblé
}

func NewServer(service ports.PostService, verifier TokenVerifier, consumer ConsumerStatus) *Server {
	return &Server{service: service, verifier: verifier, consumer: consumer}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /posts", s.handleListPosts)
	mux.HandleFunc("GET /posts/{id}", s.handleGetPost)
	mux.Handle("POST /posts", s.withAuthor(s.handleCreatePost))

	return otelhttp.NewHandler(cors.Default().Handler(mux), "post-service")
}

// --- IDENTITÉ DE L'AUTEUR ---

type contextKey struct{ name string }

var authorCtxKey = &contextKey{"author_id"}

// withAuthor : header injecté par la gateway en priorité, sinon Bearer
// token vérifié localement. Les lectures restent publiques.
func (s *Server) withAuthor(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorID := r.Header.Get("X-User-ID")

		if authorID == "" {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") || s.verifier == nil {
				writeError(w, http.StatusUnauthorized, "user not authenticated")
				return
			}
			id, err := s.verifier.Validate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			authorID = id
		}

		ctx := context.WithValue(r.Context(), authorCtxKey, authorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authorFromContext(ctx context.Context) string {
	id, _ := ctx.Value(authorCtxKey).(string)
	return id
}

// --- HANDLERS ---

type createPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	authorID := authorFromContext(r.Context())

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	post, err := s.service.CreatePost(r.Context(), authorID, req.Title, req.Content)
	if err != nil {
		slog.Error("❌ Failed to create post", "author_id", authorID, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.service.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// handleListPosts sert l'hydratation du feed : ?user_ids=a&user_ids=b&limit=N&sort=desc
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	authorIDs := query["user_ids"]
	limit := queryInt(r, "limit", 50)
	sortAsc := query.Get("sort") == "asc"

	posts, err := s.service.ListPosts(r.Context(), authorIDs, limit, sortAsc)
	if err != nil {
		slog.Error("❌ Failed to list posts", "error", err)
		writeDomainError(w, err)
		return
	}

	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHealth répond 200 même en mode dégradé : les lectures restent
// servies, seule la fraîcheur des usernames n'est plus garantie.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	body := map[string]string{"status": status}

	if s.consumer != nil {
		body["consumer"] = s.consumer.State().String()
		if !s.consumer.Healthy() {
			body["status"] = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, body)
}

// --- HELPERS ---

type postResponse struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Username  string `json:"username"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func toPostResponse(p *domain.Post) postResponse {
	return postResponse{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Username:  p.Username,
		Title:     p.Title,
		Content:   p.Content,
		CreatedAt: p.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPostNotFound):
		writeError(w, http.StatusNotFound, "post not found")
	case errors.Is(err, domain.ErrAuthorNotFound):
		writeError(w, http.StatusNotFound, "author not found")
	case errors.Is(err, domain.ErrInvalidTitle), errors.Is(err, domain.ErrInvalidContent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
