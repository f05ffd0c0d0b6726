package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quockhanh41/blog-microservice/internal/user/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/user/core/ports"
)

// TokenVerifier valide un access token et retourne l'ID de l'appelant.
type TokenVerifier interface {
	Validate(tokenString string) (string, error)
}

type Server struct {
	service  ports.UserService
	verifier TokenVerifier
}

func NewServer(service ports.UserService, verifier TokenVerifier) *Server {
	return &Server{service: service, verifier: verifier}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)

	// Lectures publiques : le post-service (fallback username) et le
	// feed-service (liste des suivis) passent par là.
	mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	mux.HandleFunc("GET /users/{id}/following", s.handleFollowing)

	mux.Handle("PUT /users/{id}", s.withCaller(s.handleUpdateUsername))
	mux.Handle("POST /users/{id}/follow", s.withCaller(s.handleFollow))
	mux.Handle("DELETE /users/{id}/follow", s.withCaller(s.handleUnfollow))

	return otelhttp.NewHandler(cors.Default().Handler(mux), "user-service")
}

// --- IDENTITÉ DE L'APPELANT ---

type contextKey struct{ name string }

var callerCtxKey = &contextKey{"caller_id"}

func (s *Server) withCaller(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callerID := r.Header.Get("X-User-ID")

		if callerID == "" {
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
			callerID = id
		}

		ctx := context.WithValue(r.Context(), callerCtxKey, callerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callerCtxKey).(string)
	return id
}

// --- HANDLERS AUTH ---

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.service.Register(r.Context(), ports.RegisterCmd{
		Email: req.Email, Username: req.Username, Password: req.Password,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthResponse(resp))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.service.Login(r.Context(), ports.LoginCmd{Email: req.Email, Password: req.Password})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(resp))
}

// --- HANDLERS USERS ---

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type updateUsernameRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleUpdateUsername(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	callerID := callerFromContext(r.Context())

	// On ne renomme que soi-même
	if callerID != targetID {
		writeError(w, http.StatusForbidden, "cannot update another user")
		return
	}

	var req updateUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.service.UpdateUsername(r.Context(), targetID, req.Username)
	if err != nil {
		slog.Error("❌ Failed to update username", "user_id", targetID, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// --- HANDLERS GRAPHE SOCIAL ---

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	followerID := callerFromContext(r.Context())
	followeeID := r.PathValue("id")

	if err := s.service.Follow(r.Context(), followerID, followeeID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Followed successfully"})
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	followerID := callerFromContext(r.Context())
	followeeID := r.PathValue("id")

	if err := s.service.Unfollow(r.Context(), followerID, followeeID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Unfollowed successfully"})
}

func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) {
	following, err := s.service.Following(r.Context(), r.PathValue("id"))
	if err != nil {
		slog.Error("❌ Failed to list following", "user_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list following")
		return
	}

	out := make([]followedUserResponse, 0, len(following))
	for _, f := range following {
		out = append(out, followedUserResponse{ID: f.ID, Username: f.Username})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- HELPERS ---

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

type followedUserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"` // secondes
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func toAuthResponse(a *ports.AuthResponse) authResponse {
	return authResponse{
		User:         toUserResponse(a.User),
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		ExpiresIn:    int(a.ExpiresIn.Seconds()),
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, domain.ErrEmailAlreadyExists), errors.Is(err, domain.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrInvalidUsername), errors.Is(err, domain.ErrSelfFollow):
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
