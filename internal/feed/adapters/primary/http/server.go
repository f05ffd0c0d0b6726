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

	"github.com/quockhanh41/blog-microservice/internal/feed/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/feed/core/ports"
)

// TokenVerifier valide un access token et retourne l'ID du viewer.
// En pratique : vérification RS256 avec la clé publique de l'identity service.
type TokenVerifier interface {
	Validate(tokenString string) (string, error)
}

type Server struct {
	service  ports.FeedService
	verifier TokenVerifier
}

func NewServer(service ports.FeedService, verifier TokenVerifier) *Server {
	return &Server{service: service, verifier: verifier}
}

// Handler assemble le routeur + CORS + instrumentation otel.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /feed", s.withViewer(s.handleGetFeed))
	mux.Handle("POST /feed/invalidate", s.withViewer(s.handleInvalidate))

	return otelhttp.NewHandler(cors.Default().Handler(mux), "feed-service")
}

// --- IDENTITÉ DU VIEWER ---

// Clé privée pour le contexte (évite les collisions)
type contextKey struct{ name string }

var viewerCtxKey = &contextKey{"viewer_id"}

// withViewer résout l'identité du viewer : header injecté par la gateway
// en priorité, sinon Bearer token vérifié localement.
func (s *Server) withViewer(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewerID := r.Header.Get("X-User-ID")

		if viewerID == "" {
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
			viewerID = id
		}

		ctx := context.WithValue(r.Context(), viewerCtxKey, viewerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func viewerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(viewerCtxKey).(string)
	return id
}

// --- HANDLERS ---

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	viewerID := viewerFromContext(r.Context())

	limit := queryInt(r, "limit", 50)
	page := queryInt(r, "page", 1)

	feedPage, err := s.service.GetFeed(r.Context(), viewerID, page, limit)
	if err != nil {
		slog.Error("❌ Failed to build feed", "user_id", viewerID, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"posts":   feedPage.Entries,
		"hasMore": feedPage.HasMore,
		"total":   feedPage.Total,
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	viewerID := viewerFromContext(r.Context())

	if err := s.service.InvalidateFeed(r.Context(), viewerID); err != nil {
		slog.Error("❌ Failed to invalidate feed", "user_id", viewerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to invalidate feed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Feed cache invalidated successfully"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- HELPERS ---

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

// writeDomainError mappe la taxonomie du domaine vers un 5xx stable.
// Jamais de page partielle silencieusement étiquetée complète.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrServiceUnavailable), errors.Is(err, domain.ErrUpstreamTimeout):
		writeError(w, http.StatusServiceUnavailable, "failed to fetch feed")
	case errors.Is(err, domain.ErrUpstream):
		writeError(w, http.StatusBadGateway, "failed to fetch feed")
	default:
		writeError(w, http.StatusInternalServerError, "failed to fetch feed")
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
