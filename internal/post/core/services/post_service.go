package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quockhanh41/blog-microservice/internal/post/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/post/core/ports"
)

// MaxListLimit borne le batch fetch du feed (qui sur-fetch volontairement).
const MaxListLimit = 500

type service struct {
	repo  ports.PostRepository
	users ports.UserDirectory
}

func NewPostService(repo ports.PostRepository, users ports.UserDirectory) ports.PostService {
	return &service{repo: repo, users: users}
}

func (s *service) CreatePost(ctx context.Context, authorID, title, content string) (*domain.Post, error) {
	username, err := s.usernameFor(ctx, authorID)
	if err != nil {
		return nil, err
	}

	post, err := domain.NewPost(authorID, username, title, content)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, post); err != nil {
		return nil, err
	}

	return post, nil
}

func (s *service) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
	return s.repo.FindByID(ctx, postID)
}

func (s *service) ListPosts(ctx context.Context, authorIDs []string, limit int, sortAsc bool) ([]*domain.Post, error) {
	if len(authorIDs) == 0 {
		return []*domain.Post{}, nil
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.ListByAuthors(ctx, authorIDs, limit, sortAsc)
}

// ApplyUserEvent propage un changement d'identité dans la copie locale.
// Remplacement en bloc + réécriture bulk : rejouer l'événement aboutit au
// même état final (pure overwrite, jamais un incrément).
func (s *service) ApplyUserEvent(ctx context.Context, event domain.UserEvent) error {
	emittedAt := event.EmittedAt
	if emittedAt.IsZero() {
		emittedAt = time.Now().UTC()
	}

	ref := domain.UserReference{
		UserID:    event.UserID,
		Username:  event.Username,
		UpdatedAt: emittedAt,
	}
	if err := s.repo.UpsertUserReference(ctx, ref); err != nil {
		return err
	}

	// Les créations n'ont pas encore de posts à réécrire
	if event.Kind != domain.EventKindUpdated {
		return nil
	}

	// Dénormalisation assumée : réécriture bulk à l'écriture plutôt
	// qu'une jointure à chaque lecture du feed
	rewritten, err := s.repo.RewriteAuthorUsername(ctx, event.UserID, event.Username)
	if err != nil {
		return err
	}

	slog.Info("✅ Username propagated to posts", "user_id", event.UserID, "username", event.Username, "posts", rewritten)
	return nil
}

// --- HELPERS ---

// usernameFor : référence locale d'abord, user-service en dernier recours
// (et on seed la référence pour la prochaine fois).
func (s *service) usernameFor(ctx context.Context, authorID string) (string, error) {
	ref, err := s.repo.GetUserReference(ctx, authorID)
	if err == nil && ref != nil {
		return ref.Username, nil
	}
	if err != nil && !errors.Is(err, domain.ErrAuthorNotFound) {
		return "", err
	}

	username, err := s.users.FetchUsername(ctx, authorID)
	if err != nil {
		return "", err
	}

	seed := domain.UserReference{UserID: authorID, Username: username, UpdatedAt: time.Now().UTC()}
	if err := s.repo.UpsertUserReference(ctx, seed); err != nil {
		// La référence se recréera au prochain événement, pas bloquant
		slog.Warn("⚠️ Failed to seed user reference", "user_id", authorID, "error", err)
	}

	return username, nil
}
