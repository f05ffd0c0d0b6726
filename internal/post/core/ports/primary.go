package ports

import (
	"context"

	"github.com/quockhanh41/blog-microservice/internal/post/core/domain"
)

// --- DRIVING (Ce que le service expose) ---

type PostService interface {
	// CreatePost tamponne le username de l'auteur depuis la référence
	// locale (ou le user-service en dernier recours) puis persiste.
	CreatePost(ctx context.Context, authorID, title, content string) (*domain.Post, error)

	GetPost(ctx context.Context, postID string) (*domain.Post, error)

	// ListPosts sert l'hydratation du feed : posts des auteurs donnés,
	// triés par date, bornés à limit.
	ListPosts(ctx context.Context, authorIDs []string, limit int, sortAsc bool) ([]*domain.Post, error)

	// ApplyUserEvent est appelé par le consumer d'événements.
	// Idempotent : rejouer le même événement produit le même état final.
	ApplyUserEvent(ctx context.Context, event domain.UserEvent) error
}
