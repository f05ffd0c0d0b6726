package ports

import (
	"context"

	"github.com/quockhanh41/blog-microservice/internal/post/core/domain"
)

// --- DRIVEN (Ce dont le service a besoin) ---

type PostRepository interface {
	Save(ctx context.Context, post *domain.Post) error
	FindByID(ctx context.Context, postID string) (*domain.Post, error)

	// ListByAuthors : batch fetch pour le feed (WHERE author_id = ANY)
	ListByAuthors(ctx context.Context, authorIDs []string, limit int, sortAsc bool) ([]*domain.Post, error)

	// --- Copie dénormalisée ---

	// UpsertUserReference remplace la référence en bloc (INSERT ... ON CONFLICT).
	UpsertUserReference(ctx context.Context, ref domain.UserReference) error

	GetUserReference(ctx context.Context, userID string) (*domain.UserReference, error)

	// RewriteAuthorUsername réécrit le username sur TOUS les posts de
	// l'auteur (bulk UPDATE). Retourne le nombre de lignes touchées.
	RewriteAuthorUsername(ctx context.Context, userID, username string) (int64, error)
}

// UserDirectory : lookup synchrone du user-service, dernier recours quand
// la référence locale n'existe pas encore.
type UserDirectory interface {
	FetchUsername(ctx context.Context, userID string) (string, error)
}
