package ports

import (
	"context"

	"github.com/quockhanh41/blog-microservice/internal/user/core/domain"
)

// --- DRIVEN (Ce dont le service a besoin) ---

type UserRepository interface {
	Save(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error

	// GetUsernames hydrate une liste d'IDs en une requête (pour Following).
	GetUsernames(ctx context.Context, ids []string) (map[string]string, error)
}

// SocialGraph : arêtes FOLLOWS dans Neo4j. Toutes les écritures sont
// idempotentes (MERGE / DELETE).
type SocialGraph interface {
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	FollowingIDs(ctx context.Context, userID string) ([]string, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(encodedHash, password string) error
}

type TokenProvider interface {
	GenerateTokens(user *domain.User) (access string, refresh string, err error)
	Validate(tokenString string) (string, error)
}

// EventPublisher pousse les événements de cycle de vie vers le broker.
// Best effort : un broker down ne doit jamais faire échouer l'écriture
// déjà commitée (on logue et on continue).
type EventPublisher interface {
	PublishUserCreated(ctx context.Context, user *domain.User) error
	PublishUserUpdated(ctx context.Context, user *domain.User) error
}
