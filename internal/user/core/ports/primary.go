package ports

import (
	"context"
	"time"

	"github.com/quockhanh41/blog-microservice/internal/user/core/domain"
)

// --- DRIVING (Ce que le service expose) ---

type RegisterCmd struct {
	Email    string
	Username string
	Password string
}

type LoginCmd struct {
	Email    string
	Password string
}

type AuthResponse struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type UserService interface {
	Register(ctx context.Context, cmd RegisterCmd) (*AuthResponse, error)
	Login(ctx context.Context, cmd LoginCmd) (*AuthResponse, error)

	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpdateUsername persiste le nouveau nom PUIS publie l'événement
	// "updated" : jamais d'événement pour un état non commité.
	UpdateUsername(ctx context.Context, userID, username string) (*domain.User, error)

	// Graphe social
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	Following(ctx context.Context, userID string) ([]domain.FollowedUser, error)
}
