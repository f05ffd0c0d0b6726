package ports

import (
	"context"
	"time"

	"github.com/quockhanh41/blog-microservice/internal/feed/core/domain"
)

// --- DRIVEN (Ce dont le service a besoin) ---

// FeedCache : abstraction étroite du cache externe avec expiration.
// Le cache est une optimisation, jamais une dépendance de correction :
// toute erreur ici doit être absorbable par l'appelant.
type FeedCache interface {
	// Get retourne (entries, true, nil) sur un hit non expiré.
	// (nil, false, nil) sur un miss, (nil, false, err) si le store est injoignable.
	Get(ctx context.Context, userID string) ([]domain.FeedEntry, bool, error)

	// Set remplace le feed caché en bloc avec expiration côté serveur.
	Set(ctx context.Context, userID string, entries []domain.FeedEntry, ttl time.Duration) error

	Delete(ctx context.Context, userID string) error
}

// SocialGraphClient : le service qui possède la liste de suivi.
type SocialGraphClient interface {
	Following(ctx context.Context, userID string) ([]domain.FollowedUser, error)
}

// ContentClient : le service qui possède les posts.
type ContentClient interface {
	// PostsByAuthors récupère les posts bruts des auteurs donnés,
	// triés du plus récent au plus ancien, bornés à limit.
	PostsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]domain.RawPost, error)
}
