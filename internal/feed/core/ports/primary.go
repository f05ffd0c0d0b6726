package ports

import (
	"context"

	"github.com/quockhanh41/blog-microservice/internal/feed/core/domain"
)

// --- DRIVING (Ce que le service expose) ---

type FeedService interface {
	// GetFeed matérialise (ou relit depuis le cache) le feed du viewer
	// et en retourne la page demandée. page et limit sont 1-based.
	GetFeed(ctx context.Context, viewerID string, page, limit int) (domain.FeedPage, error)

	// InvalidateFeed supprime la copie cachée du viewer pour forcer
	// une régénération au prochain GetFeed.
	InvalidateFeed(ctx context.Context, viewerID string) error
}
