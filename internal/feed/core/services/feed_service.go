package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/quockhanh41/blog-microservice/internal/feed/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/feed/core/ports"
)

const (
	// DefaultLimit quand le client ne précise rien
	DefaultLimit = 50

	// FeedTTL : fenêtre de staleness acceptée. On n'invalide PAS le cache
	// à chaque nouveau post d'un auteur suivi, c'est un choix assumé
	// disponibilité > fraîcheur.
	FeedTTL = 5 * time.Minute

	// OverfetchFactor : on ramène plus que la page demandée pour que le
	// cache vaille la peine d'être gardé (pagination servie sans réseau).
	OverfetchFactor = 10

	// MaxLimit borne le limit accepté du client, aligné sur le cap du
	// content service. Borne aussi l'arithmétique de pagination et de
	// sur-fetch (un limit démesuré ne doit jamais déborder).
	MaxLimit = 500
)

type FeedService struct {
	cache   ports.FeedCache
	social  ports.SocialGraphClient
	content ports.ContentClient

	now func() time.Time // injectable pour les tests
}

func NewFeedService(cache ports.FeedCache, social ports.SocialGraphClient, content ports.ContentClient) *FeedService {
	return &FeedService{
		cache:   cache,
		social:  social,
		content: content,
		now:     time.Now,
	}
}

// GetFeed : stratégie cache-aside.
//  1. Hit non expiré -> le jeu complet candidat vient du cache.
//  2. Miss -> régénération (social graph puis content, merge, tri) + écriture cache.
//  3. Découpage de la page demandée sur le jeu complet.
func (s *FeedService) GetFeed(ctx context.Context, viewerID string, page, limit int) (domain.FeedPage, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	if page <= 0 {
		page = 1
	}

	entries, hit := s.fromCache(ctx, viewerID)
	if !hit {
		slog.Info("🔄 Generating new feed", "user_id", viewerID)

		var err error
		entries, err = s.regenerate(ctx, viewerID, limit)
		if err != nil {
			return domain.FeedPage{}, err
		}

		// Écriture cache best-effort : une panne Redis ne casse pas la lecture
		if err := s.cache.Set(ctx, viewerID, entries, FeedTTL); err != nil {
			slog.Warn("⚠️ Feed cache write failed", "user_id", viewerID, "error", err)
		}
	} else {
		slog.Debug("⚡ Serving cached feed", "user_id", viewerID)
	}

	return paginate(entries, page, limit), nil
}

// InvalidateFeed force la visibilité immédiate d'un changement.
func (s *FeedService) InvalidateFeed(ctx context.Context, viewerID string) error {
	if err := s.cache.Delete(ctx, viewerID); err != nil {
		// Le cache expirera tout seul : on logge et on continue
		slog.Warn("⚠️ Feed cache invalidation failed", "user_id", viewerID, "error", err)
	}
	return nil
}

// --- HELPERS ---

func (s *FeedService) fromCache(ctx context.Context, viewerID string) ([]domain.FeedEntry, bool) {
	entries, hit, err := s.cache.Get(ctx, viewerID)
	if err != nil {
		// Store injoignable == miss, on retombe sur la régénération
		slog.Warn("⚠️ Feed cache read failed, treating as miss", "user_id", viewerID, "error", err)
		return nil, false
	}
	return entries, hit
}

func (s *FeedService) regenerate(ctx context.Context, viewerID string, limit int) ([]domain.FeedEntry, error) {
	// 1. Liste de suivi (dépendance stricte : on en a besoin avant le content)
	following, err := s.social.Following(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	// Le feed inclut toujours ses propres posts, même en suivant personne
	authorIDs := make([]string, 0, len(following)+1)
	for _, u := range following {
		authorIDs = append(authorIDs, u.ID)
	}
	authorIDs = append(authorIDs, viewerID)

	// 2. Posts des auteurs sources, sur-fetch borné pour un cache profond
	raw, err := s.content.PostsByAuthors(ctx, authorIDs, limit*OverfetchFactor)
	if err != nil {
		return nil, err
	}

	// 3. Transformation tolérante : un enregistrement pourri ne casse pas la page
	entries := make([]domain.FeedEntry, 0, len(raw))
	for _, p := range raw {
		entries = append(entries, s.transform(p))
	}

	// 4. Tri : createdAt décroissant, égalité départagée par postId croissant
	// (ordre stable et déterministe quel que soit l'ordre d'arrivée)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	return entries, nil
}

// transform convertit un post brut en entrée de feed dénormalisée.
func (s *FeedService) transform(p domain.RawPost) domain.FeedEntry {
	createdAt, err := parseTimestamp(p.CreatedAt)
	if err != nil {
		slog.Warn("⚠️ Malformed created_at, falling back to now", "post_id", p.ID, "value", p.CreatedAt)
		createdAt = s.now().UTC()
	}

	username := p.Username
	if username == "" {
		username = domain.UnknownUsername
	}

	return domain.FeedEntry{
		ID:      p.ID,
		Title:   p.Title,
		Content: p.Content,
		Author: domain.Author{
			ID:       p.AuthorID,
			Username: username,
		},
		CreatedAt: createdAt,
		// Likes et commentaires vivent dans un autre service, pas encore câblé
		LikesCount:    0,
		CommentsCount: 0,
		IsLiked:       false,
	}
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Parse(time.RFC3339, value)
	}
	return t, nil
}

func paginate(entries []domain.FeedEntry, page, limit int) domain.FeedPage {
	total := len(entries)

	// Page au-delà de la fin : séquence vide, pas une erreur. Le garde-fou
	// passe par le nombre de pages plutôt que par (page-1)*limit, qui
	// déborde pour un page géant et donnerait un offset négatif.
	lastPage := (total + limit - 1) / limit
	if page > lastPage {
		return domain.FeedPage{Entries: []domain.FeedEntry{}, HasMore: false, Total: total}
	}

	offset := (page - 1) * limit
	end := offset + limit
	if end > total {
		end = total
	}

	return domain.FeedPage{
		Entries: entries[offset:end],
		HasMore: offset+limit < total,
		Total:   total,
	}
}
