package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quockhanh41/blog-microservice/internal/feed/core/domain"
)

// SchemaVersion est le discriminant explicite stocké avec chaque feed caché.
// Le lecteur branche sur cette version, jamais sur la forme incidentelle du blob.
const SchemaVersion = 1

// feedEnvelope est le format JSON stocké dans Redis sous feed:{userId}.
type feedEnvelope struct {
	SchemaVersion int                `json:"schema_version"`
	UserID        string             `json:"user_id"`
	Entries       []domain.FeedEntry `json:"entries"`
	CachedAt      time.Time          `json:"cached_at"`
}

type RedisFeedCache struct {
	client *redis.Client
}

func NewRedisFeedCache(client *redis.Client) *RedisFeedCache {
	return &RedisFeedCache{client: client}
}

func feedKey(userID string) string {
	return fmt.Sprintf("feed:%s", userID)
}

// Get retourne le feed caché, ou un miss si la clé est absente, expirée,
// illisible ou d'une version de schéma inconnue.
func (r *RedisFeedCache) Get(ctx context.Context, userID string) ([]domain.FeedEntry, bool, error) {
	raw, err := r.client.Get(ctx, feedKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	entries, ok := decodeFeed(raw)
	if !ok {
		// Blob corrompu ou version inconnue : on le traite comme un miss,
		// la régénération écrasera proprement
		slog.Warn("⚠️ Unreadable cached feed, treating as miss", "user_id", userID)
		return nil, false, nil
	}
	return entries, true, nil
}

// Set remplace le feed en bloc, expiration gérée côté Redis (SET ... EX).
func (r *RedisFeedCache) Set(ctx context.Context, userID string, entries []domain.FeedEntry, ttl time.Duration) error {
	data, err := encodeFeed(userID, entries)
	if err != nil {
		return fmt.Errorf("encode cached feed: %w", err)
	}
	if err := r.client.Set(ctx, feedKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisFeedCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, feedKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// --- ENCODAGE ---

func encodeFeed(userID string, entries []domain.FeedEntry) ([]byte, error) {
	return json.Marshal(feedEnvelope{
		SchemaVersion: SchemaVersion,
		UserID:        userID,
		Entries:       entries,
		CachedAt:      time.Now().UTC(),
	})
}

func decodeFeed(raw []byte) ([]domain.FeedEntry, bool) {
	var env feedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, false
	}
	if env.Entries == nil {
		env.Entries = []domain.FeedEntry{}
	}
	return env.Entries, true
}
