package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/quockhanh41/blog-microservice/internal/feed/core/domain"
	"github.com/quockhanh41/blog-microservice/pkg/discovery"
)

// SocialGraphClient interroge le user-service (propriétaire du graphe de suivi).
type SocialGraphClient struct {
	resolver serviceResolver
	http     *http.Client
}

func NewSocialGraphClient(registry *discovery.Registry, serviceName, fallbackURL string) *SocialGraphClient {
	return &SocialGraphClient{
		resolver: serviceResolver{
			registry:    registry,
			serviceName: serviceName,
			fallbackURL: fallbackURL,
		},
		http: newHTTPClient(),
	}
}

// DTO du wire format (contract : GET /users/{id}/following)
type followedUserDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (c *SocialGraphClient) Following(ctx context.Context, userID string) ([]domain.FollowedUser, error) {
	base, err := c.resolver.baseURL(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/users/%s/following", base, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mapTransportError(c.resolver.serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mapStatusError(c.resolver.serviceName, resp.StatusCode)
	}

	var dtos []followedUserDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("%w: decode following list: %v", domain.ErrUpstream, err)
	}

	following := make([]domain.FollowedUser, len(dtos))
	for i, d := range dtos {
		following[i] = domain.FollowedUser{ID: d.ID, Username: d.Username}
	}

	slog.Debug("Fetched following list", "user_id", userID, "count", len(following))
	return following, nil
}
