package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/quockhanh41/blog-microservice/internal/feed/core/domain"
	"github.com/quockhanh41/blog-microservice/pkg/discovery"
)

// ContentClient interroge le post-service (propriétaire des posts).
type ContentClient struct {
	resolver serviceResolver
	http     *http.Client
}

func NewContentClient(registry *discovery.Registry, serviceName, fallbackURL string) *ContentClient {
	return &ContentClient{
		resolver: serviceResolver{
			registry:    registry,
			serviceName: serviceName,
			fallbackURL: fallbackURL,
		},
		http: newHTTPClient(),
	}
}

// DTO du wire format (contract : GET /posts)
type rawPostDTO struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Username  string `json:"username"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func (c *ContentClient) PostsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]domain.RawPost, error) {
	base, err := c.resolver.baseURL(ctx)
	if err != nil {
		return nil, err
	}

	// user_ids est répété, pas encodé en CSV (contrat du post-service)
	params := url.Values{}
	for _, id := range authorIDs {
		params.Add("user_ids", id)
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", "desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/posts?%s", base, params.Encode()), nil)
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

	var dtos []rawPostDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("%w: decode posts: %v", domain.ErrUpstream, err)
	}

	posts := make([]domain.RawPost, len(dtos))
	for i, d := range dtos {
		posts[i] = domain.RawPost{
			ID:        d.ID,
			AuthorID:  d.AuthorID,
			Username:  d.Username,
			Title:     d.Title,
			Content:   d.Content,
			CreatedAt: d.CreatedAt,
		}
	}

	slog.Debug("Fetched posts for feed", "authors", len(authorIDs), "count", len(posts))
	return posts, nil
}
