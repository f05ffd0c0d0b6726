package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quockhanh41/blog-microservice/internal/post/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/post/core/ports"
	"github.com/quockhanh41/blog-microservice/pkg/discovery"
)

const CallTimeout = 5 * time.Second

// UserClient interroge le user-service quand la référence locale n'existe
// pas encore. Chemin froid : un seul appel par auteur inconnu, le résultat
// est ensuite semé dans user_refs.
type UserClient struct {
	registry    *discovery.Registry
	serviceName string
	fallbackURL string
	http        *http.Client
}

func NewUserClient(registry *discovery.Registry, serviceName, fallbackURL string) ports.UserDirectory {
	return &UserClient{
		registry:    registry,
		serviceName: serviceName,
		fallbackURL: fallbackURL,
		http: &http.Client{
			Timeout:   CallTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type userDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (c *UserClient) FetchUsername(ctx context.Context, userID string) (string, error) {
	base, err := c.baseURL(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/users/%s", base, userID), nil)
	if err != nil {
		return "", fmt.Errorf("user client: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("user client: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", domain.ErrAuthorNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user client: %s returned %d", c.serviceName, resp.StatusCode)
	}

	var dto userDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return "", fmt.Errorf("user client: decode response: %w", err)
	}
	return dto.Username, nil
}

func (c *UserClient) baseURL(ctx context.Context) (string, error) {
	inst, err := c.registry.ResolveOne(ctx, c.serviceName)
	if err == nil {
		return inst.URL(), nil
	}

	if c.fallbackURL != "" {
		slog.Warn("⚠️ Discovery empty, using static fallback", "service", c.serviceName, "fallback", c.fallbackURL)
		return c.fallbackURL, nil
	}

	return "", fmt.Errorf("user client: no instance of %s", c.serviceName)
}
