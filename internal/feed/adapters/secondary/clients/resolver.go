package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quockhanh41/blog-microservice/internal/feed/core/domain"
	"github.com/quockhanh41/blog-microservice/pkg/discovery"
)

// CallTimeout : budget des appels interactifs du chemin feed.
// Un pair lent ne doit jamais bloquer une requête indéfiniment.
const CallTimeout = 5 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   CallTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// serviceResolver factorise la résolution discovery -> fallback statique
// partagée par les deux clients sortants.
type serviceResolver struct {
	registry    *discovery.Registry
	serviceName string
	fallbackURL string // base statique, vide si non configurée
}

// baseURL résout une adresse saine via Consul, retombe sur l'adresse
// statique si la découverte ne donne rien, sinon ErrServiceUnavailable.
func (r serviceResolver) baseURL(ctx context.Context) (string, error) {
	inst, err := r.registry.ResolveOne(ctx, r.serviceName)
	if err == nil {
		return inst.URL(), nil
	}

	if r.fallbackURL != "" {
		slog.Warn("⚠️ Discovery empty, using static fallback", "service", r.serviceName, "fallback", r.fallbackURL)
		return r.fallbackURL, nil
	}

	return "", fmt.Errorf("%w: %s", domain.ErrServiceUnavailable, r.serviceName)
}

// --- MAPPING ERREURS TRANSPORT -> DOMAINE ---

func mapTransportError(serviceName string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %s: %v", domain.ErrUpstreamTimeout, serviceName, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", domain.ErrUpstreamTimeout, serviceName, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrServiceUnavailable, serviceName, err)
}

func mapStatusError(serviceName string, status int) error {
	return fmt.Errorf("%w: %s returned %d", domain.ErrUpstream, serviceName, status)
}
