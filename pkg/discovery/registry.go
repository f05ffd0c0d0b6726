// Package discovery fournit le client Consul partagé par tous les services :
// enregistrement de l'instance locale, découverte des instances saines des
// autres services, avec un cache local pour borner la latence et la charge
// sur le registre.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	consulapi "github.com/hashicorp/consul/api"
)

// ErrNoInstances : aucune instance saine connue (ni fraîche, ni stale).
// L'appelant retombe sur son adresse statique s'il en a une.
var ErrNoInstances = errors.New("no healthy instance available")

// DefaultCacheTTL borne la fraîcheur du cache de découverte.
// Au-delà, on réinterroge Consul ; en deçà, zéro appel réseau.
const DefaultCacheTTL = 30 * time.Second

// Instance est la vue locale d'une instance enregistrée dans Consul.
// Éphémère : rafraîchie à chaque poll, jamais persistée.
type Instance struct {
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
	Meta    map[string]string
}

// URL retourne la base HTTP de l'instance.
func (i Instance) URL() string {
	return fmt.Sprintf("http://%s:%d", i.Address, i.Port)
}

type Config struct {
	Addr string // adresse de l'agent Consul ("host:port")

	// Description de l'instance locale (pour Register)
	ServiceName    string
	ServiceID      string // généré si vide
	ServiceAddress string
	ServicePort    int
	Environment    string

	CacheTTL time.Duration // défaut : DefaultCacheTTL
}

type cacheEntry struct {
	instances []Instance
	fetchedAt time.Time
}

// Registry encapsule le client Consul + le cache de découverte.
// Construit explicitement dans chaque main, jamais un singleton ambiant.
type Registry struct {
	client *consulapi.Client
	cfg    Config

	// Cache read-mostly : écrit uniquement par le refresh de Discover.
	// Deux refresh concurrents sur la même clé peuvent se doubler,
	// last-write-wins, acceptable car le cache est consultatif.
	mu    sync.RWMutex
	cache map[string]cacheEntry
}

func New(cfg Config) (*Registry, error) {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.ServiceID == "" {
		// ID unique par instance : nom + adresse + port + suffixe aléatoire
		cfg.ServiceID = fmt.Sprintf("%s-%s-%d-%06x", cfg.ServiceName, cfg.ServiceAddress, cfg.ServicePort, rand.Uint32N(1<<24))
	}

	apiCfg := consulapi.DefaultConfig()
	if cfg.Addr != "" {
		apiCfg.Address = cfg.Addr
	}

	client, err := consulapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}

	return &Registry{
		client: client,
		cfg:    cfg,
		cache:  make(map[string]cacheEntry),
	}, nil
}

// ServiceID expose l'identifiant de l'instance locale (utile pour les logs).
func (r *Registry) ServiceID() string {
	return r.cfg.ServiceID
}

// Register annonce l'instance locale à Consul avec son health check HTTP.
// Échouer ici n'est JAMAIS fatal : le service continue de servir le trafic.
func (r *Registry) Register(ctx context.Context) error {
	reg := &consulapi.AgentServiceRegistration{
		ID:      r.cfg.ServiceID,
		Name:    r.cfg.ServiceName,
		Address: r.cfg.ServiceAddress,
		Port:    r.cfg.ServicePort,
		Tags:    []string{"microservice", "blog", r.cfg.ServiceName},
		Meta: map[string]string{
			"version":     "1.0.0",
			"environment": r.cfg.Environment,
		},
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", r.cfg.ServiceAddress, r.cfg.ServicePort),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}

	opts := consulapi.ServiceRegisterOpts{}.WithContext(ctx)
	if err := r.client.Agent().ServiceRegisterOpts(reg, opts); err != nil {
		return fmt.Errorf("consul register %s: %w", r.cfg.ServiceName, err)
	}

	slog.Info("✅ Service registered with Consul", "service", r.cfg.ServiceName, "id", r.cfg.ServiceID)
	return nil
}

// RegisterWithRetry retente l'enregistrement à intervalle fixe.
// À lancer en goroutine au démarrage : l'épuisement des tentatives laisse
// le service tourner sans discovery (dégradé, pas mort).
func (r *Registry) RegisterWithRetry(ctx context.Context, attempts int, backoff time.Duration) {
	for i := 1; i <= attempts; i++ {
		if err := r.Register(ctx); err == nil {
			return
		} else {
			slog.Warn("⚠️ Consul registration failed", "attempt", i, "max", attempts, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
	slog.Error("❌ Giving up on Consul registration, running unregistered", "service", r.cfg.ServiceName)
}

// Deregister retire l'instance du registre. Best-effort au shutdown.
func (r *Registry) Deregister(ctx context.Context) error {
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	if err := r.client.Agent().ServiceDeregisterOpts(r.cfg.ServiceID, q); err != nil {
		return fmt.Errorf("consul deregister %s: %w", r.cfg.ServiceID, err)
	}
	slog.Info("✅ Service deregistered from Consul", "id", r.cfg.ServiceID)
	return nil
}

// Discover retourne les instances passant leur health check.
//  1. Cache plus jeune que le TTL -> zéro appel réseau.
//  2. Sinon, requête Consul et remplacement de l'entrée.
//  3. Consul injoignable -> entrée stale si on en a une, sinon liste vide.
func (r *Registry) Discover(ctx context.Context, serviceName string) ([]Instance, error) {
	r.mu.RLock()
	entry, cached := r.cache[serviceName]
	r.mu.RUnlock()

	if cached && time.Since(entry.fetchedAt) < r.cfg.CacheTTL {
		return entry.instances, nil
	}

	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	serviceEntries, _, err := r.client.Health().Service(serviceName, "", true, q)
	if err != nil {
		if cached {
			// Stale-but-available : mieux qu'un échec sec
			slog.Warn("⚠️ Consul unreachable, serving stale instances", "service", serviceName, "age", time.Since(entry.fetchedAt).Round(time.Second), "error", err)
			return entry.instances, nil
		}
		slog.Warn("⚠️ Consul unreachable and no cached instances", "service", serviceName, "error", err)
		return nil, nil
	}

	instances := make([]Instance, 0, len(serviceEntries))
	for _, se := range serviceEntries {
		address := se.Service.Address
		if address == "" {
			address = se.Node.Address
		}
		instances = append(instances, Instance{
			ID:      se.Service.ID,
			Name:    se.Service.Service,
			Address: address,
			Port:    se.Service.Port,
			Tags:    se.Service.Tags,
			Meta:    se.Service.Meta,
		})
	}

	r.mu.Lock()
	r.cache[serviceName] = cacheEntry{instances: instances, fetchedAt: time.Now()}
	r.mu.Unlock()

	return instances, nil
}

// ResolveOne choisit une instance au hasard (load balancing simple, sans
// pondération ni sticky session). ErrNoInstances si l'ensemble est vide.
func (r *Registry) ResolveOne(ctx context.Context, serviceName string) (Instance, error) {
	instances, err := r.Discover(ctx, serviceName)
	if err != nil {
		return Instance{}, err
	}
	if len(instances) == 0 {
		return Instance{}, ErrNoInstances
	}
	return instances[rand.IntN(len(instances))], nil
}

// Invalidate purge le cache d'un service (après déploiement, recovery manuelle...).
func (r *Registry) Invalidate(serviceName string) {
	r.mu.Lock()
	delete(r.cache, serviceName)
	r.mu.Unlock()
}

// InvalidateAll purge tout le cache de découverte.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
}
