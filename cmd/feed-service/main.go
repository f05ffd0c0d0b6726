package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	httpserver "github.com/quockhanh41/blog-microservice/internal/feed/adapters/primary/http"
	"github.com/quockhanh41/blog-microservice/internal/feed/adapters/secondary/cache"
	"github.com/quockhanh41/blog-microservice/internal/feed/adapters/secondary/clients"
	"github.com/quockhanh41/blog-microservice/internal/feed/config"
	"github.com/quockhanh41/blog-microservice/internal/feed/core/services"
	"github.com/quockhanh41/blog-microservice/internal/user/adapters/secondary/security"
	"github.com/quockhanh41/blog-microservice/pkg/discovery"
)

func main() {
	// 1. Config
	cfg := config.Load()

	// 2. Logger (slog JSON pour la prod, Text pour le dev)
	initLogger(cfg)
	slog.Info("🚀 Starting Feed Service", "env", cfg.Env, "port", cfg.HTTPPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing (OpenTelemetry)
	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("Error shutting down tracer", "error", err)
			}
		}()
	}

	// 4. Redis (cache de feed). Pas fatal si down : le cache-aside traite
	// toute erreur Redis comme un miss.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		slog.Warn("⚠️ Failed to instrument Redis tracing", "error", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("⚠️ Redis unreachable at startup, serving without cache", "error", err)
	} else {
		slog.Info("✅ Connected to Redis", "addr", cfg.RedisAddr)
	}
	defer rdb.Close()

	// 5. Discovery (Consul). Pas fatal non plus : les fallbacks statiques
	// prennent le relais.
	registry, err := discovery.New(discovery.Config{
		Addr:           cfg.ConsulAddr,
		ServiceName:    cfg.ServiceName,
		ServiceAddress: cfg.ServiceAddress,
		ServicePort:    cfg.HTTPPort,
		Environment:    cfg.Env,
	})
	if err != nil {
		slog.Error("Failed to init Consul client", "error", err)
		os.Exit(1)
	}

	// 6. Vérification des tokens en local (optionnelle derrière la gateway)
	var verifier httpserver.TokenVerifier
	if cfg.JWTPublicKeyPath != "" {
		v, err := security.NewVerifierFromFile(cfg.JWTPublicKeyPath)
		if err != nil {
			slog.Error("Failed to load JWT public key", "path", cfg.JWTPublicKeyPath, "error", err)
			os.Exit(1)
		}
		verifier = v
	}

	// 7. Wiring
	feedCache := cache.NewRedisFeedCache(rdb)
	social := clients.NewSocialGraphClient(registry, cfg.UserServiceName, cfg.UserServiceURL)
	content := clients.NewContentClient(registry, cfg.PostServiceName, cfg.PostServiceURL)
	feedService := services.NewFeedService(feedCache, social, content)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: httpserver.NewServer(feedService, verifier).Handler(),
	}

	// 8. Serveur HTTP + enregistrement Consul en arrière-plan
	go func() {
		slog.Info("🚀 HTTP Server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to serve", "error", err)
			os.Exit(1)
		}
	}()

	go registry.RegisterWithRetry(ctx, 5, 3*time.Second)

	// 9. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	sig := <-quit
	slog.Info("⚠️  Signal received, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := registry.Deregister(shutdownCtx); err != nil {
		slog.Warn("⚠️ Consul deregistration failed", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("⏳ Timeout reached, forcing server stop", "error", err)
	} else {
		slog.Info("✅ HTTP Server stopped gracefully")
	}

	slog.Info("👋 Service stopped")
}

// --- HELPERS ---

func initLogger(cfg config.Config) {
	var handler slog.Handler
	if cfg.Env == "local" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

func initTracer(ctx context.Context, cfg config.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(), // En prod, gérer le TLS
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String("1.0.0"),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	// Propagateur global : le trace-id circule entre les microservices
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
