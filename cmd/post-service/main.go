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

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/quockhanh41/blog-microservice/internal/post/adapters/primary/events"
	httpserver "github.com/quockhanh41/blog-microservice/internal/post/adapters/primary/http"
	"github.com/quockhanh41/blog-microservice/internal/post/adapters/secondary/clients"
	"github.com/quockhanh41/blog-microservice/internal/post/adapters/secondary/repository"
	"github.com/quockhanh41/blog-microservice/internal/post/config"
	"github.com/quockhanh41/blog-microservice/internal/post/core/services"
	"github.com/quockhanh41/blog-microservice/internal/user/adapters/secondary/security"
	"github.com/quockhanh41/blog-microservice/pkg/discovery"
)

func main() {
	// 1. Config
	cfg := config.Load()

	// 2. Logger
	initLogger(cfg)
	slog.Info("🚀 Starting Post Service", "env", cfg.Env, "port", cfg.HTTPPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
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

	// 4. Postgres (store possédé : fail fast)
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to parse DB config", "error", err)
		os.Exit(1)
	}
	dbConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		slog.Error("Database ping failed", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Database connected")

	// 5. Discovery (Consul)
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
	repo := repository.NewPostgresRepo(dbPool)
	users := clients.NewUserClient(registry, cfg.UserServiceName, cfg.UserServiceURL)
	postService := services.NewPostService(repo, users)

	// 8. Consumer d'événements user.*. Pas fatal si NATS est down : après
	// les retries le service passe en dégradé (usernames possiblement
	// stale) mais continue de servir les lectures et écritures.
	consumer := events.NewConsumer(cfg.NatsURL, postService)
	go consumer.Run(ctx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: httpserver.NewServer(postService, verifier, consumer).Handler(),
	}

	// 9. Serveur HTTP + enregistrement Consul en arrière-plan
	go func() {
		slog.Info("🚀 HTTP Server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to serve", "error", err)
			os.Exit(1)
		}
	}()

	go registry.RegisterWithRetry(ctx, 5, 3*time.Second)

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	sig := <-quit
	slog.Info("⚠️  Signal received, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := registry.Deregister(shutdownCtx); err != nil {
		slog.Warn("⚠️ Consul deregistration failed", "error", err)
	}

	consumer.Stop()

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
		otlptracegrpc.WithInsecure(),
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

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
