package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env         string // "local" ou "prod"
	ServiceName string

	HTTPPort       int
	ServiceAddress string // adresse annoncée à Consul

	RedisAddr  string
	ConsulAddr string

	// Noms Consul des services amont, et fallbacks statiques quand la
	// discovery ne donne rien
	UserServiceName string
	PostServiceName string
	UserServiceURL  string
	PostServiceURL  string

	// Clé publique RSA pour vérifier les tokens localement (optionnelle :
	// derrière la gateway, X-User-ID suffit)
	JWTPublicKeyPath string

	OtelEndpoint string
}

func Load() Config {
	return Config{
		Env:              getEnv("APP_ENV", "local"),
		ServiceName:      getEnv("SERVICE_NAME", "feed-service"),
		HTTPPort:         getEnvInt("PORT", 3003),
		ServiceAddress:   getEnv("SERVICE_ADDRESS", "feed-service"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		ConsulAddr:       getEnv("CONSUL_ADDR", "localhost:8500"),
		UserServiceName:  getEnv("USER_SERVICE_NAME", "user-service"),
		PostServiceName:  getEnv("POST_SERVICE_NAME", "post-service"),
		UserServiceURL:   getEnv("USER_SERVICE_URL", ""),
		PostServiceURL:   getEnv("POST_SERVICE_URL", ""),
		JWTPublicKeyPath: getEnv("RSA_PUBLIC_KEY_PATH", ""),
		OtelEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
