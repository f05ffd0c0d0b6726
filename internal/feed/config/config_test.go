package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServiceName != "feed-service" {
		t.Errorf("ServiceName = %q, want feed-service", cfg.ServiceName)
	}
	if cfg.UserServiceName != "user-service" {
		t.Errorf("UserServiceName = %q, want user-service", cfg.UserServiceName)
	}
	if cfg.PostServiceName != "post-service" {
		t.Errorf("PostServiceName = %q, want post-service", cfg.PostServiceName)
	}
	if cfg.HTTPPort != 3003 {
		t.Errorf("HTTPPort = %d, want 3003", cfg.HTTPPort)
	}
}

// Les noms Consul des services amont se pilotent par l'environnement,
// comme le nom du service lui-même.
func TestLoadPeerServiceNamesOverride(t *testing.T) {
	t.Setenv("USER_SERVICE_NAME", "user-service-eu")
	t.Setenv("POST_SERVICE_NAME", "post-service-eu")

	cfg := Load()
	if cfg.UserServiceName != "user-service-eu" {
		t.Errorf("UserServiceName = %q, want user-service-eu", cfg.UserServiceName)
	}
	if cfg.PostServiceName != "post-service-eu" {
		t.Errorf("PostServiceName = %q, want post-service-eu", cfg.PostServiceName)
	}
}
