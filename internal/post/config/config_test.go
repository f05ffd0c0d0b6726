package config

import "testing"

func TestLoadUserServiceName(t *testing.T) {
	if got := Load().UserServiceName; got != "user-service" {
		t.Errorf("UserServiceName = %q, want user-service", got)
	}

	t.Setenv("USER_SERVICE_NAME", "user-service-canary")
	if got := Load().UserServiceName; got != "user-service-canary" {
		t.Errorf("UserServiceName = %q, want user-service-canary", got)
	}
}
