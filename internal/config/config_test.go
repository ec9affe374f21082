package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Identity.Issuer != "https://auth.example.com" {
		t.Errorf("Identity.Issuer = %q", cfg.Identity.Issuer)
	}
	if cfg.Identity.JWKSURL != "https://auth.example.com/.well-known/jwks.json" {
		t.Errorf("Identity.JWKSURL = %q", cfg.Identity.JWKSURL)
	}
	if cfg.Identity.Audience != "reportdeck" {
		t.Errorf("Identity.Audience = %q", cfg.Identity.Audience)
	}
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if cfg.Gateway.BaseURL != "https://erp.internal" {
		t.Errorf("Gateway.BaseURL = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Gateway.Timeout != 10*time.Second {
		t.Errorf("Gateway.Timeout = %v, want 10s", cfg.Gateway.Timeout)
	}
	if cfg.Gateway.CircuitBreaker.FailureThreshold != 5 {
		t.Errorf("Gateway.CircuitBreaker.FailureThreshold = %d, want 5", cfg.Gateway.CircuitBreaker.FailureThreshold)
	}
	if cfg.Cache.MaxEntries != 128 {
		t.Errorf("Cache.MaxEntries = %d, want 128", cfg.Cache.MaxEntries)
	}
	if cfg.Sessions.IdleTTL != time.Hour {
		t.Errorf("Sessions.IdleTTL = %v, want 1h", cfg.Sessions.IdleTTL)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_identity(t *testing.T) {
	_, err := Load("testdata/missing_identity.yaml")
	if err == nil {
		t.Fatal("Load() with missing identity should return error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Builder.HistoryCapacity != 50 {
		t.Errorf("default Builder.HistoryCapacity = %d, want 50", cfg.Builder.HistoryCapacity)
	}
	if cfg.Builder.PreviewRowLimit != 100 {
		t.Errorf("default Builder.PreviewRowLimit = %d, want 100", cfg.Builder.PreviewRowLimit)
	}
	if cfg.Builder.DefaultRefreshInterval != 30*time.Second {
		t.Errorf("default Builder.DefaultRefreshInterval = %v, want 30s", cfg.Builder.DefaultRefreshInterval)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("default Cache.Driver = %q, want memory", cfg.Cache.Driver)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REPORTDECK_SERVER_PORT", "3000")
	t.Setenv("REPORTDECK_IDENTITY_ISSUER", "https://env-issuer.com")
	t.Setenv("REPORTDECK_IDENTITY_JWKS_URL", "https://env-issuer.com/.well-known/jwks.json")
	t.Setenv("REPORTDECK_IDENTITY_AUDIENCE", "env-audience")
	t.Setenv("REPORTDECK_IDENTITY_REQUIRED_ROLE", "report_user")
	t.Setenv("REPORTDECK_OBSERVABILITY_LOG_LEVEL", "error")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 (env override)", cfg.Server.Port)
	}
	if cfg.Identity.Issuer != "https://env-issuer.com" {
		t.Errorf("Identity.Issuer = %q, want env override", cfg.Identity.Issuer)
	}
	if cfg.Identity.Audience != "env-audience" {
		t.Errorf("Identity.Audience = %q, want env override", cfg.Identity.Audience)
	}
	if cfg.Identity.RequiredRole != "report_user" {
		t.Errorf("Identity.RequiredRole = %q, want env override", cfg.Identity.RequiredRole)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
}

func TestValidate_invalid_port(t *testing.T) {
	cfg := validTestConfig()
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with port 0 should return error")
	}
}

func TestValidate_bad_cache_driver(t *testing.T) {
	cfg := validTestConfig()
	cfg.Cache.Driver = "memcached"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with unsupported cache driver should return error")
	}
}

func TestValidate_bad_session_driver(t *testing.T) {
	cfg := validTestConfig()
	cfg.Sessions.Store.Driver = "mysql"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with unsupported session store driver should return error")
	}
}

func TestValidate_refresh_interval_too_small(t *testing.T) {
	cfg := validTestConfig()
	cfg.Builder.DefaultRefreshInterval = 500 * time.Millisecond

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with sub-second refresh interval should return error")
	}
}

func TestLoad_env_priority_over_file(t *testing.T) {
	// File sets port 9090, env sets 5555 - env wins.
	t.Setenv("REPORTDECK_SERVER_PORT", "5555")
	_ = os.Setenv("REPORTDECK_IDENTITY_ISSUER", "")
	_ = os.Setenv("REPORTDECK_IDENTITY_JWKS_URL", "")
	_ = os.Setenv("REPORTDECK_IDENTITY_AUDIENCE", "")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 5555 {
		t.Errorf("Server.Port = %d, want 5555 (env override beats file)", cfg.Server.Port)
	}
}

func validTestConfig() *Config {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.JWKSURL = "https://auth.example.com/.well-known/jwks.json"
	cfg.Identity.Audience = "reportdeck"
	cfg.Gateway.BaseURL = "https://erp.internal"
	return cfg
}
