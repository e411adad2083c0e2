package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Backend.Kind != "sqlite" {
		t.Errorf("Backend.Kind = %q, want %q", cfg.Backend.Kind, "sqlite")
	}
	if cfg.Backend.Name != "syncgate" {
		t.Errorf("Backend.Name = %q, want %q", cfg.Backend.Name, "syncgate")
	}
	if cfg.Backend.Host != "localhost" {
		t.Errorf("Backend.Host = %q, want %q", cfg.Backend.Host, "localhost")
	}
	if cfg.API.Host != "0.0.0.0" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "0.0.0.0")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
	if len(cfg.API.CORS.AllowedOrigins) != 1 || cfg.API.CORS.AllowedOrigins[0] != "*" {
		t.Errorf("CORS.AllowedOrigins = %v, want [*]", cfg.API.CORS.AllowedOrigins)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
backend:
  kind: sqlite
  name: pkm_app
api:
  port: 9090
session:
  ttl: 60
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Backend.Name != "pkm_app" {
		t.Errorf("Backend.Name = %q, want %q", cfg.Backend.Name, "pkm_app")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Session.TTL != 60 {
		t.Errorf("Session.TTL = %d, want 60", cfg.Session.TTL)
	}
	// Unset file values keep defaults
	if cfg.API.Host != "0.0.0.0" {
		t.Errorf("API.Host = %q, want default", cfg.API.Host)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  name: from_file\n"), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	t.Setenv("SYNCGATE_BACKEND_NAME", "from_env")
	t.Setenv("SYNCGATE_API_PORT", "7001")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Backend.Name != "from_env" {
		t.Errorf("Backend.Name = %q, want %q", cfg.Backend.Name, "from_env")
	}
	if cfg.API.Port != 7001 {
		t.Errorf("API.Port = %d, want 7001", cfg.API.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "unsupported backend kind",
			mutate:  func(c *Config) { c.Backend.Kind = "mongo" },
			wantErr: true,
		},
		{
			name:    "empty backend name",
			mutate:  func(c *Config) { c.Backend.Name = "" },
			wantErr: true,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "session ttl too small",
			mutate:  func(c *Config) { c.Session.TTL = 0 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
