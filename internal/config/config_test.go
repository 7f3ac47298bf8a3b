package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPath_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TREASURY_ADDRESS", "treasury")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Chain.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v", cfg.Chain.Timeout)
	}
	if cfg.Oracle.RatePath != "solana.usd" {
		t.Fatalf("rate path = %q", cfg.Oracle.RatePath)
	}
	if cfg.Season == "" {
		t.Fatal("season not defaulted")
	}
	if cfg.DatabaseDSN != "" {
		t.Fatalf("dsn = %q", cfg.DatabaseDSN)
	}
}

func TestLoadFromPath_FileAndEnvOverride(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TREASURY_ADDRESS", "treasury")
	t.Setenv("SERVER_PORT", "9000")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  host: 127.0.0.1
  port: 8080
chain:
  rpc_url: http://localhost:8899
season: season-override
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("host = %q", cfg.Server.Host)
	}
	// Environment wins over the file.
	if cfg.Server.Port != 9000 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Chain.RPCURL != "http://localhost:8899" {
		t.Fatalf("rpc url = %q", cfg.Chain.RPCURL)
	}
	if cfg.Season != "season-override" {
		t.Fatalf("season = %q", cfg.Season)
	}
}

func TestLoadFromPath_RequiredValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("TREASURY_ADDRESS", "")

	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error without JWT secret")
	}

	t.Setenv("JWT_SECRET", "secret")
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error without treasury")
	}
}

func TestLoadFromPath_MalformedFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TREASURY_ADDRESS", "treasury")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected parse error")
	}
}
