package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/jmylchreest/distill/pkg/keypool"
	"github.com/jmylchreest/distill/pkg/quota"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Extract.Resource != quota.DefaultResource {
		t.Errorf("expected resource %s, got %s", quota.DefaultResource, cfg.Extract.Resource)
	}
	if cfg.Extract.MaxWorkers != 15 || cfg.Extract.MaxAttempts != 5 {
		t.Errorf("unexpected extract defaults %+v", cfg.Extract)
	}
	if cfg.Usage.Driver != "sqlite" {
		t.Errorf("expected sqlite usage store, got %s", cfg.Usage.Driver)
	}
	if cfg.Credentials.Source != SourceStore {
		t.Errorf("expected store credentials, got %s", cfg.Credentials.Source)
	}
}

func TestSetup_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "distill.yaml")
	content := `usage:
  driver: memory
extract:
  resource: gemma-3-27b
  max_workers: 4
  backoff: 5s
credentials:
  source: file
  file: keys.yaml
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISTILL_EXTRACT_MAX_DEPTH", "3")
	t.Setenv("DISTILL_LOG_LEVEL", "debug")

	v := viper.New()
	if err := Setup(v, path); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Usage.Driver != "memory" {
		t.Errorf("expected memory driver, got %s", cfg.Usage.Driver)
	}
	if cfg.Extract.Resource != "gemma-3-27b" || cfg.Extract.MaxWorkers != 4 {
		t.Errorf("unexpected extract config %+v", cfg.Extract)
	}
	if cfg.Extract.Backoff != 5*time.Second {
		t.Errorf("expected 5s backoff, got %v", cfg.Extract.Backoff)
	}
	if cfg.Extract.MaxDepth != 3 {
		t.Errorf("expected env max depth 3, got %d", cfg.Extract.MaxDepth)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected env log level debug, got %q", cfg.Log.Level)
	}
	if cfg.Credentials.File != "keys.yaml" {
		t.Errorf("expected keys.yaml, got %q", cfg.Credentials.File)
	}
}

func TestSetup_MissingExplicitFile(t *testing.T) {
	v := viper.New()
	if err := Setup(v, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"bad usage driver", func(c *Config) { c.Usage.Driver = "mongo" }, "Driver"},
		{"file source without file", func(c *Config) { c.Credentials.Source = SourceFile }, "File"},
		{"zero workers", func(c *Config) { c.Extract.MaxWorkers = 0 }, "MaxWorkers"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "Level"},
		{"bad base url", func(c *Config) { c.Provider.BaseURL = "not a url" }, "BaseURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resources.yaml")
	content := `resources:
  - id: local-llama
    model: llama3.2
    provider: ollama
    tier: free
    limits: {rpm: 600, tpm: 1000000, rpd: 100000}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.ResourcesFile = path
	cfg.Extract.Resource = "local-llama"

	catalog, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if p, ok := catalog.Lookup("local-llama"); !ok || p.Provider != "ollama" {
		t.Errorf("expected local-llama override, got %+v", p)
	}

	cfg.Extract.Resource = "missing"
	if _, err := cfg.Catalog(); !errors.Is(err, keypool.ErrUnknownResource) {
		t.Errorf("expected ErrUnknownResource, got %v", err)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DISTILL_TEST_LOADENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISTILL_TEST_LOADENV", "")
	os.Unsetenv("DISTILL_TEST_LOADENV")

	got, err := LoadEnv(filepath.Join(dir, "missing.env"), path)
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got != path {
		t.Errorf("expected %s, got %s", path, got)
	}
	if v := os.Getenv("DISTILL_TEST_LOADENV"); v != "from-file" {
		t.Errorf("expected from-file, got %q", v)
	}

	none, err := LoadEnv(filepath.Join(dir, "missing.env"))
	if err != nil || none != "" {
		t.Errorf("expected no file loaded, got %q, %v", none, err)
	}
}
