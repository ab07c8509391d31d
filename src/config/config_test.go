package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Ledger.Backend != "memory" || cfg.Index.Backend != "memory" {
		t.Fatalf("unexpected backends %q %q", cfg.Ledger.Backend, cfg.Index.Backend)
	}
	if cfg.Index.PreferenceIndex != "user-preference-vector" || cfg.Index.Domains.Domain("product") != "products-list" {
		t.Fatalf("unexpected index names %+v", cfg.Index)
	}
	if cfg.Recommend.BaseDomain != 3 || cfg.Recommend.OtherCollective != 3 {
		t.Fatalf("unexpected mix %+v", cfg.Recommend)
	}
	if cfg.Timeouts.External != 10*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Timeouts.External)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prefs.yaml")
	body := `
ledger:
  backend: sqlite
  dsn: file:prefs.db
embed:
  provider: ollama
  model: all-minilm
timeouts:
  external: 3s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PREFS_EMBED__MODEL", "nomic-embed-text")
	t.Setenv("PREFS_RECOMMEND__BASE_DOMAIN", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Ledger.Backend != "sqlite" || cfg.Ledger.DSN != "file:prefs.db" {
		t.Fatalf("file layer not applied: %+v", cfg.Ledger)
	}
	if cfg.Embed.Provider != "ollama" || cfg.Embed.Model != "nomic-embed-text" {
		t.Fatalf("env layer not applied: %+v", cfg.Embed)
	}
	if cfg.Recommend.BaseDomain != 4 {
		t.Fatalf("expected env override of base_domain, got %d", cfg.Recommend.BaseDomain)
	}
	if cfg.Timeouts.External != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %v", cfg.Timeouts.External)
	}
	if cfg.Index.Domains.Movie != "movies-list" {
		t.Fatalf("defaults lost under file layer: %+v", cfg.Index.Domains)
	}
}

func TestValidateRejectsMissingDSN(t *testing.T) {
	cfg := Default()
	cfg.Ledger.Backend = "postgres"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DSN") {
		t.Fatalf("expected DSN validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.Embed.Provider = "voyage"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown provider to fail validation")
	}
}

func TestValidateAcceptsProviderAliases(t *testing.T) {
	for _, p := range []string{"dummy", "fastembed", "openai", "ollama", "vertex", "gemini", "google"} {
		cfg := Default()
		cfg.Embed.Provider = p
		if err := cfg.Validate(); err != nil {
			t.Errorf("provider %q: %v", p, err)
		}
	}
}

func TestEnvKey(t *testing.T) {
	cases := map[string]string{
		"PREFS_LEDGER__BACKEND":     "ledger.backend",
		"PREFS_INDEX__API_KEY":      "index.api_key",
		"PREFS_LEDGER__NEO4J__USER": "ledger.neo4j.user",
		"PREFS_CONFIG":              "",
	}
	for in, want := range cases {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
