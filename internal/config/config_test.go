package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.ListenAddr() != "127.0.0.1:37710" {
		t.Errorf("listen addr = %q, want 127.0.0.1:37710", cfg.ListenAddr())
	}
	if cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("embedding model = %q", cfg.Embedding.Model)
	}
	if cfg.Forget.MaxFacts != 1000 {
		t.Errorf("max facts = %d, want 1000", cfg.Forget.MaxFacts)
	}
	if cfg.Forget.MergeThreshold != 0.95 {
		t.Errorf("merge threshold = %v, want 0.95", cfg.Forget.MergeThreshold)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/engram.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 37710 {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Forget.DecayRate != 0.033 {
		t.Errorf("decay rate = %v, want default", cfg.Forget.DecayRate)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.toml")
	content := `
[server]
port = 9000

[forget]
max_facts = 50
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Forget.MaxFacts != 50 {
		t.Errorf("max facts = %d, want 50", cfg.Forget.MaxFacts)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("bind = %q, want default", cfg.Server.Bind)
	}
	if cfg.Forget.RetentionDays != 90 {
		t.Errorf("retention = %d, want default", cfg.Forget.RetentionDays)
	}
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	os.WriteFile(path, []byte("not [valid toml"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config")
	}
}
