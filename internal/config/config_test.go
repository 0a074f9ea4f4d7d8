package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/itemflow.db")
	if cfg.Database.Path != "/tmp/itemflow.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Server.APIEndpoint != "/api/v1" || cfg.Server.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected endpoints %q %q", cfg.Server.APIEndpoint, cfg.Server.MCPEndpoint)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins %#v", cfg.Server.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	backoff, err := cfg.Fanout.Backoff()
	if err != nil || backoff != 100*time.Millisecond {
		t.Fatalf("unexpected fanout backoff %v err %v", backoff, err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/itemflow.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/custom/itemflow.db"

[server]
http_bind = "0.0.0.0:9090"
cors_origins = ["https://boards.example.com"]

[fanout]
lanes = 8
retry_backoff = "2s"

[engine]
commit_retries = 0

[logging]
level = "debug"

[logging.dev_file]
enabled = true
dir = "/tmp/logs"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/itemflow.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Server.HTTPBind != "0.0.0.0:9090" {
		t.Fatalf("unexpected bind %q", cfg.Server.HTTPBind)
	}
	if cfg.Server.APIEndpoint != "/api/v1" {
		t.Fatalf("expected default api endpoint to survive, got %q", cfg.Server.APIEndpoint)
	}
	if cfg.Fanout.Lanes != 8 || cfg.Fanout.QueueSize != 256 {
		t.Fatalf("unexpected fanout %#v", cfg.Fanout)
	}
	if cfg.Engine.CommitRetries != 0 {
		t.Fatalf("expected commit retries override, got %d", cfg.Engine.CommitRetries)
	}
	if !cfg.Logging.DevFile.Enabled || cfg.Logging.DevFile.Dir != "/tmp/logs" {
		t.Fatalf("unexpected dev file config %#v", cfg.Logging.DevFile)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"lanes":    "[fanout]\nlanes = 0\n",
		"backoff":  "[fanout]\nretry_backoff = \"soon\"\n",
		"level":    "[logging]\nlevel = \"chatty\"\n",
		"endpoint": "[server]\napi_endpoint = \"api\"\n",
		"origin":   "[server]\ncors_origins = [\"localhost\"]\n",
		"retries":  "[engine]\ncommit_retries = -1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := Load(path, Default("/tmp/default.db")); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}
