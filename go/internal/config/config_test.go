package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Canvas.Width != 100 || cfg.Canvas.Height != 100 {
		t.Errorf("grid = %dx%d, want 100x100", cfg.Canvas.Width, cfg.Canvas.Height)
	}
	if cfg.Canvas.Cooldown() != 30*time.Second {
		t.Errorf("Cooldown() = %s, want 30s", cfg.Canvas.Cooldown())
	}
	if cfg.Canvas.SessionDuration() != 6*time.Hour {
		t.Errorf("SessionDuration() = %s, want 6h", cfg.Canvas.SessionDuration())
	}
	if len(cfg.Canvas.Palette) != 16 {
		t.Errorf("palette has %d colours, want 16", len(cfg.Canvas.Palette))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate(default) = %v", err)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "canvas.yaml")
	yml := "canvas:\n  width: 64\n  height: 32\n  cooldown_seconds: 5\n  palette: ['#000000', '#FFFFFF']\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CANVAS_CONFIG", path)
	t.Setenv("CANVAS_HEIGHT", "48")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("COOLDOWN_BACKEND", "memory")
	t.Setenv("RECONCILE_INTERVAL", "15s")
	t.Setenv("IN_PROCESS_RECONCILER", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Canvas.Width != 64 {
		t.Errorf("Width = %d, want 64 from file", cfg.Canvas.Width)
	}
	if cfg.Canvas.Height != 48 {
		t.Errorf("Height = %d, want 48 from env", cfg.Canvas.Height)
	}
	if cfg.Canvas.CooldownSeconds != 5 {
		t.Errorf("CooldownSeconds = %d, want 5", cfg.Canvas.CooldownSeconds)
	}
	if cfg.Canvas.SessionDurationSeconds != 6*60*60 {
		t.Errorf("SessionDurationSeconds = %d, want default kept", cfg.Canvas.SessionDurationSeconds)
	}
	if len(cfg.Canvas.Palette) != 2 {
		t.Errorf("palette = %v, want 2 colours", cfg.Canvas.Palette)
	}
	if cfg.ReconcileInterval != 15*time.Second {
		t.Errorf("ReconcileInterval = %s, want 15s", cfg.ReconcileInterval)
	}
	if cfg.InProcessReconciler {
		t.Error("InProcessReconciler = true, want false from env")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CANVAS_CONFIG", "does-not-exist.yaml")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("COOLDOWN_BACKEND", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Canvas.Width != 100 {
		t.Errorf("Width = %d, want default 100", cfg.Canvas.Width)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("canvas: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CANVAS_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("Load() with malformed YAML should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero width", func(c *Config) { c.Canvas.Width = 0 }, true},
		{"negative height", func(c *Config) { c.Canvas.Height = -1 }, true},
		{"zero pixel size", func(c *Config) { c.Canvas.PixelSize = 0 }, true},
		{"zero cooldown", func(c *Config) { c.Canvas.CooldownSeconds = 0 }, true},
		{"zero duration", func(c *Config) { c.Canvas.SessionDurationSeconds = 0 }, true},
		{"zero interval", func(c *Config) { c.ReconcileInterval = 0 }, true},
		{"unknown storage", func(c *Config) { c.StorageBackend = "mysql" }, true},
		{"unknown cooldown", func(c *Config) { c.CooldownBackend = "memcached" }, true},
		{"redis without url", func(c *Config) { c.CooldownBackend = BackendRedis }, true},
		{"redis with url", func(c *Config) {
			c.CooldownBackend = BackendRedis
			c.RedisURL = "redis://localhost:6379/0"
		}, false},
		{"postgres cooldown on memory storage", func(c *Config) { c.StorageBackend = BackendMemory }, true},
		{"all memory", func(c *Config) {
			c.StorageBackend = BackendMemory
			c.CooldownBackend = BackendMemory
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
