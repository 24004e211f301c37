package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval() != 3*time.Second {
		t.Errorf("poll interval = %v", cfg.PollInterval())
	}
	if cfg.MarkerTTL() != 5*time.Minute {
		t.Errorf("marker ttl = %v", cfg.MarkerTTL())
	}
	if cfg.Marker.Driver != "file" {
		t.Errorf("driver = %q", cfg.Marker.Driver)
	}
}

func TestLoad_JSON5(t *testing.T) {
	path := writeFile(t, "config.json5", `{
		// comments and trailing commas are fine
		backend: { url: "https://bot.example.com", timeoutSeconds: 5, },
		poll: { intervalMs: 1500 },
		marker: { driver: "sqlite", path: "/tmp/pairlink.db", ttlSeconds: 600 },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.URL != "https://bot.example.com" || cfg.BackendTimeout() != 5*time.Second {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.PollInterval() != 1500*time.Millisecond {
		t.Errorf("poll = %v", cfg.PollInterval())
	}
	if cfg.Marker.Driver != "sqlite" || cfg.MarkerTTL() != 10*time.Minute {
		t.Errorf("marker = %+v", cfg.Marker)
	}
	// Unset fields keep defaults.
	if cfg.Server.Port != 18791 {
		t.Errorf("server port = %d", cfg.Server.Port)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
backend:
  url: http://10.0.0.5:4098
phone:
  defaultPrefix: "+44"
log:
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.URL != "http://10.0.0.5:4098" || cfg.Phone.DefaultPrefix != "+44" || cfg.Log.Format != "json" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PAIRLINK_BACKEND_URL", "http://override:1")
	t.Setenv("PAIRLINK_POLL_INTERVAL_MS", "250")
	t.Setenv("PAIRLINK_MARKER_TTL_SECONDS", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.URL != "http://override:1" {
		t.Errorf("url = %q", cfg.Backend.URL)
	}
	if cfg.PollInterval() != 250*time.Millisecond {
		t.Errorf("poll = %v", cfg.PollInterval())
	}
	if cfg.Marker.TTLSeconds != 300 {
		t.Errorf("invalid env int should be ignored, ttl = %d", cfg.Marker.TTLSeconds)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", `{ backend: `, "parse"},
		{"driver", `{ marker: { driver: "etcd" } }`, "unknown driver"},
		{"redis_without_url", `{ marker: { driver: "redis" } }`, "redisUrl"},
		{"postgres_without_dsn", `{ marker: { driver: "postgres" } }`, "postgresDsn"},
		{"log_format", `{ log: { format: "xml" } }`, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.json5", tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.Backend.URL = "https://saved.example.com"
			if err := Save(path, cfg); err != nil {
				t.Fatalf("Save: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if loaded.Backend.URL != cfg.Backend.URL {
				t.Errorf("url = %q", loaded.Backend.URL)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/.pairlink/x"); got != filepath.Join(home, ".pairlink/x") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "config.json5", `{ poll: { intervalMs: 1000 } }`)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(10 * time.Millisecond)
	got := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { got <- cfg })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{ poll: { intervalMs: 2000 } }`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if cfg.PollInterval() != 2*time.Second {
			t.Errorf("reloaded interval = %v", cfg.PollInterval())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestMarkerPath(t *testing.T) {
	cfg := Default()
	if !strings.HasSuffix(cfg.MarkerPath(), "state.json") {
		t.Errorf("file default = %q", cfg.MarkerPath())
	}
	cfg.Marker.Driver = "sqlite"
	if !strings.HasSuffix(cfg.MarkerPath(), "state.db") {
		t.Errorf("sqlite default = %q", cfg.MarkerPath())
	}
	cfg.Marker.Path = "/var/lib/pairlink/m.db"
	if cfg.MarkerPath() != "/var/lib/pairlink/m.db" {
		t.Errorf("explicit path = %q", cfg.MarkerPath())
	}
	cfg.Marker.Driver = "postgres"
	if cfg.MarkerPath() != "" {
		t.Errorf("postgres path = %q, want empty", cfg.MarkerPath())
	}
}
