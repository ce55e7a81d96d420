package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_EmptyPathDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Dataset.URL != DefaultDatasetURL {
		t.Errorf("dataset.url: got %q", cfg.Dataset.URL)
	}
	if cfg.Dataset.TTL != DefaultDatasetTTL {
		t.Errorf("dataset.ttl: got %v, want %v", cfg.Dataset.TTL, DefaultDatasetTTL)
	}
	if cfg.Dashboard.DefaultStart != "2020-01-22" || cfg.Dashboard.DefaultEnd != "2021-12-31" {
		t.Errorf("dashboard defaults: got %+v", cfg.Dashboard)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := writeConfig(t, `dataset:
  path: /data/countries-aggregated.csv
  ttl: 1h
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dataset.Path != "/data/countries-aggregated.csv" {
		t.Errorf("dataset.path: got %q", cfg.Dataset.Path)
	}
	if cfg.Dataset.TTL != time.Hour {
		t.Errorf("dataset.ttl: got %v, want 1h", cfg.Dataset.TTL)
	}
	if cfg.Dataset.Timeout != DefaultFetchTimeout {
		t.Errorf("dataset.timeout: got %v, want %v", cfg.Dataset.Timeout, DefaultFetchTimeout)
	}
	if cfg.Server.RateLimit != DefaultRateLimit {
		t.Errorf("server.rate_limit: got %v, want %v", cfg.Server.RateLimit, DefaultRateLimit)
	}
}

func TestLoad_Full(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  cors_origins: ["http://localhost:3000"]
  rate_limit: 0
dataset:
  url: http://example.test/data.csv
  timeout: 5s
dashboard:
  default_start: "2021-01-01"
  default_end: "2021-06-30"
log:
  level: debug
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", cfg.Server.HTTPPort)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("cors_origins: got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.RateLimit != 0 {
		t.Errorf("rate_limit: got %v, want 0", cfg.Server.RateLimit)
	}
	if cfg.Dataset.Timeout != 5*time.Second {
		t.Errorf("timeout: got %v, want 5s", cfg.Dataset.Timeout)
	}
	if cfg.Log.Lvl() != log.DEBUG {
		t.Errorf("log level: got %v, want DEBUG", cfg.Log.Lvl())
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"port":       "server:\n  http_port: 70000\n",
		"rate":       "server:\n  rate_limit: -1\n",
		"no source":  "dataset:\n  url: \"\"\n",
		"ttl":        "dataset:\n  ttl: -1m\n",
		"timeout":    "dataset:\n  timeout: 0s\n",
		"start date": "dashboard:\n  default_start: 22/01/2020\n",
		"log level":  "log:\n  level: chatty\n",
		"yaml":       "server: [\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
