package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/textstats/frequency"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Stats.Limit != 50 {
		t.Errorf("Stats.Limit = %d, want 50", cfg.Stats.Limit)
	}
	if cfg.Stats.Vectorizer.IDF != frequency.IDFSmooth || cfg.Stats.Vectorizer.Norm != frequency.NormL2 {
		t.Errorf("unexpected vectorizer defaults: %+v", cfg.Stats.Vectorizer)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
server:
  port: 9000
  writeTimeout: 5s
database:
  driver: sqlite3
  path: /tmp/docstats.db
stats:
  limit: 25
  vectorizer:
    idf: raw
    norm: none
redis:
  enabled: true
  cacheTTL: 90s
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DS_SERVER_PORT", "9100")
	t.Setenv("DS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("env override not applied: port = %d", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v", cfg.Server.WriteTimeout)
	}
	if cfg.Database.DSN() != "/tmp/docstats.db" {
		t.Errorf("sqlite DSN = %q", cfg.Database.DSN())
	}
	if cfg.Stats.Limit != 25 || cfg.Stats.Vectorizer.IDF != frequency.IDFRaw || cfg.Stats.Vectorizer.Norm != frequency.NormNone {
		t.Errorf("unexpected stats config: %+v", cfg.Stats)
	}
	if !cfg.Redis.Enabled || cfg.Redis.CacheTTL != 90*time.Second {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"sqlite without path", func(c *Config) { c.Database.Driver = "sqlite3" }},
		{"zero limit", func(c *Config) { c.Stats.Limit = 0 }},
		{"bad idf", func(c *Config) { c.Stats.Vectorizer.IDF = "bm25" }},
		{"bad norm", func(c *Config) { c.Stats.Vectorizer.Norm = "l1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	d := defaultConfig().Database
	want := "host=localhost port=5432 user=docstats password=localdev dbname=docstats sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
