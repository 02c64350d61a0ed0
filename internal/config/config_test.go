package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, 10000.0, cfg.Detection.AmountThreshold)
	assert.Equal(t, 5, cfg.Detection.VelocityThreshold)
	assert.Equal(t, time.Hour, cfg.Detection.VelocityWindow)
	assert.Equal(t, 3.0, cfg.Detection.ZScoreThreshold)
	assert.Equal(t, 0.7, cfg.Detection.FraudThreshold)
	assert.Equal(t, DefaultWeights(), cfg.Detection.Weights)
	assert.Zero(t, cfg.History.Retention)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "txguard.yaml", `
detection:
  amount_threshold: 500
  velocity_threshold: 2
  velocity_window: 30m
  high_risk_countries: [XX]
  suspicious_ips: [1.2.3.4]
history:
  retention: 2h
pipeline:
  workers: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500.0, cfg.Detection.AmountThreshold)
	assert.Equal(t, 2, cfg.Detection.VelocityThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Detection.VelocityWindow)
	assert.Equal(t, 2*time.Hour, cfg.History.Retention)
	assert.Equal(t, []string{"XX"}, cfg.Detection.HighRiskCountries)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	// untouched sections keep their defaults
	assert.Equal(t, 0.7, cfg.Detection.FraudThreshold)
	assert.Equal(t, 256, cfg.Pipeline.WorkerQueue)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "txguard.json", `{"detection": {"amount_threshold": 250, "velocity_window": 60000000000}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.Detection.AmountThreshold)
	assert.Equal(t, time.Minute, cfg.Detection.VelocityWindow)
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	_, err := Load(writeFile(t, "empty.yaml", "  \n"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://txguard@localhost/txguard")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg := DefaultConfig()
	ApplyEnv(cfg)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Ingest.Kafka.Brokers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Publish.Brokers)
	assert.Equal(t, "redis:6379", cfg.Reputation.RedisAddr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero amount threshold", func(c *Config) { c.Detection.AmountThreshold = 0 }},
		{"negative velocity threshold", func(c *Config) { c.Detection.VelocityThreshold = -1 }},
		{"fraud threshold above one", func(c *Config) { c.Detection.FraudThreshold = 1.5 }},
		{"negative weight", func(c *Config) { c.Detection.Weights.SuspiciousIP = -0.1 }},
		{"retention inside velocity window", func(c *Config) { c.History.Retention = 30 * time.Minute }},
		{"kafka without topic", func(c *Config) {
			c.Ingest.Kafka.Enabled = true
			c.Ingest.Kafka.Brokers = []string{"k1:9092"}
		}},
		{"publish without brokers", func(c *Config) { c.Publish.Enabled = true }},
		{"unknown storage driver", func(c *Config) {
			c.Storage.Enabled = true
			c.Storage.Driver = "mysql"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestManagerUpdatePersists(t *testing.T) {
	path := writeFile(t, "txguard.yaml", "detection:\n  amount_threshold: 100\n")
	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.Get().Detection.AmountThreshold)

	next := *m.Get()
	next.Detection.HighRiskCountries = []string{"XX", "YY"}
	require.NoError(t, m.Update(&next))
	assert.Equal(t, []string{"XX", "YY"}, m.Get().Detection.HighRiskCountries)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"XX", "YY"}, reloaded.Detection.HighRiskCountries)
	assert.Equal(t, time.Hour, reloaded.Detection.VelocityWindow)
}

func TestManagerUpdateRejectsInvalid(t *testing.T) {
	m := NewStaticManager(DefaultConfig())
	bad := *m.Get()
	bad.Detection.AmountThreshold = -1
	assert.Error(t, m.Update(&bad))
	assert.Equal(t, 10000.0, m.Get().Detection.AmountThreshold)
}

func TestStaticManagerNeverReloads(t *testing.T) {
	m := NewStaticManager(DefaultConfig())
	needs, err := m.NeedsReload()
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestManagerUpdateListsKeepsEnvOutOfFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://txguard:s3cret@db/txguard")
	path := writeFile(t, "txguard.yaml", "detection:\n  amount_threshold: 100\n")
	m, err := NewManager(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://txguard:s3cret@db/txguard", m.Get().Storage.DSN)

	next, err := m.UpdateLists([]string{"6.6.6.6"}, []string{"XX"})
	require.NoError(t, err)
	assert.Equal(t, []string{"XX"}, next.Detection.HighRiskCountries)
	assert.Equal(t, next, m.Get())
	assert.Equal(t, "postgres://txguard:s3cret@db/txguard", m.Get().Storage.DSN)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")

	onDisk, err := decodeFile(path)
	require.NoError(t, err)
	assert.False(t, onDisk.Storage.Enabled)
	assert.Equal(t, 100.0, onDisk.Detection.AmountThreshold)
	assert.Equal(t, []string{"6.6.6.6"}, onDisk.Detection.SuspiciousIPs)
	assert.Equal(t, []string{"XX"}, onDisk.Detection.HighRiskCountries)
}
