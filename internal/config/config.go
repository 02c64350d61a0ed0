package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	LogFormat  string           `json:"log_format" yaml:"log_format"`
	Detection  DetectionConfig  `json:"detection" yaml:"detection"`
	History    HistoryConfig    `json:"history" yaml:"history"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Reputation ReputationConfig `json:"reputation" yaml:"reputation"`
	Publish    PublishConfig    `json:"publish" yaml:"publish"`
	Alerts     AlertsConfig     `json:"alerts" yaml:"alerts"`
	Tracing    TracingConfig    `json:"tracing" yaml:"tracing"`
}

type DetectionConfig struct {
	AmountThreshold   float64       `json:"amount_threshold" yaml:"amount_threshold"`
	VelocityThreshold int           `json:"velocity_threshold" yaml:"velocity_threshold"`
	VelocityWindow    time.Duration `json:"velocity_window" yaml:"velocity_window"`
	ZScoreThreshold   float64       `json:"zscore_threshold" yaml:"zscore_threshold"`
	FraudThreshold    float64       `json:"fraud_threshold" yaml:"fraud_threshold"`
	HighRiskCountries []string      `json:"high_risk_countries" yaml:"high_risk_countries"`
	SuspiciousIPs     []string      `json:"suspicious_ips" yaml:"suspicious_ips"`
	Weights           WeightsConfig `json:"weights" yaml:"weights"`
}

type WeightsConfig struct {
	HighAmount       float64 `json:"high_amount" yaml:"high_amount"`
	HighVelocity     float64 `json:"high_velocity" yaml:"high_velocity"`
	HighRiskLocation float64 `json:"high_risk_location" yaml:"high_risk_location"`
	SuspiciousIP     float64 `json:"suspicious_ip" yaml:"suspicious_ip"`
	UnusualPattern   float64 `json:"unusual_pattern" yaml:"unusual_pattern"`
}

// HistoryConfig selects the retention policy. A zero Retention keeps every
// transaction for the life of the process.
type HistoryConfig struct {
	Retention time.Duration `json:"retention" yaml:"retention"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type PipelineConfig struct {
	Workers     int `json:"workers" yaml:"workers"`
	WorkerQueue int `json:"worker_queue" yaml:"worker_queue"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type ReputationConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	RedisAddr        string        `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword    string        `json:"redis_password" yaml:"redis_password"`
	RedisDB          int           `json:"redis_db" yaml:"redis_db"`
	SuspiciousIPsKey string        `json:"suspicious_ips_key" yaml:"suspicious_ips_key"`
	CountriesKey     string        `json:"countries_key" yaml:"countries_key"`
	RefreshInterval  time.Duration `json:"refresh_interval" yaml:"refresh_interval"`
}

type PublishConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type TracingConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

func DefaultWeights() WeightsConfig {
	return WeightsConfig{
		HighAmount:       0.4,
		HighVelocity:     0.3,
		HighRiskLocation: 0.3,
		SuspiciousIP:     0.4,
		UnusualPattern:   0.2,
	}
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Detection: DetectionConfig{
			AmountThreshold:   10000,
			VelocityThreshold: 5,
			VelocityWindow:    time.Hour,
			ZScoreThreshold:   3,
			FraudThreshold:    0.7,
			Weights:           DefaultWeights(),
		},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Pipeline: PipelineConfig{Workers: 8, WorkerQueue: 256},
		API:      APIConfig{Enabled: true, Addr: ":8081"},
		Storage:  StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:txguard.db?_pragma=busy_timeout(5000)"},
		Reputation: ReputationConfig{
			Enabled:          false,
			RedisAddr:        "localhost:6379",
			SuspiciousIPsKey: "txguard:suspicious_ips",
			CountriesKey:     "txguard:high_risk_countries",
			RefreshInterval:  time.Minute,
		},
		Publish: PublishConfig{Enabled: false, Topic: "transaction_verdicts"},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile reads path over DefaultConfig without environment overrides.
func decodeFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s: %w", path, decodeErr)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set and otherwise starts from
// DefaultConfig. Environment overrides (including a .env file in the working
// directory) are applied either way.
func LoadOrDefault(path string) (*Config, error) {
	_ = godotenv.Load()
	if path != "" {
		return Load(path)
	}
	cfg := DefaultConfig()
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides deployment-specific settings from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.Enabled = true
		cfg.Storage.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			cfg.Storage.Driver = "postgres"
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Reputation.RedisAddr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers := splitList(v)
		cfg.Ingest.Kafka.Brokers = brokers
		cfg.Publish.Brokers = brokers
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Detection.VelocityWindow <= 0 {
		cfg.Detection.VelocityWindow = time.Hour
	}
	if cfg.Detection.ZScoreThreshold <= 0 {
		cfg.Detection.ZScoreThreshold = 3
	}
	if cfg.Detection.FraudThreshold <= 0 {
		cfg.Detection.FraudThreshold = 0.7
	}
	if cfg.Detection.Weights == (WeightsConfig{}) {
		cfg.Detection.Weights = DefaultWeights()
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 8
	}
	if cfg.Pipeline.WorkerQueue <= 0 {
		cfg.Pipeline.WorkerQueue = 256
	}
	if cfg.Reputation.RefreshInterval <= 0 {
		cfg.Reputation.RefreshInterval = time.Minute
	}
	if cfg.Publish.Topic == "" {
		cfg.Publish.Topic = "transaction_verdicts"
	}
}

func Validate(cfg *Config) error {
	if cfg.Detection.AmountThreshold <= 0 {
		return errors.New("detection.amount_threshold must be > 0")
	}
	if cfg.Detection.VelocityThreshold < 0 {
		return errors.New("detection.velocity_threshold must be >= 0")
	}
	if cfg.Detection.VelocityWindow <= 0 {
		return fmt.Errorf("detection.velocity_window must be positive: %s", cfg.Detection.VelocityWindow)
	}
	if cfg.Detection.FraudThreshold > 1 {
		return errors.New("detection.fraud_threshold must be <= 1")
	}
	w := cfg.Detection.Weights
	for name, v := range map[string]float64{
		"high_amount":        w.HighAmount,
		"high_velocity":      w.HighVelocity,
		"high_risk_location": w.HighRiskLocation,
		"suspicious_ip":      w.SuspiciousIP,
		"unusual_pattern":    w.UnusualPattern,
	} {
		if v < 0 {
			return fmt.Errorf("detection.weights.%s must be >= 0", name)
		}
	}
	if cfg.History.Retention < 0 {
		return errors.New("history.retention must be >= 0")
	}
	if cfg.History.Retention > 0 && cfg.History.Retention <= cfg.Detection.VelocityWindow {
		return errors.New("history.retention must exceed detection.velocity_window")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Publish.Enabled && len(cfg.Publish.Brokers) == 0 {
		return errors.New("publish.brokers required when publish.enabled is true")
	}
	if cfg.Reputation.Enabled && cfg.Reputation.RedisAddr == "" {
		return errors.New("reputation.redis_addr required when reputation.enabled is true")
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if path != "" {
		if info, err := os.Stat(path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

// Update validates cfg, persists it as given when the manager is file-backed,
// and makes it current.
func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if m.path != "" {
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return nil
}

// UpdateLists replaces the detection lists and makes the result current.
// Only the lists are written back to the file; environment overrides stay out
// of it.
func (m *Manager) UpdateLists(ips, countries []string) (*Config, error) {
	next := *m.Get()
	next.Detection.SuspiciousIPs = ips
	next.Detection.HighRiskCountries = countries
	if err := Validate(&next); err != nil {
		return nil, err
	}
	if m.path != "" {
		onDisk, err := decodeFile(m.path)
		if err != nil {
			return nil, err
		}
		onDisk.Detection.SuspiciousIPs = ips
		onDisk.Detection.HighRiskCountries = countries
		if err := Save(m.path, onDisk); err != nil {
			return nil, err
		}
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	m.cfg.Store(&next)
	return &next, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
