package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/logging"
	"github.com/ghalamif/QShield/internal/ports"
)

type Config struct {
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Model       ModelConfig       `yaml:"model"`
	Simulator   SimulatorConfig   `yaml:"simulator"`
	RealBackend RealBackendConfig `yaml:"real_backend"`
	Policy      ports.Policy      `yaml:"policy"`
	Journal     JournalConfig     `yaml:"journal"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	HTTP        HTTPConfig        `yaml:"http"`
	Log         logging.Config    `yaml:"log"`
}

type ClassifierConfig struct {
	Backend      string `yaml:"backend"` // "simulated" or "real"
	Shots        int    `yaml:"shots"`
	Encoding     string `yaml:"encoding"` // "aggregate" or "record"
	FeatureWidth int    `yaml:"feature_width"`
}

// ModelConfig locates the model bundle: a Redis key when RedisAddr is set,
// otherwise the JSON file at Path.
type ModelConfig struct {
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

type SimulatorConfig struct {
	Mode string `yaml:"mode"` // "expected" or "sampled"
}

type RealBackendConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

type PostgresConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads an optional .env file into the process environment, then the
// YAML file at path (skipped when path is empty), then applies environment
// overrides, defaults and validation.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup and no .env file.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration without reading any file or
// environment variable.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}

	if v, ok := lookup("USE_REAL_DEVICE"); ok && strings.EqualFold(strings.TrimSpace(v), "true") {
		c.Classifier.Backend = "real"
	}
	str(&c.Classifier.Backend, "QSHIELD_BACKEND")
	str(&c.Classifier.Encoding, "QSHIELD_ENCODING")
	str(&c.Simulator.Mode, "QSHIELD_SIM_MODE")

	if dir, ok := lookup("MODEL_DIR"); ok && dir != "" {
		name := "quantum_model_params.json"
		str(&name, "DEFAULT_MODEL")
		c.Model.Path = filepath.Join(dir, name)
	}
	str(&c.Model.Path, "QSHIELD_MODEL_PATH")
	str(&c.Model.RedisAddr, "QSHIELD_REDIS_ADDR")
	str(&c.Model.RedisKey, "QSHIELD_REDIS_KEY")

	str(&c.RealBackend.Endpoint, "QSHIELD_REAL_ENDPOINT")
	str(&c.RealBackend.Token, "QSHIELD_REAL_TOKEN", "IBMQ_API_KEY")

	str(&c.Journal.Dir, "QSHIELD_JOURNAL_DIR")
	str(&c.Postgres.ConnString, "QSHIELD_POSTGRES_DSN")
	str(&c.Kafka.Topic, "QSHIELD_KAFKA_TOPIC")
	str(&c.Metrics.Addr, "QSHIELD_METRICS_ADDR")
	str(&c.HTTP.Addr, "QSHIELD_HTTP_ADDR")
	str(&c.Log.Level, "QSHIELD_LOG_LEVEL")

	var brokers string
	str(&brokers, "QSHIELD_KAFKA_BROKERS")
	if brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}

	if v, ok := lookup("QSHIELD_SHOTS"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("QSHIELD_SHOTS: %w", err)
		}
		c.Classifier.Shots = n
	}
	if v, ok := lookup("QSHIELD_REAL_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("QSHIELD_REAL_TIMEOUT: %w", err)
		}
		c.RealBackend.Timeout = d
	}
	if v, ok := lookup("QSHIELD_LOG_PRETTY"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("QSHIELD_LOG_PRETTY: %w", err)
		}
		c.Log.Pretty = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Classifier.Backend == "" {
		c.Classifier.Backend = "simulated"
	}
	if c.Classifier.Shots == 0 {
		c.Classifier.Shots = 1024
	}
	if c.Classifier.Encoding == "" {
		c.Classifier.Encoding = "aggregate"
	}
	if c.Classifier.FeatureWidth == 0 {
		c.Classifier.FeatureWidth = 4
	}
	if c.Model.Path == "" {
		c.Model.Path = "./models/quantum_model_params.json"
	}
	if c.Simulator.Mode == "" {
		c.Simulator.Mode = "expected"
	}
	if c.RealBackend.Timeout == 0 {
		c.RealBackend.Timeout = 30 * time.Second
	}
	if c.Policy.MaxWALSizeBytes == 0 {
		c.Policy.MaxWALSizeBytes = 1 << 30
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 64
	}
	if c.Policy.Workers == 0 {
		c.Policy.Workers = 4
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Policy.OnWALFull == "" {
		c.Policy.OnWALFull = "block"
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = "threat_decisions"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "qshield.decisions"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	var errs []error

	switch c.Classifier.Backend {
	case "simulated":
	case "real":
		if c.RealBackend.Endpoint == "" {
			errs = append(errs, fmt.Errorf("real_backend.endpoint is required when classifier.backend is real"))
		}
	default:
		errs = append(errs, fmt.Errorf("classifier.backend must be simulated or real, got %q", c.Classifier.Backend))
	}
	if c.Classifier.Shots <= 0 {
		errs = append(errs, fmt.Errorf("classifier.shots: %w", domain.ErrInvalidShots))
	}
	if c.Classifier.Encoding != "aggregate" && c.Classifier.Encoding != "record" {
		errs = append(errs, fmt.Errorf("classifier.encoding must be aggregate or record, got %q", c.Classifier.Encoding))
	}
	if c.Classifier.FeatureWidth <= 0 {
		errs = append(errs, fmt.Errorf("classifier.feature_width must be > 0"))
	}
	if c.Simulator.Mode != "expected" && c.Simulator.Mode != "sampled" {
		errs = append(errs, fmt.Errorf("simulator.mode must be expected or sampled, got %q", c.Simulator.Mode))
	}
	if c.RealBackend.Timeout < 0 || c.RealBackend.Retries < 0 {
		errs = append(errs, fmt.Errorf("real_backend.timeout and real_backend.retries must not be negative"))
	}
	if c.Policy.MaxQueueLen <= 0 {
		errs = append(errs, fmt.Errorf("policy.max_queue_len must be > 0"))
	}
	if c.Policy.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("policy.max_batch_size must be > 0"))
	}
	if c.Policy.Workers <= 0 {
		errs = append(errs, fmt.Errorf("policy.workers must be > 0"))
	}
	switch c.Policy.OnQueueFull {
	case "block", "drop", "reject":
	default:
		errs = append(errs, fmt.Errorf("policy.on_queue_full must be block, drop or reject, got %q", c.Policy.OnQueueFull))
	}
	switch c.Policy.OnWALFull {
	case "block", "drop":
	default:
		errs = append(errs, fmt.Errorf("policy.on_wal_full must be block or drop, got %q", c.Policy.OnWALFull))
	}
	if c.Journal.Dir == "" {
		errs = append(errs, fmt.Errorf("journal.dir is required"))
	}
	return errors.Join(errs...)
}

// Validate re-checks a configuration that was built or modified in code.
func (c *Config) Validate() error {
	c.applyDefaults()
	return c.validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
