// Package config loads and hot-reloads the vault's YAML application
// configuration (C15): logging, audit, metrics, the active key manager,
// the optional resume index, and the set of named backend configurations
// handed to the Backend Directory.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kenneth/discord-file-vault/internal/errs"
)

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	LogLevel        string                    `yaml:"log_level"`
	DefaultChunk    int                       `yaml:"default_chunk_size"`
	Hardware        HardwareConfig            `yaml:"hardware"`
	Audit           AuditConfig               `yaml:"audit"`
	Metrics         MetricsConfig             `yaml:"metrics"`
	Tracing         TracingConfig             `yaml:"tracing"`
	KeyManager      KeyManagerConfig          `yaml:"key_manager"`
	ResumeIndex     ResumeIndexConfig         `yaml:"resume_index"`
	Backends        map[string]BackendConfig  `yaml:"backends"`
}

// TracingConfig selects and configures the OpenTelemetry trace exporter
// backing the Metrics package's exemplars (§4.11).
type TracingConfig struct {
	Exporter    string  `yaml:"exporter"` // "stdout", "jaeger", "otlp", or "none"
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"` // jaeger collector URL or OTLP gRPC target
	SampleRatio float64 `yaml:"sample_ratio"`
}

// HardwareConfig toggles CPU-specific AES acceleration paths.
type HardwareConfig struct {
	EnableAESNI    bool `yaml:"enable_aes_ni"`
	EnableARMv8AES bool `yaml:"enable_armv8_aes"`
}

// AuditConfig configures the audit log sink and redaction rules.
type AuditConfig struct {
	Enabled            bool       `yaml:"enabled"`
	MaxEvents          int        `yaml:"max_events"`
	RedactMetadataKeys []string   `yaml:"redact_metadata_keys"`
	Sink               SinkConfig `yaml:"sink"`
}

// SinkConfig configures where audit events are written.
type SinkConfig struct {
	Type          string            `yaml:"type"` // "stdout", "file", "http"
	FilePath      string            `yaml:"file_path"`
	Endpoint      string            `yaml:"endpoint"`
	Headers       map[string]string `yaml:"headers"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
	RetryCount    int               `yaml:"retry_count"`
	RetryBackoff  time.Duration     `yaml:"retry_backoff"`
}

// MetricsConfig configures the Prometheus metrics surface.
type MetricsConfig struct {
	Enabled            bool `yaml:"enabled"`
	EnableBackendLabel bool `yaml:"enable_backend_label"`
}

// KeyManagerConfig selects and configures the active Key Manager (C9).
type KeyManagerConfig struct {
	Provider string `yaml:"provider"` // "local" or "kmip"

	// local
	MasterSecretEnv string `yaml:"master_secret_env"` // env var holding the master secret

	// kmip
	KMIPAddress string `yaml:"kmip_address"`
	KMIPKeyID   string `yaml:"kmip_key_id"`
}

// ResumeIndexConfig configures the optional Redis-backed resume
// accelerator (C12). A zero-value Address means the index is disabled and
// find_resumable falls back to the Catalog unconditionally.
type ResumeIndexConfig struct {
	Address string        `yaml:"address"`
	TTL     time.Duration `yaml:"ttl"`
}

// BackendConfig is one named entry under `backends:` in the YAML file. It
// mirrors the data model's BackendConfig: a platform tag plus an opaque
// config map that the platform's own validator interprets.
type BackendConfig struct {
	Platform string                 `yaml:"platform"`
	Config   map[string]interface{} `yaml:"config"`
}

// Load reads and parses path into an AppConfig. It does not validate
// backend entries — that is the Config Validator's job (§4.3), run when the
// Storage Facade (storage.New) builds the entry's driver.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, fmt.Sprintf("failed to read config file %q", path), err)
	}
	return Parse(data)
}

// Parse parses raw YAML bytes into an AppConfig, applying defaults for
// unset fields.
func Parse(data []byte) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, "failed to parse YAML config", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DefaultChunk == 0 {
		cfg.DefaultChunk = 8 * 1024 * 1024
	}
	if cfg.Audit.MaxEvents == 0 {
		cfg.Audit.MaxEvents = 10000
	}
	if cfg.KeyManager.Provider == "" {
		cfg.KeyManager.Provider = "local"
	}
	if cfg.ResumeIndex.TTL == 0 {
		cfg.ResumeIndex.TTL = 24 * time.Hour
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "none"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "discord-file-vault"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1.0
	}
}
