package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct, loaded from YAML with
// INBOXDB_* environment overrides applied on top.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Security   SecurityConfig   `yaml:"security"`
	Logging    LoggingConfig    `yaml:"logging"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retention  RetentionConfig  `yaml:"retention"`
	Validation ValidationConfig `yaml:"validation"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// Engine selects the HTTP engine: "nethttp" (default) or "fasthttp".
	Engine string `yaml:"engine"`
	TLS    struct {
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
	} `yaml:"tls"`
}

// StorageConfig selects and configures the store backend.
type StorageConfig struct {
	// Backend is "pebble" (embedded, default) or "mongo".
	Backend string `yaml:"backend"`
	DBPath  string `yaml:"db_path"`
	Mongo   struct {
		URI        string `yaml:"uri"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
	} `yaml:"mongo"`
}

// SecurityConfig holds the CORS allow-list and rate limiting knobs.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// IngestConfig tunes payload handling.
type IngestConfig struct {
	// MaxPayloadBytes caps a single webhook payload body.
	MaxPayloadBytes SizeBytes `yaml:"max_payload_bytes"`
	// Workers is the importer's payload-level fan-out; 1 means
	// strictly sequential.
	Workers int `yaml:"workers"`
}

// RetentionConfig drives the tombstone purge runner.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// Period is how long a soft-deleted record survives before purge.
	Period Duration `yaml:"period"`
	DryRun bool     `yaml:"dry_run"`
}

// ValidationConfig holds the declarative rules applied to API-created
// messages (ingested webhook entries are only checked structurally).
type ValidationConfig struct {
	Required []string `yaml:"required"`
	MaxLen   []struct {
		Path string `yaml:"path"`
		Max  int    `yaml:"max"`
	} `yaml:"max_len"`
	Enums []struct {
		Path   string   `yaml:"path"`
		Values []string `yaml:"values"`
	} `yaml:"enums"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// SizeBytes is a byte count unmarshaled from human-friendly strings like
// "4MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration with YAML parsing from strings like
// "720h" or plain numbers interpreted as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
