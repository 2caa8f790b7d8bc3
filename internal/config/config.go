// Package config provides YAML-based configuration loading for the Skyhug backend.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level backend configuration, loaded from skyhug.yaml.
type Config struct {
	Environment      string           `yaml:"environment"`
	Database         DatabaseConfig   `yaml:"database"`
	HTTP             HTTPConfig       `yaml:"http"`
	OpenAI           OpenAIConfig     `yaml:"openai"`
	ElevenLabs       ElevenLabsConfig `yaml:"elevenlabs"`
	Storage          StorageConfig    `yaml:"storage"`
	Realtime         RealtimeConfig   `yaml:"realtime"`
	Summarizer       SummarizerConfig `yaml:"summarizer"`
	SessionCacheSize int              `yaml:"session_cache_size"`
	Log              LogConfig        `yaml:"log"`
}

// DatabaseConfig selects the row store. Driver is "mysql" or "sqlite".
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// PublicBaseURL prefixes snippet URLs handed to clients. Empty keeps them relative.
	PublicBaseURL string `yaml:"public_base_url"`
}

// OpenAIConfig configures the completion and transcription collaborator.
type OpenAIConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	FastModel         string  `yaml:"fast_model"`
	DeepModel         string  `yaml:"deep_model"`
	TranscribeModel   string  `yaml:"transcribe_model"`
	RequestTimeoutSec int     `yaml:"request_timeout_sec"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	Warmup            bool    `yaml:"warmup"`
}

// RequestTimeout returns the per-call timeout as a duration.
func (o OpenAIConfig) RequestTimeout() time.Duration {
	return time.Duration(o.RequestTimeoutSec) * time.Second
}

// ElevenLabsConfig configures the speech proxy.
type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	BaseURL string `yaml:"base_url"`
	Warmup  bool   `yaml:"warmup"`
}

// StorageConfig locates raw audio uploads awaiting transcription.
type StorageConfig struct {
	BaseURL    string `yaml:"base_url"`
	Bucket     string `yaml:"bucket"`
	ServiceKey string `yaml:"service_key"`
}

// RealtimeConfig selects how message change events are received.
type RealtimeConfig struct {
	// Mode is "poll" (watch the table) or "socket" (Supabase realtime websocket).
	Mode           string `yaml:"mode"`
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	Channel        string `yaml:"channel"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	Workers        int    `yaml:"workers"`
}

// PollInterval returns the poll period as a duration.
func (r RealtimeConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMs) * time.Millisecond
}

// SummarizerConfig controls the inactivity sweep.
type SummarizerConfig struct {
	IntervalHours int  `yaml:"interval_hours"`
	Disabled      bool `yaml:"disabled"`
}

// Interval returns the sweep period as a duration.
func (s SummarizerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalHours) * time.Hour
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Load reads a YAML config file from path and returns a validated Config.
// Environment files next to the config (.env, .env.<environment>) are loaded
// first so ${VAR} references in the YAML can resolve against them.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(filepath.Dir(path), os.Getenv("ENVIRONMENT")); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadEnvFiles loads .env.<environment> and then .env from dir. Existing
// process variables are never overwritten, so the environment-specific file
// wins over the shared one.
func LoadEnvFiles(dir, environment string) error {
	if environment == "" {
		environment = "local"
	}
	for _, name := range []string{".env." + environment, ".env"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Parse expands ${VAR} references, unmarshals YAML bytes and returns a
// validated Config.
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), os.Getenv)
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "local"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "skyhug.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Database == "" {
			c.Database.Database = "skyhug"
		}
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.OpenAI.FastModel == "" {
		c.OpenAI.FastModel = "gpt-3.5-turbo"
	}
	if c.OpenAI.DeepModel == "" {
		c.OpenAI.DeepModel = "gpt-4-turbo"
	}
	if c.OpenAI.TranscribeModel == "" {
		c.OpenAI.TranscribeModel = "whisper-1"
	}
	if c.OpenAI.RequestTimeoutSec == 0 {
		c.OpenAI.RequestTimeoutSec = 60
	}
	if c.OpenAI.RequestsPerSecond == 0 {
		c.OpenAI.RequestsPerSecond = 10
	}
	if c.OpenAI.Burst == 0 {
		c.OpenAI.Burst = 5
	}
	if c.ElevenLabs.BaseURL == "" {
		c.ElevenLabs.BaseURL = "https://api.elevenlabs.io"
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "raw-audio"
	}
	if c.Realtime.Mode == "" {
		c.Realtime.Mode = "poll"
	}
	if c.Realtime.Channel == "" {
		c.Realtime.Channel = "messages_changes"
	}
	if c.Realtime.PollIntervalMs == 0 {
		c.Realtime.PollIntervalMs = 1000
	}
	if c.Realtime.Workers == 0 {
		c.Realtime.Workers = 8
	}
	if c.Summarizer.IntervalHours == 0 {
		c.Summarizer.IntervalHours = 1
	}
	if c.SessionCacheSize == 0 {
		c.SessionCacheSize = 1024
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (use sqlite or mysql)", c.Database.Driver))
	}
	if c.OpenAI.APIKey == "" {
		errs = append(errs, "openai.api_key is required")
	}
	switch c.Realtime.Mode {
	case "poll":
	case "socket":
		if c.Realtime.URL == "" {
			errs = append(errs, "realtime.url is required in socket mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("realtime.mode %q is not supported (use poll or socket)", c.Realtime.Mode))
	}
	if c.Realtime.Workers < 0 {
		errs = append(errs, "realtime.workers must be positive")
	}
	if c.Summarizer.IntervalHours < 0 {
		errs = append(errs, "summarizer.interval_hours must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported (use json or console)", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
