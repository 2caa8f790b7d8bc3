package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
environment: production

database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  user: skyhug
  database: skyhug_prod

http:
  port: 9000
  public_base_url: https://api.skyhug.example

openai:
  api_key: sk-test
  fast_model: gpt-4o-mini
  deep_model: gpt-4o
  request_timeout_sec: 30
  requests_per_second: 2

elevenlabs:
  api_key: el-test
  voice_id: voice-1

realtime:
  mode: socket
  url: wss://proj.supabase.co/realtime/v1/websocket
  api_key: anon
  workers: 16

summarizer:
  interval_hours: 2

session_cache_size: 64

log:
  level: debug
  format: console
`

const minimalYAML = `
openai:
  api_key: sk-min
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "production")
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Database.Host != "10.0.0.5" || cfg.Database.Port != 3307 {
		t.Errorf("Database = %s:%d, want 10.0.0.5:3307", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("HTTP.Port = %d, want 9000", cfg.HTTP.Port)
	}
	if cfg.HTTP.PublicBaseURL != "https://api.skyhug.example" {
		t.Errorf("HTTP.PublicBaseURL = %q", cfg.HTTP.PublicBaseURL)
	}
	if cfg.OpenAI.FastModel != "gpt-4o-mini" || cfg.OpenAI.DeepModel != "gpt-4o" {
		t.Errorf("models = %q/%q", cfg.OpenAI.FastModel, cfg.OpenAI.DeepModel)
	}
	if cfg.OpenAI.RequestTimeout() != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.OpenAI.RequestTimeout())
	}
	if cfg.Realtime.Mode != "socket" || cfg.Realtime.Workers != 16 {
		t.Errorf("Realtime = %+v", cfg.Realtime)
	}
	if cfg.Summarizer.Interval() != 2*time.Hour {
		t.Errorf("Summarizer.Interval = %v, want 2h", cfg.Summarizer.Interval())
	}
	if cfg.SessionCacheSize != 64 {
		t.Errorf("SessionCacheSize = %d, want 64", cfg.SessionCacheSize)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestParse_MinimalConfigDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"environment", cfg.Environment, "local"},
		{"database driver", cfg.Database.Driver, "sqlite"},
		{"database dsn", cfg.Database.DSN, "skyhug.db"},
		{"http port", cfg.HTTP.Port, 8000},
		{"fast model", cfg.OpenAI.FastModel, "gpt-3.5-turbo"},
		{"deep model", cfg.OpenAI.DeepModel, "gpt-4-turbo"},
		{"transcribe model", cfg.OpenAI.TranscribeModel, "whisper-1"},
		{"timeout", cfg.OpenAI.RequestTimeoutSec, 60},
		{"elevenlabs base", cfg.ElevenLabs.BaseURL, "https://api.elevenlabs.io"},
		{"bucket", cfg.Storage.Bucket, "raw-audio"},
		{"realtime mode", cfg.Realtime.Mode, "poll"},
		{"realtime channel", cfg.Realtime.Channel, "messages_changes"},
		{"poll interval", cfg.Realtime.PollInterval(), time.Second},
		{"workers", cfg.Realtime.Workers, 8},
		{"summarizer interval", cfg.Summarizer.IntervalHours, 1},
		{"session cache", cfg.SessionCacheSize, 1024},
		{"log level", cfg.Log.Level, "info"},
		{"log format", cfg.Log.Format, "json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: mysql\nopenai:\n  api_key: k\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "127.0.0.1" || cfg.Database.Port != 3306 {
		t.Errorf("Database = %s:%d, want 127.0.0.1:3306", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.Database.Database != "skyhug" || cfg.Database.User != "root" {
		t.Errorf("Database = %+v", cfg.Database)
	}
}

func TestParse_ExpandsEnvReferences(t *testing.T) {
	t.Setenv("SKYHUG_TEST_OPENAI_KEY", "sk-from-env")
	cfg, err := Parse([]byte("openai:\n  api_key: ${SKYHUG_TEST_OPENAI_KEY}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want sk-from-env", cfg.OpenAI.APIKey)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing api key", "log:\n  level: info\n", "openai.api_key is required"},
		{"bad driver", "database:\n  driver: postgres\nopenai:\n  api_key: k\n", "database.driver"},
		{"socket without url", "realtime:\n  mode: socket\nopenai:\n  api_key: k\n", "realtime.url is required"},
		{"bad mode", "realtime:\n  mode: carrier-pigeon\nopenai:\n  api_key: k\n", "realtime.mode"},
		{"bad log format", "log:\n  format: xml\nopenai:\n  api_key: k\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("openai: [unclosed"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/skyhug.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

func TestLoad_ReadsEnvFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENVIRONMENT", "develop")
	os.Unsetenv("SKYHUG_TEST_DOTENV_KEY")
	t.Cleanup(func() { os.Unsetenv("SKYHUG_TEST_DOTENV_KEY") })

	if err := os.WriteFile(filepath.Join(dir, ".env.develop"), []byte("SKYHUG_TEST_DOTENV_KEY=sk-develop\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SKYHUG_TEST_DOTENV_KEY=sk-shared\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "skyhug.yaml")
	if err := os.WriteFile(cfgPath, []byte("openai:\n  api_key: ${SKYHUG_TEST_DOTENV_KEY}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-develop" {
		t.Errorf("APIKey = %q, want sk-develop (environment file wins)", cfg.OpenAI.APIKey)
	}
}
