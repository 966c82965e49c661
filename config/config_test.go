package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "no sinks",
			mutate: func(cfg *Config) {
				cfg.Sinks = nil
			},
			wantErr: "at least one sink",
		},
		{
			name: "unknown sink",
			mutate: func(cfg *Config) {
				cfg.Sinks = []string{"redis"}
			},
			wantErr: "unknown sink",
		},
		{
			name: "duplicate sink",
			mutate: func(cfg *Config) {
				cfg.Sinks = []string{SinkSQL, SinkSQL}
			},
			wantErr: "listed twice",
		},
		{
			name: "bad persist policy",
			mutate: func(cfg *Config) {
				cfg.PersistPolicy = "retry"
			},
			wantErr: "persist policy",
		},
		{
			name: "negative cache size",
			mutate: func(cfg *Config) {
				cfg.NameCacheSize = -1
			},
			wantErr: "name cache size",
		},
		{
			name: "unsupported sql driver",
			mutate: func(cfg *Config) {
				cfg.SQL.Driver = "mysql"
			},
			wantErr: "sql driver",
		},
		{
			name: "mongo uri without host",
			mutate: func(cfg *Config) {
				cfg.Sinks = []string{SinkMongo}
				cfg.Mongo.URI = "mongodb://"
			},
			wantErr: "mongo uri",
		},
		{
			name: "mongo wrong scheme",
			mutate: func(cfg *Config) {
				cfg.Sinks = []string{SinkMongo}
				cfg.Mongo.URI = "http://localhost:27017"
			},
			wantErr: "mongo uri",
		},
		{
			name: "mongo zero timeout",
			mutate: func(cfg *Config) {
				cfg.Sinks = []string{SinkMongo}
				cfg.Mongo.Timeout = 0
			},
			wantErr: "mongo timeout",
		},
		{
			name: "amqp empty exchange",
			mutate: func(cfg *Config) {
				cfg.Sinks = []string{SinkAMQP}
				cfg.AMQP.Exchange = ""
			},
			wantErr: "amqp exchange",
		},
		{
			name: "jsonl empty path",
			mutate: func(cfg *Config) {
				cfg.Sinks = []string{SinkJSONL}
				cfg.JSONL.Path = ""
			},
			wantErr: "jsonl path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}

	cfg.Sinks = []string{SinkSQL, SinkMongo, SinkAMQP, SinkJSONL}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with every sink should validate, got %v", err)
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wuxia.yaml")
	content := `
sinks: [sql, mongo]
persist_policy: Drop
sql:
  driver: sqlite
  dsn: /tmp/from-file.db
mongo:
  uri: mongodb://mongo.internal:27017
  database: novels
  timeout: 3s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("WUXIA_MONGO_DATABASE", "novels_env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("input", "-", "")
	flags.String("sql-dsn", "", "")
	if err := flags.Parse([]string{"--input", "items.jsonl"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Input != "items.jsonl" {
		t.Fatalf("input = %q, want flag value", cfg.Input)
	}
	if cfg.SQL.DSN != "/tmp/from-file.db" {
		t.Fatalf("sql dsn = %q, unset flag must not override file", cfg.SQL.DSN)
	}
	if cfg.Mongo.Database != "novels_env" {
		t.Fatalf("mongo database = %q, want env override", cfg.Mongo.Database)
	}
	if cfg.Mongo.Timeout != 3*time.Second {
		t.Fatalf("mongo timeout = %v, want 3s", cfg.Mongo.Timeout)
	}
	if cfg.PersistPolicy != "drop" {
		t.Fatalf("persist policy = %q, want drop", cfg.PersistPolicy)
	}
	if len(cfg.Sinks) != 2 || cfg.Sinks[0] != SinkSQL || cfg.Sinks[1] != SinkMongo {
		t.Fatalf("sinks = %v", cfg.Sinks)
	}
	if cfg.NameCacheSize != 1024 {
		t.Fatalf("name cache size = %d, want default", cfg.NameCacheSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoadSinksFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WUXIA_SINKS", "sql, jsonl")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Sinks) != 2 || cfg.Sinks[1] != SinkJSONL {
		t.Fatalf("sinks = %v, want [sql jsonl]", cfg.Sinks)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}
