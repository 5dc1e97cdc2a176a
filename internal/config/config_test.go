package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TASKBOARD_BACKEND", "")
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8081" {
		t.Errorf("Addr = %q, want :8081", cfg.Addr)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Backend)
	}
	if cfg.DataFile != "tasks-config.json" {
		t.Errorf("DataFile = %q", cfg.DataFile)
	}
	if cfg.StoreTimeout != 10*time.Second {
		t.Errorf("StoreTimeout = %v, want 10s", cfg.StoreTimeout)
	}
	if cfg.SnapshotInterval != 0 || cfg.AutoMigrate {
		t.Errorf("SnapshotInterval = %v, AutoMigrate = %v", cfg.SnapshotInterval, cfg.AutoMigrate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskboard.yaml")
	content := "backend: postgres\npostgres_dsn: postgres://file\nstore_timeout: 3s\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKBOARD_POSTGRES_DSN", "postgres://env")
	t.Setenv("TASKBOARD_SNAPSHOT_INTERVAL", "1m")
	t.Setenv("PORT", "")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--log-level=warn", "--auto-migrate"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != BackendPostgres {
		t.Errorf("Backend = %q, want postgres from file", cfg.Backend)
	}
	if cfg.PostgresDSN != "postgres://env" {
		t.Errorf("PostgresDSN = %q, want env value", cfg.PostgresDSN)
	}
	if cfg.StoreTimeout != 3*time.Second {
		t.Errorf("StoreTimeout = %v, want 3s", cfg.StoreTimeout)
	}
	if cfg.SnapshotInterval != time.Minute {
		t.Errorf("SnapshotInterval = %v, want 1m", cfg.SnapshotInterval)
	}
	if cfg.LogLevel != "warn" || !cfg.AutoMigrate {
		t.Errorf("flags not applied: level %q auto_migrate %v", cfg.LogLevel, cfg.AutoMigrate)
	}
	if cfg.Addr != ":8081" {
		t.Errorf("unset flag overrode default: Addr = %q", cfg.Addr)
	}
}

func TestLoadPortEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q, want :9090", cfg.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("Load() succeeded for a missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("", nil)
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "redis" }, "unknown backend"},
		{"postgres without dsn", func(c *Config) { c.Backend = BackendPostgres }, "postgres_dsn"},
		{"mongo without uri", func(c *Config) { c.Backend = BackendMongo }, "mongo_uri"},
		{"zero timeout", func(c *Config) { c.StoreTimeout = 0 }, "store_timeout"},
		{"negative interval", func(c *Config) { c.SnapshotInterval = -time.Second }, "snapshot_interval"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"file backend", func(c *Config) { c.Backend = BackendFile }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record written at warn level: %s", out)
	}
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected output %q", out)
	}
}
