// Package config loads runtime settings from defaults, an optional YAML
// file, TASKBOARD_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Supported storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendFile     = "file"
)

// Config holds every runtime setting.
type Config struct {
	Addr             string        `mapstructure:"addr"`
	StaticDir        string        `mapstructure:"static_dir"`
	DataFile         string        `mapstructure:"data_file"`
	Backend          string        `mapstructure:"backend"`
	SQLitePath       string        `mapstructure:"sqlite_path"`
	PostgresDSN      string        `mapstructure:"postgres_dsn"`
	MongoURI         string        `mapstructure:"mongo_uri"`
	MongoDatabase    string        `mapstructure:"mongo_database"`
	StoreTimeout     time.Duration `mapstructure:"store_timeout"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"addr":              ":8081",
	"static_dir":        "web",
	"data_file":         "tasks-config.json",
	"backend":           BackendSQLite,
	"sqlite_path":       "data/taskboard.db",
	"postgres_dsn":      "",
	"mongo_uri":         "",
	"mongo_database":    "taskboard",
	"store_timeout":     10 * time.Second,
	"snapshot_interval": time.Duration(0),
	"auto_migrate":      false,
	"log_level":         "info",
	"log_format":        "text",
}

// RegisterFlags adds a flag for every setting to fs. Flag names use dashes
// in place of the underscores of the setting keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", defaults["addr"].(string), "HTTP listen address")
	fs.String("static-dir", defaults["static_dir"].(string), "directory with the dashboard pages")
	fs.String("data-file", defaults["data_file"].(string), "flat JSON file with categories and tasks")
	fs.String("backend", defaults["backend"].(string), "storage backend: sqlite, postgres, mongo or file")
	fs.String("sqlite-path", defaults["sqlite_path"].(string), "path to the sqlite database file")
	fs.String("postgres-dsn", "", "postgres connection string")
	fs.String("mongo-uri", "", "mongodb connection URI")
	fs.String("mongo-database", defaults["mongo_database"].(string), "mongodb database name")
	fs.Duration("store-timeout", defaults["store_timeout"].(time.Duration), "deadline for a single store call")
	fs.Duration("snapshot-interval", 0, "how often to rewrite the data file from the store (0 disables)")
	fs.Bool("auto-migrate", false, "migrate the data file into the store on startup")
	fs.String("log-level", defaults["log_level"].(string), "debug, info, warn or error")
	fs.String("log-format", defaults["log_format"].(string), "text or json")
}

// Load merges the configuration sources. path may be empty. flags may be
// nil; only flags the user actually set override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("TASKBOARD")
	v.AutomaticEnv()
	// Container platforms announce the port to listen on through PORT.
	if err := v.BindEnv("addr", "PORT", "TASKBOARD_ADDR"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, ok := defaults[key]; !ok {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Addr != "" && !strings.Contains(cfg.Addr, ":") {
		cfg.Addr = ":" + cfg.Addr
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite_path is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for the postgres backend"))
		}
	case BackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("mongo_uri is required for the mongo backend"))
		}
		if c.MongoDatabase == "" {
			errs = append(errs, errors.New("mongo_database is required for the mongo backend"))
		}
	case BackendFile:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.DataFile == "" {
		errs = append(errs, errors.New("data_file is required"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("store_timeout must be positive, got %s", c.StoreTimeout))
	}
	if c.SnapshotInterval < 0 {
		errs = append(errs, fmt.Errorf("snapshot_interval must not be negative, got %s", c.SnapshotInterval))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log_level %q", s)
	}
	return level, nil
}
