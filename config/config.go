// Package config loads commissiond configuration from an optional YAML file
// and COMMISSION_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ConfigName   = "config"
	ConfigFormat = "yaml"
	EnvPrefix    = "COMMISSION"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Lock     LockConfig     `mapstructure:"lock"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type DatabaseConfig struct {
	// Path is a SQLite file path, or ":memory:".
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	Environment        string        `mapstructure:"environment"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

type EngineConfig struct {
	MaxManagerDepth   int           `mapstructure:"max_manager_depth"`
	MaxRecruiterDepth int           `mapstructure:"max_recruiter_depth"`
	BatchConcurrency  int           `mapstructure:"batch_concurrency"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout"`

	// SweepInterval recalculates every deal periodically; 0 disables.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LockConfig struct {
	// Backend is "memory" (single process) or "redis".
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	Output LoggingOutput `mapstructure:"output"`
}

type LoggingOutput struct {
	Stdout bool              `mapstructure:"stdout"`
	File   LoggingFileConfig `mapstructure:"file"`
}

type LoggingFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Environment, "development")
}

// Read loads configuration. An empty path or a missing config file falls
// back to defaults plus environment overrides; e.g. COMMISSION_DATABASE_PATH
// overrides database.path.
func Read(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "commissions.db")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})

	v.SetDefault("engine.max_manager_depth", 4)
	v.SetDefault("engine.max_recruiter_depth", 2)
	v.SetDefault("engine.batch_concurrency", 4)
	v.SetDefault("engine.lock_timeout", 30*time.Second)
	v.SetDefault("engine.sweep_interval", 0)

	v.SetDefault("lock.backend", "memory")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "commission:lock:")
	v.SetDefault("redis.lock_ttl", 2*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output.stdout", true)
	v.SetDefault("logging.output.file.enabled", false)
	v.SetDefault("logging.output.file.path", "logs/commissiond.log")
	v.SetDefault("logging.output.file.max_size_mb", 100)
	v.SetDefault("logging.output.file.max_backups", 5)
	v.SetDefault("logging.output.file.max_age_days", 30)
	v.SetDefault("logging.output.file.compress", true)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Engine.MaxManagerDepth <= 0 {
		errs = append(errs, errors.New("engine.max_manager_depth must be positive"))
	}
	if c.Engine.MaxRecruiterDepth <= 0 {
		errs = append(errs, errors.New("engine.max_recruiter_depth must be positive"))
	}
	if c.Engine.BatchConcurrency <= 0 {
		errs = append(errs, errors.New("engine.batch_concurrency must be positive"))
	}
	if c.Engine.LockTimeout < 0 || c.Engine.SweepInterval < 0 {
		errs = append(errs, errors.New("engine durations must not be negative"))
	}

	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis lock backend"))
		}
		if c.Redis.LockTTL <= 0 {
			errs = append(errs, errors.New("redis.lock_ttl must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock.backend %q", c.Lock.Backend))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	if c.Logging.Output.File.Enabled && c.Logging.Output.File.Path == "" {
		errs = append(errs, errors.New("logging.output.file.path is required when file output is enabled"))
	}

	return errors.Join(errs...)
}
