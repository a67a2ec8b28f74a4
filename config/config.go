package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Configuration is the process-wide configuration, populated once by
// InitConfig and read-only afterwards.
type Configuration struct {
	Host      string       `mapstructure:"host"`
	Port      int          `mapstructure:"port"`
	DataDir   string       `mapstructure:"data_dir"`
	UIDir     string       `mapstructure:"ui_dir"`
	DisableUI bool         `mapstructure:"disable_ui"`
	LogLevel  string       `mapstructure:"log_level"`
	DuckDB    DuckDBConfig `mapstructure:"duckdb"`
	Query     QueryConfig  `mapstructure:"query"`
}

// DuckDBConfig bounds the resources of the embedded engine.
type DuckDBConfig struct {
	Threads     int    `mapstructure:"threads"`
	MemoryLimit string `mapstructure:"memory_limit"`
}

// QueryConfig holds defaults for the downsampling path.
type QueryConfig struct {
	DefaultMaxPoints int `mapstructure:"default_max_points"`
}

var Config Configuration

// InitConfig loads configuration from the given file (optional), the
// PARQPLOT_* environment and built-in defaults, in increasing priority
// of env over file over defaults.
func InitConfig(path string) error {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PARQPLOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("parqplot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(&Config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return Config.validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8765)
	v.SetDefault("data_dir", ".")
	v.SetDefault("ui_dir", "./ui")
	v.SetDefault("disable_ui", false)
	v.SetDefault("log_level", "info")

	v.SetDefault("duckdb.threads", 4)
	v.SetDefault("duckdb.memory_limit", "1GB")

	v.SetDefault("query.default_max_points", 2000)
}

func (c *Configuration) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DuckDB.Threads <= 0 {
		return fmt.Errorf("duckdb.threads must be positive, got %d", c.DuckDB.Threads)
	}
	if c.Query.DefaultMaxPoints <= 0 {
		return fmt.Errorf("query.default_max_points must be positive, got %d", c.Query.DefaultMaxPoints)
	}
	return nil
}
