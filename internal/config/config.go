// Package config loads compiler settings from an optional YAML file and
// RULECQL_* environment variables.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/roach88/rulecql/internal/terminology"
)

// EnvPrefix prefixes every environment variable, e.g. RULECQL_STORE_PATH.
const EnvPrefix = "RULECQL"

type Config struct {
	LibraryVersion      string `mapstructure:"library_version"`
	ModelVersion        string `mapstructure:"model_version"`
	ValueSetURLTemplate string `mapstructure:"valueset_url_template"`
	ValueSetMap         string `mapstructure:"valueset_map"`
	StorePath           string `mapstructure:"store_path"`
	LogLevel            string `mapstructure:"log_level"`
	LogFormat           string `mapstructure:"log_format"`
	Concurrency         int    `mapstructure:"concurrency"`
}

var keys = []string{
	"library_version",
	"model_version",
	"valueset_url_template",
	"valueset_map",
	"store_path",
	"log_level",
	"log_format",
	"concurrency",
}

// Load reads configuration. path names a YAML file; an empty path skips the
// file and uses defaults and environment only. A named file that cannot be
// read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("library_version", "1.0.0")
	v.SetDefault("model_version", "4.0.1")
	v.SetDefault("valueset_url_template", terminology.DefaultValueSetURLTemplate)
	v.SetDefault("valueset_map", "")
	v.SetDefault("store_path", "rulecql.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("concurrency", 4)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that settings are usable.
func (c *Config) Validate() error {
	if strings.Count(c.ValueSetURLTemplate, "%s") != 1 {
		return fmt.Errorf("valueset_url_template must contain exactly one %%s, got %q", c.ValueSetURLTemplate)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", c.LogFormat)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

// Logger builds a logger writing to w in the configured format. verbose
// lowers the level to debug.
func (c *Config) Logger(w io.Writer, verbose bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w)
	if c.LogFormat == "text" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
