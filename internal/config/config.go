// Package config provides configuration management for mcpc using Viper.
package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/cipherhq/mcpc/internal/installer"
	"github.com/cipherhq/mcpc/internal/secrets"
)

// AppName is the application name used for config file lookup.
const AppName = "mcpc"

// Conventional default paths in the working directory.
const (
	DefaultInput  = "mcp-enterprise.json"
	DefaultOutput = "mcp-compiled.json"
	DefaultEnvDir = ".mcp_env"
	DefaultDotenv = ".env"
)

// Config represents the top-level configuration structure.
type Config struct {
	// Input is the default manifest path.
	Input string `mapstructure:"input" yaml:"input"`

	// Output is the default compiled manifest path.
	Output string `mapstructure:"output" yaml:"output"`

	// EnvDir is the base directory for installation roots.
	EnvDir string `mapstructure:"env_dir" yaml:"env_dir"`

	// DotenvFile is the optional NAME=value secrets file.
	DotenvFile string `mapstructure:"dotenv_file" yaml:"dotenv_file"`

	// Sentinels are the placeholder patterns that mark a template value as
	// not yet filled in.
	Sentinels []string `mapstructure:"sentinels" yaml:"sentinels"`

	// SentinelMatch selects how sentinel patterns are compared:
	// contains, exact, or prefix.
	SentinelMatch string `mapstructure:"sentinel_match" yaml:"sentinel_match"`

	// InstallTimeout bounds each runtime's install batch.
	InstallTimeout time.Duration `mapstructure:"install_timeout" yaml:"install_timeout"`
}

// Init initializes Viper with defaults and search paths. Call once at
// application startup before accessing config values.
func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Search paths (in order of precedence)
	viper.AddConfigPath(".")
	viper.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))

	viper.SetEnvPrefix("MCPC")
	viper.AutomaticEnv()

	viper.SetDefault("input", DefaultInput)
	viper.SetDefault("output", DefaultOutput)
	viper.SetDefault("env_dir", DefaultEnvDir)
	viper.SetDefault("dotenv_file", DefaultDotenv)
	viper.SetDefault("sentinels", secrets.DefaultSentinels)
	viper.SetDefault("sentinel_match", string(secrets.MatchContains))
	viper.SetDefault("install_timeout", installer.DefaultTimeout)
}

// Load reads the configuration file. If path is provided, it reads that
// specific file; otherwise it searches the default locations and falls
// back to defaults when no file exists.
func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if path != "" {
				return nil, errors.Wrapf(err, "config file not found at %s", path)
			}
			// Implicit load without a file uses defaults.
		} else {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values that have a constrained domain.
func (c *Config) Validate() error {
	if c.SentinelMatch != "" && !secrets.MatchMode(c.SentinelMatch).Valid() {
		return errors.Newf("invalid sentinel_match %q (valid: contains, exact, prefix)",
			c.SentinelMatch)
	}
	if c.InstallTimeout < 0 {
		return errors.Newf("install_timeout must be positive")
	}
	return nil
}

// MatchMode returns the configured sentinel match mode.
func (c *Config) MatchMode() secrets.MatchMode {
	if c.SentinelMatch == "" {
		return secrets.MatchContains
	}
	return secrets.MatchMode(c.SentinelMatch)
}
