// Package config loads coordinator configuration from defaults, an
// optional config file, and environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all coordinator settings.
type Config struct {
	DataDir           string        `mapstructure:"data_dir"`
	Platform          string        `mapstructure:"platform"` // android | ios | desktop
	EvaluatorInterval time.Duration `mapstructure:"evaluator_interval"`
	LogPath           string        `mapstructure:"log_path"`
	LogLevel          string        `mapstructure:"log_level"`
}

// Load reads configuration. Precedence: env (COORDINATOR_*) > config file
// (config.yaml in the data dir, if present) > defaults.
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaultDataDir := filepath.Join(home, ".focusd-coordinator")

	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("platform", "desktop")
	v.SetDefault("evaluator_interval", time.Minute)
	v.SetDefault("log_path", filepath.Join(defaultDataDir, "coordinator.log"))
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("coordinator")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("data_dir"))
	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; malformed file is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
