package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the perceptual configuration file
// (~/.config/perceptual/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	WeightsCache string `yaml:"weights_cache"`
	URLPrefix    string `yaml:"url_prefix"`

	// Transform defaults
	NumLevels  *int64   `yaml:"num_levels"`
	Gamma      *float64 `yaml:"gamma"`
	DataFormat string   `yaml:"data_format"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string   `yaml:"server_address"`
	RateLimit     *float64 `yaml:"rate_limit"`
	RateBurst     *int64   `yaml:"rate_burst"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "perceptual", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file, or an empty path,
// gives a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyGlobalConfig applies config file defaults to the global flags that
// were not set on the command line or through the environment.
func applyGlobalConfig(c *cli.Command, cfg Config, o *globalOptions) {
	if cfg.WeightsCache != "" && !c.IsSet("weights-cache") {
		o.weightsCache = cfg.WeightsCache
	}
	if cfg.URLPrefix != "" && !c.IsSet("url-prefix") {
		o.urlPrefix = cfg.URLPrefix
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		o.logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		o.logFormat = cfg.LogFormat
	}
}

// applyTransformConfig applies config file defaults to the transform flags.
func applyTransformConfig(c *cli.Command, cfg Config, t *transformOptions) {
	if cfg.NumLevels != nil && !c.IsSet("num-levels") {
		t.numLevels = *cfg.NumLevels
	}
	if cfg.Gamma != nil && !c.IsSet("gamma") {
		t.gamma = *cfg.Gamma
	}
	if cfg.DataFormat != "" && !c.IsSet("data-format") {
		t.dataFormat = cfg.DataFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, rateLimit *float64, burst *int64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.RateLimit != nil && !c.IsSet("rate-limit") {
		*rateLimit = *cfg.RateLimit
	}
	if cfg.RateBurst != nil && !c.IsSet("rate-burst") {
		*burst = *cfg.RateBurst
	}
}
