package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the ember configuration file (~/.config/ember/config.yaml).
type Config struct {
	ModelsDir string `yaml:"models_dir"`

	// Loading defaults
	Target  string `yaml:"target"`
	Workers *int   `yaml:"workers"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ember", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyCommonConfig applies config file defaults when the corresponding CLI
// flag was not explicitly set.
func applyCommonConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyLoadConfig(c *cli.Command, cfg Config, target *string, workers *int64) {
	if cfg.Target != "" && !c.IsSet("target") {
		*target = cfg.Target
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		*workers = int64(*cfg.Workers)
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// resolveModelPath expands a bare model name against the configured models
// directory. Absolute and existing paths win.
func resolveModelPath(arg string, cfg Config) string {
	if arg == "" || filepath.IsAbs(arg) {
		return arg
	}
	if _, err := os.Stat(arg); err == nil {
		return arg
	}
	if cfg.ModelsDir != "" {
		candidate := filepath.Join(cfg.ModelsDir, arg)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return arg
}
