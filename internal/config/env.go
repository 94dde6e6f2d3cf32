package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable read by LoadEnv.
const EnvPrefix = "DATACLEANER"

// Env holds process-level settings taken from the environment. The CLI uses
// them as flag defaults.
type Env struct {
	Listen     string `envconfig:"LISTEN" default:"localhost:8090"`
	DBPath     string `envconfig:"DB" default:""`
	ConfigPath string `envconfig:"CONFIG" default:""`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	OutDir     string `envconfig:"OUT_DIR" default:"."`
	DataDir    string `envconfig:"DATA_DIR" default:""`
}

// LoadEnv reads DATACLEANER_* variables.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Env{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return env, nil
}

// Resolve loads the cleaner config from path, falling back to the environment
// path and then to DefaultConfigPath when it exists. With nothing to load the
// defaults are returned; a defaults file that exists but fails to load is an
// error.
func Resolve(path string, env Env) (*CleanerConfig, error) {
	if path == "" {
		path = env.ConfigPath
	}
	if path == "" {
		cfg, err := LoadCleanerConfig(DefaultConfigPath)
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultCleanerConfig(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", DefaultConfigPath, err)
		}
		return cfg, nil
	}
	return LoadCleanerConfig(path)
}
