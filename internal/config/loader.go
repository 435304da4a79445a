// Package config loads runtime settings from layered YAML files and
// FLOW_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load merges defaults, the global config, the project config, the explicit
// file (when non-empty) and finally the environment. Missing global or
// project files are skipped; a missing explicit file is an error.
func Load(explicit string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigPath(), ProjectConfigPath()} {
		if err := loadFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if explicit != "" {
		if err := loadFile(explicit, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", explicit, err)
		}
	}

	applyEnv(cfg)
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Server.Path = expandHome(cfg.Server.Path)
	cfg.Log.File = expandHome(cfg.Log.File)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return err
	}

	return v.Unmarshal(cfg)
}

func applyEnv(cfg *Config) {
	if v, ok := getEnvString("FLOW_STORE_DRIVER"); ok {
		cfg.Store.Driver = v
	}
	if v, ok := getEnvString("FLOW_STORE_PATH"); ok {
		cfg.Store.Path = v
	}
	if v, ok := getEnvString("FLOW_REMOTE_URL"); ok {
		cfg.Remote.URL = v
	}
	if v, ok := getEnvDuration("FLOW_REMOTE_FETCH_TIMEOUT"); ok && v > 0 {
		cfg.Remote.FetchTimeout = v
	}
	if v, ok := getEnvDuration("FLOW_REMOTE_SEND_TIMEOUT"); ok && v > 0 {
		cfg.Remote.SendTimeout = v
	}
	if v, ok := getEnvDuration("FLOW_SYNC_DEBOUNCE"); ok && v > 0 {
		cfg.Sync.Debounce = v
	}
	if v, ok := getEnvDuration("FLOW_SYNC_INITIAL_PULL_DELAY"); ok && v > 0 {
		cfg.Sync.InitialPullDelay = v
	}
	if v, ok := getEnvString("FLOW_SERVER_ADDR"); ok {
		cfg.Server.Addr = v
	}
	if v, ok := getEnvString("FLOW_SERVER_DRIVER"); ok {
		cfg.Server.Driver = v
	}
	if v, ok := getEnvString("FLOW_SERVER_PATH"); ok {
		cfg.Server.Path = v
	}
	if v, ok := getEnvString("FLOW_LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := getEnvString("FLOW_LOG_FILE"); ok {
		cfg.Log.File = v
	}
}

func getEnvString(name string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	return raw, raw != ""
}

// getEnvDuration accepts Go duration strings or a bare millisecond count.
func getEnvDuration(name string) (time.Duration, bool) {
	raw, ok := getEnvString(name)
	if !ok {
		return 0, false
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}
