package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const header = "# flow configuration\n# Environment variables named FLOW_<SECTION>_<KEY> override these values.\n"

// WriteDefault writes cfg (or the defaults when nil) to path as YAML. It
// refuses to overwrite an existing file.
func WriteDefault(path string, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	return os.WriteFile(path, append([]byte(header), data...), 0o644)
}

// Marshal renders cfg as YAML with human-readable durations.
func Marshal(cfg *Config) ([]byte, error) {
	out := map[string]any{
		"store": map[string]any{
			"driver": cfg.Store.Driver,
			"path":   cfg.Store.Path,
		},
		"remote": map[string]any{
			"url":           cfg.Remote.URL,
			"fetch_timeout": cfg.Remote.FetchTimeout.String(),
			"send_timeout":  cfg.Remote.SendTimeout.String(),
		},
		"sync": map[string]any{
			"debounce":           cfg.Sync.Debounce.String(),
			"initial_pull_delay": cfg.Sync.InitialPullDelay.String(),
		},
		"server": map[string]any{
			"addr":   cfg.Server.Addr,
			"driver": cfg.Server.Driver,
			"path":   cfg.Server.Path,
		},
		"log": map[string]any{
			"level": cfg.Log.Level,
			"file":  cfg.Log.File,
		},
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return data, nil
}
