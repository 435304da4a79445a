package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const dirName = ".flow"

// Config is the merged runtime configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Remote RemoteConfig `yaml:"remote" mapstructure:"remote"`
	Sync   SyncConfig   `yaml:"sync" mapstructure:"sync"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig locates the local SQLite file.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// RemoteConfig points at the snapshot endpoint.
type RemoteConfig struct {
	URL          string        `yaml:"url" mapstructure:"url"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	SendTimeout  time.Duration `yaml:"send_timeout" mapstructure:"send_timeout"`
}

type SyncConfig struct {
	Debounce         time.Duration `yaml:"debounce" mapstructure:"debounce"`
	InitialPullDelay time.Duration `yaml:"initial_pull_delay" mapstructure:"initial_pull_delay"`
}

// ServerConfig configures `flow serve`.
type ServerConfig struct {
	Addr   string `yaml:"addr" mapstructure:"addr"`
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

func DefaultConfig() *Config {
	home := GlobalDir()
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite3",
			Path:   filepath.Join(home, "flow.db"),
		},
		Remote: RemoteConfig{
			URL:          "http://localhost:8787/exec",
			FetchTimeout: 10 * time.Second,
			SendTimeout:  5 * time.Second,
		},
		Sync: SyncConfig{
			Debounce:         1500 * time.Millisecond,
			InitialPullDelay: 300 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:   "localhost:8787",
			Driver: "sqlite3",
			Path:   filepath.Join(home, "server.db"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(home, "flow.log"),
		},
	}
}

// GlobalDir is ~/.flow, or ./.flow when no home directory is available.
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return dirName
	}
	return filepath.Join(home, dirName)
}

func GlobalConfigPath() string {
	return filepath.Join(GlobalDir(), "config.yaml")
}

func ProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Join(dirName, "config.yaml")
	}
	return filepath.Join(cwd, dirName, "config.yaml")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
