package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	ConflictAsk       = "ask"
	ConflictOverwrite = "overwrite"
	ConflictSkip      = "skip"
	ConflictRename    = "rename"
)

const (
	RootFolderNever  = "never"
	RootFolderAlways = "always"
	RootFolderAuto   = "auto"
)

var (
	instance   *Config
	once       sync.Once
	configPath string
)

type Config struct {
	// server
	BindAddress string `json:"bind_address,omitempty"`
	URLBase     string `json:"url_base,omitempty"`
	Port        string `json:"port,omitempty"`

	LogLevel string `json:"log_level,omitempty"`

	// extraction defaults, applied to tasks that do not override them
	DefaultDestination  string `json:"default_destination,omitempty"`
	ConflictPolicy      string `json:"conflict_policy,omitempty"`
	RootFolderMode      string `json:"root_folder_mode,omitempty"` // never, always, auto
	PreservePermissions bool   `json:"preserve_permissions"`
	PreserveTimestamps  bool   `json:"preserve_timestamps"`

	// safety knobs
	BombRatio       float64 `json:"bomb_ratio,omitempty"`        // uncompressed/compressed warning threshold
	DiskSpaceBuffer float64 `json:"disk_space_buffer,omitempty"` // fraction of required bytes kept free

	MaxHistoryEntries int    `json:"max_history_entries,omitempty"`
	TaskRetention     string `json:"task_retention,omitempty"` // how long finished tasks stay listed

	Path string `json:"-"` // directory holding settings, history and logs
}

func (c *Config) JsonFile() string {
	return filepath.Join(c.Path, "settings.json")
}

func (c *Config) HistoryFile() string {
	return filepath.Join(c.Path, "history.json")
}

func (c *Config) loadConfig() error {
	if configPath == "" {
		return fmt.Errorf("config path not set")
	}
	c.Path = configPath
	file, err := os.ReadFile(c.JsonFile())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("Config file not found, creating a new one at %s\n", c.JsonFile())
			c.setDefaults()
			return c.Save()
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := json.Unmarshal(file, &c); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	c.setDefaults()
	return nil
}

func (c *Config) setDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "0.0.0.0"
	}
	if c.Port == "" {
		c.Port = "8284"
	}
	if c.URLBase == "" {
		c.URLBase = "/"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DefaultDestination == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DefaultDestination = filepath.Join(home, "Downloads")
		}
	}
	if c.ConflictPolicy == "" {
		c.ConflictPolicy = ConflictAsk
	}
	if c.RootFolderMode == "" {
		c.RootFolderMode = RootFolderNever
	}
	if c.BombRatio <= 0 {
		c.BombRatio = 100.0
	}
	if c.DiskSpaceBuffer <= 0 {
		c.DiskSpaceBuffer = 0.1
	}
	if c.MaxHistoryEntries <= 0 {
		c.MaxHistoryEntries = 50
	}
	if c.TaskRetention == "" {
		c.TaskRetention = "24h"
	}
}

func ValidateConfig(c *Config) error {
	switch c.ConflictPolicy {
	case ConflictAsk, ConflictOverwrite, ConflictSkip, ConflictRename:
	default:
		return fmt.Errorf("invalid conflict_policy: %s", c.ConflictPolicy)
	}
	switch c.RootFolderMode {
	case RootFolderNever, RootFolderAlways, RootFolderAuto:
	default:
		return fmt.Errorf("invalid root_folder_mode: %s", c.RootFolderMode)
	}
	return nil
}

func (c *Config) Save() error {
	if err := os.MkdirAll(c.Path, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(c.JsonFile(), data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

func SetConfigPath(path string) {
	configPath = path
}

func Get() *Config {
	once.Do(func() {
		instance = &Config{
			PreservePermissions: true,
			PreserveTimestamps:  true,
		}
		if err := instance.loadConfig(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "configuration Error: %v\n", err)
			os.Exit(1)
		}
	})
	return instance
}
