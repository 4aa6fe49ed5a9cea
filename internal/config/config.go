package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const envOverride = "SHELLRUN_CONFIG"

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type Config struct {
	Shell   ShellConfig   `toml:"shell"`
	Run     RunConfig     `toml:"run"`
	History HistoryConfig `toml:"history"`
	Log     LogConfig     `toml:"log"`
}

type ShellConfig struct {
	Path string `toml:"path"` // "" = bash if available, else sh (cmd on Windows)
}

type RunConfig struct {
	Dir             string        `toml:"dir"`
	Echo            bool          `toml:"echo"`
	Timeout         string        `toml:"timeout"`
	TimeoutDuration time.Duration `toml:"-"` // parsed from Timeout at load time
}

type HistoryConfig struct {
	Enabled *bool       `toml:"enabled"`
	Driver  string      `toml:"driver"`
	Path    string      `toml:"path"`
	Keep    int         `toml:"keep"`
	MySQL   MySQLConfig `toml:"mysql"`
}

type MySQLConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	PasswordFile string `toml:"password_file"`
	Database     string `toml:"database"`
	Password     string `toml:"-"` // resolved at load time, never serialized
}

type LogConfig struct {
	Level string `toml:"level"`
}

// HistoryEnabled reports whether runs are recorded. Unset means enabled.
func (c *Config) HistoryEnabled() bool {
	return c.History.Enabled == nil || *c.History.Enabled
}

// DefaultPath returns the configuration file path.
func DefaultPath() string {
	if p := os.Getenv(envOverride); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "shellrun.toml"
	}
	return filepath.Join(dir, "shellrun", "shellrun.toml")
}

// DefaultHistoryPath returns where the SQLite history lives when unconfigured.
func DefaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "shellrun-history.db"
	}
	return filepath.Join(dir, "shellrun", "history.db")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from the default path. A missing file yields the
// defaults.
func Load() (*Config, error) {
	cfg, err := LoadFrom(DefaultPath())
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFrom reads configuration from the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Run.Timeout == "" {
		cfg.Run.Timeout = "0s"
	}
	if cfg.History.Driver == "" {
		cfg.History.Driver = DriverSQLite
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath()
	}
	if cfg.History.Keep == 0 {
		cfg.History.Keep = 1000
	}
	if cfg.History.MySQL.Host == "" {
		cfg.History.MySQL.Host = "127.0.0.1"
	}
	if cfg.History.MySQL.Port == 0 {
		cfg.History.MySQL.Port = 3306
	}
	if cfg.History.MySQL.User == "" {
		cfg.History.MySQL.User = "shellrun"
	}
	if cfg.History.MySQL.Database == "" {
		cfg.History.MySQL.Database = "shellrun"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func validate(cfg *Config) error {
	timeout, err := time.ParseDuration(cfg.Run.Timeout)
	if err != nil {
		return fmt.Errorf("config: run.timeout %q: %w", cfg.Run.Timeout, err)
	}
	if timeout < 0 {
		return fmt.Errorf("config: run.timeout must not be negative")
	}
	cfg.Run.TimeoutDuration = timeout

	if cfg.History.Keep < 0 {
		return fmt.Errorf("config: history.keep must not be negative")
	}

	switch cfg.History.Driver {
	case DriverSQLite:
		return nil
	case DriverMySQL:
	default:
		return fmt.Errorf("config: history.driver must be %q or %q, got %q", DriverSQLite, DriverMySQL, cfg.History.Driver)
	}

	// Resolve MySQL password from file
	if cfg.History.MySQL.PasswordFile == "" {
		return fmt.Errorf("config: history.mysql.password_file is required for the mysql driver")
	}
	pwData, err := os.ReadFile(cfg.History.MySQL.PasswordFile)
	if err != nil {
		return fmt.Errorf("reading mysql password from %s: %w", cfg.History.MySQL.PasswordFile, err)
	}
	cfg.History.MySQL.Password = strings.TrimSpace(string(pwData))
	if cfg.History.MySQL.Password == "" {
		return fmt.Errorf("config: mysql password file %s is empty", cfg.History.MySQL.PasswordFile)
	}
	return nil
}

// TemplateConfig returns a TOML template for first-time setup.
func TemplateConfig() string {
	return `[shell]
# Interpreter used as "<path> -c <command>". Empty picks bash, then sh.
path = ""

[run]
dir     = ""
echo    = false
timeout = "0s"

[history]
enabled = true
driver  = "sqlite"
# path  = "/home/you/.cache/shellrun/history.db"
keep    = 1000

[history.mysql]
host          = "127.0.0.1"
port          = 3306
user          = "shellrun"
password_file = ""
database      = "shellrun"

[log]
level = "info"
`
}
