// Package config loads application settings from defaults, an optional
// config file, BOOKMARKS_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ModeLocal  = "local"
	ModeRemote = "remote"

	envPrefix = "BOOKMARKS"
)

// Keys understood by Load
const (
	KeyDataDir         = "data_dir"
	KeyDBPath          = "db_path"
	KeyPort            = "port"
	KeyServerURL       = "server_url"
	KeyMode            = "mode"
	KeyEmail           = "email"
	KeyJWTSecret       = "jwt_secret"
	KeyTokenTTL        = "token_ttl"
	KeyRefreshWindow   = "refresh_window"
	KeyAllowDevLogin   = "allow_dev_login"
	KeyRefreshInterval = "refresh_interval"
	KeyFetchTimeout    = "fetch_timeout"
	KeyLogFile         = "log_file"
	KeyNoticeTTL       = "notice_ttl"
)

type Config struct {
	DataDir         string
	DBPath          string
	Port            int
	ServerURL       string
	Mode            string
	Email           string
	JWTSecret       string
	TokenTTL        time.Duration
	RefreshWindow   time.Duration
	AllowDevLogin   bool
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	LogFile         string
	NoticeTTL       time.Duration
}

// NewViper returns a viper instance with defaults and environment binding set
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyDataDir, defaultDataDir())
	v.SetDefault(KeyDBPath, "")
	v.SetDefault(KeyPort, 8787)
	v.SetDefault(KeyServerURL, "")
	v.SetDefault(KeyMode, ModeLocal)
	v.SetDefault(KeyEmail, "")
	v.SetDefault(KeyJWTSecret, "")
	v.SetDefault(KeyTokenTTL, 24*time.Hour)
	v.SetDefault(KeyRefreshWindow, 6*time.Hour)
	v.SetDefault(KeyAllowDevLogin, false)
	v.SetDefault(KeyRefreshInterval, time.Duration(0))
	v.SetDefault(KeyFetchTimeout, 5*time.Second)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyNoticeTTL, 3*time.Second)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".bookmarks"
	}
	return filepath.Join(homeDir, ".bookmarks")
}

// Load reads the optional config file and resolves derived settings.
// configFile may be empty, in which case config.yaml under the data
// directory is used when present.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString(KeyDataDir))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	c := &Config{
		DataDir:         v.GetString(KeyDataDir),
		DBPath:          v.GetString(KeyDBPath),
		Port:            v.GetInt(KeyPort),
		ServerURL:       strings.TrimRight(v.GetString(KeyServerURL), "/"),
		Mode:            strings.ToLower(v.GetString(KeyMode)),
		Email:           v.GetString(KeyEmail),
		JWTSecret:       v.GetString(KeyJWTSecret),
		TokenTTL:        v.GetDuration(KeyTokenTTL),
		RefreshWindow:   v.GetDuration(KeyRefreshWindow),
		AllowDevLogin:   v.GetBool(KeyAllowDevLogin),
		RefreshInterval: v.GetDuration(KeyRefreshInterval),
		FetchTimeout:    v.GetDuration(KeyFetchTimeout),
		LogFile:         v.GetString(KeyLogFile),
		NoticeTTL:       v.GetDuration(KeyNoticeTTL),
	}

	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "bookmarks.db")
	}
	if c.ServerURL == "" {
		c.ServerURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Mode != ModeLocal && c.Mode != ModeRemote {
		return fmt.Errorf("invalid mode %q: must be %s or %s", c.Mode, ModeLocal, ModeRemote)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("invalid refresh interval %s", c.RefreshInterval)
	}
	return nil
}

// SessionPath is where the CLI keeps the session token for remote mode
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.json")
}

// PIDPath is where a running server records its process id
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir, "bookmarks.pid")
}
