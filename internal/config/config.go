// Package config resolves settings from defaults, an optional YAML file,
// ISSUEDESK_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sadopc/issuedesk/internal/store"
)

const EnvPrefix = "ISSUEDESK"

const (
	KeyDBPath       = "db_path"
	KeySaveDelay    = "save_delay"
	KeyFreeTagLimit = "free_tag_limit"
	KeyInboxDir     = "inbox_dir"
	KeyRemoteDSN    = "remote_dsn"
	KeyPollInterval = "poll_interval"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
	KeyLogFile      = "log_file"
)

// flagNames maps config keys to the command-line flags that set them.
var flagNames = map[string]string{
	KeyDBPath:       "db",
	KeySaveDelay:    "save-delay",
	KeyFreeTagLimit: "free-tag-limit",
	KeyInboxDir:     "inbox",
	KeyRemoteDSN:    "remote-dsn",
	KeyPollInterval: "poll-interval",
	KeyLogLevel:     "log-level",
	KeyLogFormat:    "log-format",
	KeyLogFile:      "log-file",
}

type Config struct {
	DBPath       string
	SaveDelay    time.Duration
	FreeTagLimit int
	// InboxDir and RemoteDSN enable the remote feeds when set.
	InboxDir     string
	RemoteDSN    string
	PollInterval time.Duration
	LogLevel     string
	LogFormat    string
	LogFile      string
}

// DefaultFile is config.yaml under the user config directory.
func DefaultFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "issuedesk", "config.yaml"), nil
}

// Load resolves the configuration. An explicit path must exist; without
// one the default file is read if present. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetDefault(KeyDBPath, "")
	v.SetDefault(KeySaveDelay, 3*time.Second)
	v.SetDefault(KeyFreeTagLimit, 3)
	v.SetDefault(KeyInboxDir, "")
	v.SetDefault(KeyRemoteDSN, "")
	v.SetDefault(KeyPollInterval, 5*time.Second)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagNames {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if def, err := DefaultFile(); err == nil {
		v.SetConfigName(strings.TrimSuffix(filepath.Base(def), filepath.Ext(def)))
		v.AddConfigPath(filepath.Dir(def))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		DBPath:       v.GetString(KeyDBPath),
		SaveDelay:    v.GetDuration(KeySaveDelay),
		FreeTagLimit: v.GetInt(KeyFreeTagLimit),
		InboxDir:     v.GetString(KeyInboxDir),
		RemoteDSN:    v.GetString(KeyRemoteDSN),
		PollInterval: v.GetDuration(KeyPollInterval),
		LogLevel:     strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:    strings.ToLower(v.GetString(KeyLogFormat)),
		LogFile:      v.GetString(KeyLogFile),
	}
	if cfg.DBPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return Config{}, fmt.Errorf("resolve db path: %w", err)
		}
		cfg.DBPath = p
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.SaveDelay < 0:
		return fmt.Errorf("%s must not be negative", KeySaveDelay)
	case c.PollInterval <= 0:
		return fmt.Errorf("%s must be positive", KeyPollInterval)
	case c.FreeTagLimit < 1:
		return fmt.Errorf("%s must be at least 1", KeyFreeTagLimit)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, c.LogFormat)
	}
	return nil
}

// RegisterFlags adds the flags Load knows how to bind.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(flagNames[KeyDBPath], "", "database file (default <config dir>/issuedesk/issuedesk.db)")
	fs.Duration(flagNames[KeySaveDelay], 3*time.Second, "delay before queued edits are saved")
	fs.Int(flagNames[KeyFreeTagLimit], 3, "tags allowed before the full version is unlocked")
	fs.String(flagNames[KeyInboxDir], "", "directory watched for remote change-set files")
	fs.String(flagNames[KeyRemoteDSN], "", "Postgres DSN of the remote change feed")
	fs.Duration(flagNames[KeyPollInterval], 5*time.Second, "remote feed poll interval")
	fs.String(flagNames[KeyLogLevel], "warn", "log level: debug, info, warn, error")
	fs.String(flagNames[KeyLogFormat], "text", "log format: text or json")
	fs.String(flagNames[KeyLogFile], "", "log file (default <cache dir>/issuedesk/issuedesk.log)")
}
