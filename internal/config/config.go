// Package config loads provcap settings from provcap.yaml in the base path
// and PROVCAP_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/provcap/internal/content"
	"github.com/roach88/provcap/internal/store"
)

const (
	fileName = "provcap"
	fileType = "yaml"
	fileExt  = "provcap.yaml"

	envPrefix = "PROVCAP"

	KeyHash            = "hash"
	KeyCompress        = "compress"
	KeyBusyTimeoutMS   = "busy_timeout_ms"
	KeySnapshotExclude = "snapshot.exclude"
	KeyLogLevel        = "log_level"
)

// DefaultYAML is written by WriteDefault.
const DefaultYAML = `# provcap configuration

# Content digest: blake3 or sha256
hash: blake3

# Store file snapshots zstd-compressed
compress: false

# Wait on a locked database for this long
busy_timeout_ms: 5000

snapshot:
  # Files (relative to this directory) that are never snapshotted
  exclude:
    - ".git/**"
    - ".provenance/**"

# debug, info, warn or error
log_level: info
`

// Config is the resolved configuration.
type Config struct {
	Hash            string
	Compress        bool
	BusyTimeout     time.Duration
	SnapshotExclude []string
	LogLevel        string

	// File is the config file that was read, or "" when none was found.
	File string
}

// Load reads provcap.yaml from dir. Environment variables override file
// values (PROVCAP_HASH, PROVCAP_SNAPSHOT_EXCLUDE, ...). A missing file is
// not an error.
func Load(dir string) (Config, error) {
	v := viper.New()
	v.SetDefault(KeyHash, content.Blake3.Name())
	v.SetDefault(KeyCompress, false)
	v.SetDefault(KeyBusyTimeoutMS, store.DefaultBusyTimeout.Milliseconds())
	v.SetDefault(KeySnapshotExclude, []string{})
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(fileName)
	v.SetConfigType(fileType)
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Hash:            strings.ToLower(v.GetString(KeyHash)),
		Compress:        v.GetBool(KeyCompress),
		BusyTimeout:     time.Duration(v.GetInt64(KeyBusyTimeoutMS)) * time.Millisecond,
		SnapshotExclude: v.GetStringSlice(KeySnapshotExclude),
		LogLevel:        strings.ToLower(v.GetString(KeyLogLevel)),
		File:            v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values Load cannot coerce.
func (c Config) Validate() error {
	if _, err := content.HasherByName(c.Hash); err != nil {
		return fmt.Errorf("config %s: %w", KeyHash, err)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("config %s: must not be negative", KeyBusyTimeoutMS)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config %s: %w", KeyLogLevel, err)
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

// StoreOptions converts the configuration into store options.
func (c Config) StoreOptions(logger *slog.Logger) (store.Options, error) {
	hasher, err := content.HasherByName(c.Hash)
	if err != nil {
		return store.Options{}, err
	}
	return store.Options{
		Hasher:          hasher,
		Compress:        c.Compress,
		BusyTimeout:     c.BusyTimeout,
		SnapshotExclude: c.SnapshotExclude,
		Logger:          logger,
	}, nil
}

// WriteDefault writes DefaultYAML to dir/provcap.yaml unless the file
// exists. Returns whether it wrote.
func WriteDefault(dir string) (bool, error) {
	path := filepath.Join(dir, fileExt)
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultYAML), 0o644); err != nil {
		return false, fmt.Errorf("write config file: %w", err)
	}
	return true, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
}
