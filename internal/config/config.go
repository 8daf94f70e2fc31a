// Package config loads the supervisor runtime's environment-variable
// configuration. Grounded on the teacher pack's viper-based config loader
// (kdlbs-kandev apps/backend/internal/common/config/config.go), scaled
// down to the settings spec.md §6 names plus the ambient-stack additions
// SPEC_FULL.md adds on top (HTTP listen address, Redis snapshot backend,
// capture concurrency limit).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// defaultDataDir mirrors spec.md §6's DATA_DIR default of
// "$HOME/.<app>/data", falling back to a relative path if the home
// directory can't be resolved (e.g. a minimal container with no HOME).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".procmgr", "data")
}

// Config holds the supervisor runtime's startup and shutdown settings.
// Field names mirror spec.md §6's configuration table exactly; the
// mapstructure tags are the literal environment variable names (no
// prefix, no case translation) since spec.md defines them as such.
type Config struct {
	// AutoExportInterval is how often the runtime exports the current
	// inventory. <= 0 disables periodic export (spec.md §6
	// AUTO_EXPORT_INTERVAL, seconds).
	AutoExportInterval time.Duration `mapstructure:"AUTO_EXPORT_INTERVAL"`

	// ImportFile is the snapshot document read at startup (spec.md §4.8
	// step 3). Defaults to <DataDir>/snapshot.yaml.
	ImportFile string `mapstructure:"IMPORT_FILE"`

	// ExportFile is the snapshot document periodically overwritten
	// (spec.md §4.8 step 5). Defaults to ImportFile.
	ExportFile string `mapstructure:"EXPORT_FILE"`

	// DataDir is the base directory for the snapshot default path
	// (spec.md §6 DATA_DIR).
	DataDir string `mapstructure:"DATA_DIR"`

	// StopOnShutdown selects the shutdown policy (spec.md §4.8 step 6):
	// true ⇒ Stop-all, false ⇒ Detached (the default).
	StopOnShutdown bool `mapstructure:"STOP_ON_SHUTDOWN"`

	// ShutdownGraceMillis bounds how long stop-all shutdown waits per
	// process before forcing a kill (spec.md §6 SHUTDOWN_GRACE_MS).
	ShutdownGraceMillis int `mapstructure:"SHUTDOWN_GRACE_MS"`

	// MaxConcurrentCaptures bounds the output-capture goroutine pool.
	// **[ADD]** not named in spec.md; an ambient-stack addition.
	MaxConcurrentCaptures int `mapstructure:"MAX_CONCURRENT_CAPTURES"`

	// HTTPAddr is the listen address for the minimal health/status HTTP
	// surface. **[ADD]** ambient-stack addition (spec.md §1 excludes the
	// dashboard, not a bare health endpoint).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// RedisAddr, when non-empty, selects the Redis snapshot backend in
	// place of yamlstore. **[ADD]** ambient-stack addition.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	RedisDB   int    `mapstructure:"REDIS_DB"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("AUTO_EXPORT_INTERVAL", 0) // seconds; 0 disables, per spec.md §6
	v.SetDefault("IMPORT_FILE", "")
	v.SetDefault("EXPORT_FILE", "")
	v.SetDefault("DATA_DIR", defaultDataDir())
	v.SetDefault("STOP_ON_SHUTDOWN", false)
	v.SetDefault("SHUTDOWN_GRACE_MS", 3000)
	v.SetDefault("MAX_CONCURRENT_CAPTURES", 256)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
}

// Load reads configuration from the bare environment variable names
// spec.md §6 specifies, falling back to the defaults above. There is no
// config-file support: unlike the teacher pack this runtime is meant to
// run as one container configured purely by environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	for _, key := range []string{
		"AUTO_EXPORT_INTERVAL", "IMPORT_FILE", "EXPORT_FILE", "DATA_DIR",
		"STOP_ON_SHUTDOWN", "SHUTDOWN_GRACE_MS", "MAX_CONCURRENT_CAPTURES",
		"HTTP_ADDR", "REDIS_ADDR", "REDIS_DB",
	} {
		_ = v.BindEnv(key)
	}

	cfg := Config{
		AutoExportInterval:    time.Duration(v.GetInt("AUTO_EXPORT_INTERVAL")) * time.Second,
		ImportFile:            v.GetString("IMPORT_FILE"),
		ExportFile:            v.GetString("EXPORT_FILE"),
		DataDir:               v.GetString("DATA_DIR"),
		StopOnShutdown:        v.GetBool("STOP_ON_SHUTDOWN"),
		ShutdownGraceMillis:   v.GetInt("SHUTDOWN_GRACE_MS"),
		MaxConcurrentCaptures: v.GetInt("MAX_CONCURRENT_CAPTURES"),
		HTTPAddr:              v.GetString("HTTP_ADDR"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisDB:               v.GetInt("REDIS_DB"),
	}

	if cfg.ImportFile == "" {
		cfg.ImportFile = cfg.DataDir + "/snapshot.yaml"
	}
	if cfg.ExportFile == "" {
		cfg.ExportFile = cfg.ImportFile
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.ShutdownGraceMillis <= 0 {
		return fmt.Errorf("SHUTDOWN_GRACE_MS must be positive")
	}
	return nil
}
