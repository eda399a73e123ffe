// Package config loads the storage core's deployment-time settings from a
// YAML file, the way the teacher's own config surfaces do, via
// gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dbcore/erdb/internal/txn"
)

// Config is the top-level deployment configuration.
type Config struct {
	// DataDirectory holds one file per table plus the reserved catalog and
	// transaction log tables.
	DataDirectory string `yaml:"data_directory"`
	// BufferPoolSize is the number of PAGE_SIZE frames held in memory.
	BufferPoolSize int `yaml:"buffer_pool_size"`
	// Bootstrap, when true, initializes a brand-new data directory instead
	// of loading an existing one.
	Bootstrap bool `yaml:"bootstrap"`
	// CheckpointCron is a robfig/cron seconds-enabled expression for the
	// periodic buffer pool flush.
	CheckpointCron string `yaml:"checkpoint_cron"`
	// DefaultIsolation is "repeatable_read" or "read_committed".
	DefaultIsolation string `yaml:"default_isolation"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		DataDirectory:    "./data",
		BufferPoolSize:   256,
		Bootstrap:        false,
		CheckpointCron:   "*/30 * * * * *",
		DefaultIsolation: "repeatable_read",
	}
}

// Load reads and parses a YAML config file, filling in Default() for any
// field left unset.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// Isolation parses DefaultIsolation into a txn.Isolation, defaulting to
// RepeatableRead on an unrecognized or empty value.
func (c Config) Isolation() txn.Isolation {
	if c.DefaultIsolation == "read_committed" {
		return txn.ReadCommitted
	}
	return txn.RepeatableRead
}
