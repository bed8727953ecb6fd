// Package kconfig loads the boot manifest consumed by cmd/lk in place
// of the original source's project-file/board-config selection at
// build time: how many CPUs to simulate, which CPUs start out marked
// realtime, and the logging level to boot at.
package kconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the decoded form of lkconfig.toml.
type Config struct {
	NumCPUs      uint32   `toml:"num_cpus"`
	RealtimeCPUs []uint32 `toml:"realtime_cpus"`
	LogLevel     string   `toml:"log_level"`
}

// Default returns the manifest used when no file is supplied.
func Default() Config {
	return Config{NumCPUs: 1, LogLevel: "info"}
}

// Load parses path as TOML into a Config seeded with Default's values.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("kconfig: load %s: %w", path, err)
	}
	if cfg.NumCPUs == 0 {
		return Config{}, fmt.Errorf("kconfig: num_cpus must be > 0")
	}
	return cfg, nil
}
