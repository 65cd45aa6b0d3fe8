package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// Config holds oplogctl defaults. Command-line flags override whatever
// the config file sets.
type Config struct {
	// Format is the default output format: table or json.
	Format string `toml:"format"`
	// Strict stops decoding at the first malformed record instead of
	// skipping it.
	Strict bool `toml:"strict"`
}

func defaultConfig() Config {
	return Config{Format: formatTable}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Format == "" {
		cfg.Format = formatTable
	}
	return cfg, nil
}
