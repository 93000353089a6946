package config

import (
	"os"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Config carries the storage-layer settings the tools run with.
type Config struct {
	DataDir  string
	PoolSize int
	LogLevel string
}

func Default() *Config {
	return &Config{
		DataDir:  "data",
		PoolSize: 64,
		LogLevel: "info",
	}
}

// Load reads an ini file of the form:
//
//	[storage]
//	data_dir  = data
//	pool_size = 64
//
//	[log]
//	level = info
//
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "load config %s", path)
	}

	storage := f.Section("storage")
	cfg.DataDir = storage.Key("data_dir").MustString(cfg.DataDir)
	cfg.PoolSize = storage.Key("pool_size").MustInt(cfg.PoolSize)
	cfg.LogLevel = f.Section("log").Key("level").MustString(cfg.LogLevel)

	if cfg.PoolSize < 1 {
		return nil, pkgerrors.Errorf("pool_size must be positive, got %d", cfg.PoolSize)
	}
	return cfg, nil
}
