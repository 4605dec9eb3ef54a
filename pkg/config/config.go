package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Storage configuration
	StoragePath  string
	StorageNodes []string

	// Scheme selection
	DefaultPolicy string

	// API configuration
	APIPort int
}

func DefaultConfig() *Config {
	return &Config{
		StoragePath:   "./storage",
		StorageNodes:  []string{"node-1", "node-2", "node-3", "node-4", "node-5"},
		DefaultPolicy: "balanced",
		APIPort:       8080,
	}
}

// Load builds the config from defaults plus a .env file and the process
// environment. A missing .env file is fine.
func Load() *Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		cfg.StoragePath = v
	}
	if v := os.Getenv("STORAGE_NODES"); v != "" {
		nodes := strings.Split(v, ",")
		for i := range nodes {
			nodes[i] = strings.TrimSpace(nodes[i])
		}
		cfg.StorageNodes = nodes
	}
	if v := os.Getenv("DEFAULT_POLICY"); v != "" {
		cfg.DefaultPolicy = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = port
		}
	}
	return cfg
}
