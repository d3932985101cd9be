// Package config reads runtime settings from the environment (optionally
// seeded from a .env file) into typed values.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var Drivers = []string{DriverSQLite, DriverFile, DriverPostgres, DriverMemory}

const (
	defaultPort            = "3000"
	defaultDriver          = DriverSQLite
	defaultDBPath          = "./db/inspections.db"
	defaultFileStorePath   = "./data/inspections.buntdb"
	defaultDatabaseURL     = "postgres://localhost/inspections?sslmode=disable"
	defaultNATSPort        = 4222
	defaultNATSDataDir     = "./data/nats"
	defaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	Port            string
	StoreDriver     string
	DBPath          string
	FileStorePath   string
	DatabaseURL     string
	NATSEnabled     bool
	NATSPort        int
	NATSDataDir     string
	ShutdownTimeout time.Duration
}

// LoadDotEnv loads .env into the process environment. A missing file is not
// an error; variables already set win.
func LoadDotEnv(filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil {
		log.Println("No .env file found, using environment variables")
	} else {
		log.Println("Loaded configuration from .env file")
	}
}

// Load reads configuration from environment variables falling back to
// defaults. Malformed numbers and durations fall back too; an unknown store
// driver is an error.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            readEnv("PORT", defaultPort),
		StoreDriver:     strings.ToLower(readEnv("STORE_DRIVER", defaultDriver)),
		DBPath:          readEnv("DB_PATH", defaultDBPath),
		FileStorePath:   readEnv("FILE_STORE_PATH", defaultFileStorePath),
		DatabaseURL:     readEnv("DATABASE_URL", defaultDatabaseURL),
		NATSEnabled:     parseBool("NATS_ENABLED", true),
		NATSPort:        parseInt("NATS_PORT", defaultNATSPort),
		NATSDataDir:     readEnv("NATS_DATA_DIR", defaultNATSDataDir),
		ShutdownTimeout: parseDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}
	if cfg.NATSPort <= 0 {
		cfg.NATSPort = defaultNATSPort
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if !validDriver(cfg.StoreDriver) {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want one of %s)", cfg.StoreDriver, strings.Join(Drivers, ", "))
	}
	return cfg, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func validDriver(driver string) bool {
	for _, d := range Drivers {
		if d == driver {
			return true
		}
	}
	return false
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return def
}
