// Package config provides configuration management for smartspend.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Home      string
	DBPath    string
	Currency  string
	Sync      SyncConfig
	Probe     ProbeConfig
	Beancount BeancountConfig
	Debug     bool
}

// SyncConfig represents sync engine and replica client settings.
type SyncConfig struct {
	Debounce    time.Duration
	HTTPTimeout time.Duration
	CheckStatus bool
}

// ProbeConfig represents the connectivity probe settings.
type ProbeConfig struct {
	Addr     string
	Interval time.Duration
}

// BeancountConfig represents Beancount export configuration.
type BeancountConfig struct {
	Root        string
	MappingFile string
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	// Load .env file
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	home := os.Getenv("SMARTSPEND_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		home = filepath.Join(userHome, ".smartspend")
	}

	debounce, err := parseDurationEnv("SMARTSPEND_SYNC_DEBOUNCE", 2*time.Second)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := parseDurationEnv("SMARTSPEND_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	probeInterval, err := parseDurationEnv("SMARTSPEND_PROBE_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	checkStatus, err := parseBoolEnv("SMARTSPEND_CHECK_STATUS", false)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Home:     home,
		DBPath:   os.Getenv("SMARTSPEND_DB_PATH"),
		Currency: strings.ToUpper(getEnvOrDefault("SMARTSPEND_CURRENCY", "BDT")),
		Sync: SyncConfig{
			Debounce:    debounce,
			HTTPTimeout: httpTimeout,
			CheckStatus: checkStatus,
		},
		Probe: ProbeConfig{
			Addr:     os.Getenv("SMARTSPEND_PROBE_ADDR"),
			Interval: probeInterval,
		},
		Beancount: BeancountConfig{
			Root:        os.Getenv("BEANCOUNT_ROOT"),
			MappingFile: os.Getenv("SMARTSPEND_MAPPING_FILE"),
		},
		Debug: os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// Validate validates the configuration.
// It checks if all required fields are set.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) < 2 {
			continue
		}

		var value string
		switch path[0] {
		case "smartspend":
			switch path[1] {
			case "home":
				value = c.Home
			case "currency":
				value = c.Currency
			}
		case "probe":
			switch path[1] {
			case "addr":
				value = c.Probe.Addr
			}
		case "beancount":
			switch path[1] {
			case "root":
				value = c.Beancount.Root
			case "mappingFile":
				value = c.Beancount.MappingFile
			}
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationEnv parses a time.Duration from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}

	return parsed, nil
}

// parseBoolEnv parses a bool from an environment variable.
func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean value for %s: %s", key, value)
	}

	return parsed, nil
}
