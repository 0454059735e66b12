package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"spscan/database"
	"spscan/domain/scan"
	"spscan/logging"
)

// AppConfig holds application-wide system configuration.
// This is infrastructure configuration, not per-scan user preferences.
type AppConfig struct {
	HTTPAddr     string
	HTTPLogPath  string
	ReportsDir   string
	RegistryDir  string
	StagingDir   string
	GraphBaseURL string
	GraphToken   string
	Database     *database.Config
	Logging      *logging.Config
	ScanDefault  *scan.Parameters
}

// LoadAppConfigFromEnv loads complete application configuration from environment variables.
func LoadAppConfigFromEnv() *AppConfig {
	return &AppConfig{
		HTTPAddr:     getEnvWithDefault("HTTP_ADDR", ":8080"),
		HTTPLogPath:  getEnvWithDefault("HTTP_LOG_PATH", ""),
		ReportsDir:   getEnvWithDefault("REPORTS_DIR", "./reports"),
		RegistryDir:  getEnvWithDefault("REGISTRY_DIR", "./registry"),
		StagingDir:   getEnvWithDefault("STAGING_DIR", "./staging"),
		GraphBaseURL: getEnvWithDefault("GRAPH_BASE_URL", ""),
		GraphToken:   getEnvWithDefault("GRAPH_API_TOKEN", ""),
		Database:     LoadDatabaseConfigFromEnv(),
		Logging:      LoadLoggingConfigFromEnv(),
		ScanDefault:  LoadScanDefaultsFromEnv(),
	}
}

// LoadDatabaseConfigFromEnv loads database configuration from environment variables.
func LoadDatabaseConfigFromEnv() *database.Config {
	return &database.Config{
		Path:              getEnvWithDefault("DB_PATH", "./spscan.db"),
		MaxOpenConns:      getEnvIntWithDefault("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:      getEnvIntWithDefault("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:   getEnvDurationWithDefault("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime:   getEnvDurationWithDefault("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		BusyTimeoutMs:     getEnvIntWithDefault("DB_BUSY_TIMEOUT_MS", 5000),
		EnableForeignKeys: getEnvBoolWithDefault("DB_ENABLE_FOREIGN_KEYS", true),
		EnableWAL:         getEnvBoolWithDefault("DB_ENABLE_WAL", true),
	}
}

// LoadLoggingConfigFromEnv loads logging configuration from environment variables.
func LoadLoggingConfigFromEnv() *logging.Config {
	return &logging.Config{
		Level:  getEnvWithDefault("LOG_LEVEL", "info"),
		Format: getEnvWithDefault("LOG_FORMAT", "json"),
		Output: getEnvWithDefault("LOG_OUTPUT", "stdout"),
	}
}

// LoadScanDefaultsFromEnv loads default scan parameters from environment variables.
// Individual scan requests may override any of these per request.
func LoadScanDefaultsFromEnv() *scan.Parameters {
	defaults := scan.DefaultParameters()
	return &scan.Parameters{
		MaxNestingDepth:    getEnvIntWithDefault("SCAN_MAX_NESTING_DEPTH", defaults.MaxNestingDepth),
		MaxSubsiteDepth:    getEnvIntWithDefault("SCAN_MAX_SUBSITE_DEPTH", defaults.MaxSubsiteDepth),
		SkipHidden:         getEnvBoolWithDefault("SCAN_SKIP_HIDDEN", defaults.SkipHidden),
		BatchSize:          getEnvIntWithDefault("SCAN_BATCH_SIZE", defaults.BatchSize),
		MaxThrottleRetries: getEnvIntWithDefault("SCAN_MAX_THROTTLE_RETRIES", defaults.MaxThrottleRetries),
		MaxTransientRetries: getEnvIntWithDefault("SCAN_MAX_TRANSIENT_RETRIES",
			defaults.MaxTransientRetries),
		RequestsPerSecond: getEnvIntWithDefault("SCAN_REQUESTS_PER_SECOND", defaults.RequestsPerSecond),
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBool(v string, def bool) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// Helper functions for environment variable parsing.
func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return parseBool(value, defaultValue)
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
