// Package config provides configuration loading for the policy decision
// point.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for
// policy-engine.yaml/.yml in standard locations. The search requires an
// explicit YAML extension to avoid matching the binary itself, which
// Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("policy-engine")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: POLICY_ENGINE_SERVER_PORT
	viper.SetEnvPrefix("POLICY_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Bind nested keys for env var support
	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a policy-engine config
// file with an explicit YAML extension (.yaml or .yml). This prevents
// Viper from matching the binary "policy-engine" (no extension) in the
// current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".policy-engine"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "policy-engine"))
		}
	} else {
		paths = append(paths, "/etc/policy-engine")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for
// policy-engine.yaml or .yml. Returns the full path of the first match, or
// empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "policy-engine"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Example: POLICY_ENGINE_SERVER_PORT overrides server.port.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.host")
	_ = viper.BindEnv("server.port")
	_ = viper.BindEnv("server.grpc_port")
	_ = viper.BindEnv("server.shutdown_grace")

	_ = viper.BindEnv("database.url")
	_ = viper.BindEnv("database.pool_min")
	_ = viper.BindEnv("database.pool_max")
	_ = viper.BindEnv("database.ssl")

	_ = viper.BindEnv("redis.url")
	_ = viper.BindEnv("redis.db")
	_ = viper.BindEnv("redis.key_prefix")
	_ = viper.BindEnv("redis.password")

	_ = viper.BindEnv("cache.enabled")
	_ = viper.BindEnv("cache.ttl")
	_ = viper.BindEnv("cache.max_size")

	_ = viper.BindEnv("rate_limit.window_ms")
	_ = viper.BindEnv("rate_limit.max_requests")

	_ = viper.BindEnv("performance.max_evaluation_time_ms")
	_ = viper.BindEnv("performance.max_policy_size_mb")

	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("audit.retention_days")
	_ = viper.BindEnv("audit.flush_interval")

	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults and dev-mode defaults, validates, and returns the Config.
// Callers that apply CLI flag overrides (e.g. --dev) before validation use
// LoadConfigRaw instead.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only
		// This allows running with pure environment variable configuration
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply default values for optional fields
	cfg.SetDefaults()

	// In dev mode, apply permissive defaults before validation
	cfg.SetDevDefaults()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
