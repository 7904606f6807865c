package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/dataguard/")
	viper.AddConfigPath("$HOME/.dataguard/")

	// Environment variable overrides
	viper.SetEnvPrefix("DATAGUARD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decodeConfig(config)
}

// decodeConfig unmarshals viper's current state over the given defaults,
// normalizes the detection lists and validates the result. Normalization
// happens on the decoded struct, never by writing back into viper: a Set call
// outranks the config file on every later read and would pin the first-seen
// value across hot reloads.
func decodeConfig(config *Config) (*Config, error) {
	if err := viper.Unmarshal(config, decodeOptions()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalizeLists(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// decodeOptions drops viper's stock string-to-slice hook, which splits on
// commas and would corrupt regex patterns containing them. A bare string
// decoding into a list field is lifted to a single element instead, and
// normalizeLists splits it afterwards.
func decodeOptions() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
}

// normalizeLists rewrites detection list values that arrived as delimited
// strings into native lists. Settings stores sometimes hand the pattern lists
// over as one newline-separated string (patterns may legitimately contain
// commas) and the exclusion lists as comma-separated strings. Native lists
// pass through unchanged.
func normalizeLists(config *Config) {
	config.Detection.SensitivePatterns = flattenLines(config.Detection.SensitivePatterns)
	config.Detection.PersonalPatterns = flattenLines(config.Detection.PersonalPatterns)
	config.Detection.ExcludedFields = flattenCommas(config.Detection.ExcludedFields)
	config.Detection.ExcludedProjects = flattenCommas(config.Detection.ExcludedProjects)
}

func flattenLines(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, SplitLines(v)...)
	}
	return out
}

func flattenCommas(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, SplitCommaList(v)...)
	}
	return out
}

// SplitLines splits a newline-separated value into a list, dropping blank
// entries and surrounding whitespace.
func SplitLines(s string) []string {
	return splitAndTrim(s, "\n")
}

// SplitCommaList splits a comma-separated value into a list, dropping blank
// entries and surrounding whitespace.
func SplitCommaList(s string) []string {
	return splitAndTrim(s, ",")
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimSuffix(p, "\r"))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Detection.MaxContentLength <= 0 {
		return fmt.Errorf("invalid max content length: %d", config.Detection.MaxContentLength)
	}

	if config.Detection.AutoCleanupDays < 0 {
		return fmt.Errorf("invalid auto cleanup days: %d", config.Detection.AutoCleanupDays)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes. The callback
// receives a fully validated replacement configuration; a scan in flight keeps
// the snapshot it started with.
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := decodeConfig(GetDefaults())
		if err != nil {
			// Keep the running configuration on a bad edit
			return
		}

		callback(newConfig)
	})

	return nil
}
