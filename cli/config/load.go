package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file over the defaults, expands environment
// variables, and unmarshals into a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} patterns with environment
// variable values. Unset variables without defaults expand to empty string;
// required values fail later at Validate rather than here.
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		if value, ok := os.LookupEnv(groups[1]); ok && value != "" {
			return value
		}
		if len(groups) >= 3 {
			return groups[2]
		}
		return ""
	})
}

// ApplyEnv overlays HOPPER_* environment variables onto the config.
// Unset variables leave the corresponding field untouched.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Store.Endpoint, "HOPPER_ENDPOINT")
	setString(&cfg.Store.AccessKey, "HOPPER_ACCESS_KEY")
	setString(&cfg.Store.SecretKey, "HOPPER_SECRET_KEY")
	setString(&cfg.Store.Region, "HOPPER_REGION")
	setString(&cfg.Store.Bucket, "HOPPER_BUCKET")
	setString(&cfg.Store.Prefix, "HOPPER_PREFIX")
	setString(&cfg.Store.Versioning, "HOPPER_BUCKET_VERSIONING")

	setString(&cfg.Folders.Input, "HOPPER_INPUT_FOLDER")
	setString(&cfg.Folders.Temp, "HOPPER_TEMP_FOLDER")
	setString(&cfg.Folders.Archive, "HOPPER_ARCHIVE_FOLDER")
	setString(&cfg.Folders.LogFile, "HOPPER_LOG_FILE")

	setInt(&cfg.Pipeline.MaxConcurrentFiles, "HOPPER_MAX_CONCURRENT_FILES")

	setFloat(&cfg.Filter.Min, "HOPPER_FILTER_MIN")
	setFloat(&cfg.Filter.Max, "HOPPER_FILTER_MAX")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setFloat(dst *float64, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}
