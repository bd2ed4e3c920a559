package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	// EnvPrefix prefixes every environment variable read by LoadFromEnv
	EnvPrefix = "DRIVEFETCH_"
	// DefaultBaseURL is the service root all endpoints hang off
	DefaultBaseURL = "https://drive.google.com"
	// DefaultUserAgent is sent with every request
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds application configuration
type Config struct {
	Timeout      int    `yaml:"timeout"` // seconds, 0 disables the client timeout
	MaxRetries   int    `yaml:"max_retries"`
	MaxRedirects int    `yaml:"max_redirects"`
	UserAgent    string `yaml:"user_agent"`
	BaseURL      string `yaml:"base_url"`
	ProxyURL     string `yaml:"proxy"`

	OutputDir     string `yaml:"output_dir"`
	Quiet         bool   `yaml:"quiet"`
	Overwrite     bool   `yaml:"overwrite"`
	HonorModTimes bool   `yaml:"times"`
	FailFast      bool   `yaml:"fail_fast"`

	// Logging configuration
	LogLevel    string `yaml:"log_level"`
	EnableDebug bool   `yaml:"debug"`
	QuietMode   bool   `yaml:"-"`
	LogFile     string `yaml:"log_file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:      0,
		MaxRetries:   3,
		MaxRedirects: 20,
		UserAgent:    DefaultUserAgent,
		BaseURL:      DefaultBaseURL,
		OutputDir:    ".",

		LogLevel: "info",
		LogFile:  "",
	}
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set are kept.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return NewValidationError("env_file", fmt.Sprintf("cannot read %s: %v", path, err))
	}
	return nil
}

// LoadFromFile merges a YAML config file over the current values
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewValidationErrorWithValue("config", fmt.Sprintf("cannot read config file: %v", err), path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewValidationErrorWithValue("config", fmt.Sprintf("invalid YAML: %v", err), path).
			WithSuggestion("Keys are snake_case, e.g. output_dir, fail_fast, log_level")
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if timeout := os.Getenv(EnvPrefix + "TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil && t >= 0 {
			c.Timeout = t
		}
	}

	if retries := os.Getenv(EnvPrefix + "MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil && r >= 0 {
			c.MaxRetries = r
		}
	}

	if redirects := os.Getenv(EnvPrefix + "MAX_REDIRECTS"); redirects != "" {
		if r, err := strconv.Atoi(redirects); err == nil && r > 0 {
			c.MaxRedirects = r
		}
	}

	c.UserAgent = GetEnvWithDefault(EnvPrefix+"USER_AGENT", c.UserAgent)
	c.BaseURL = GetEnvWithDefault(EnvPrefix+"BASE_URL", c.BaseURL)
	c.ProxyURL = GetEnvWithDefault(EnvPrefix+"PROXY", c.ProxyURL)
	c.OutputDir = GetEnvWithDefault(EnvPrefix+"DIR", c.OutputDir)

	loadBool(EnvPrefix+"QUIET", &c.Quiet)
	loadBool(EnvPrefix+"OVERWRITE", &c.Overwrite)
	loadBool(EnvPrefix+"TIMES", &c.HonorModTimes)
	loadBool(EnvPrefix+"FAIL_FAST", &c.FailFast)

	// Load logging configuration from environment
	c.LogLevel = GetEnvWithDefault(EnvPrefix+"LOG_LEVEL", c.LogLevel)
	loadBool(EnvPrefix+"DEBUG", &c.EnableDebug)
	c.LogFile = GetEnvWithDefault(EnvPrefix+"LOG_FILE", c.LogFile)
}

func loadBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

// GetEnvWithDefault returns environment variable value or default
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %d (must be >= 0)", c.Timeout)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d (must be >= 0)", c.MaxRetries)
	}

	if c.MaxRedirects < 1 {
		return fmt.Errorf("invalid max redirects: %d (must be > 0)", c.MaxRedirects)
	}

	if strings.TrimSpace(c.UserAgent) == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base URL: %q", c.BaseURL)
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %q (use debug, info, warn or error)", c.LogLevel)
	}

	return nil
}

// DownloadConfig extracts the engine switches
func (c *Config) DownloadConfig(outputName string) *DownloadConfig {
	return &DownloadConfig{
		OutputName:    outputName,
		Quiet:         c.Quiet,
		Overwrite:     c.Overwrite,
		HonorModTimes: c.HonorModTimes,
		FailFast:      c.FailFast,
	}
}
