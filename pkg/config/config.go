package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "mfpget/pkg/errors"
)

// Config holds all configuration options for mfpget
type Config struct {
	// Source site settings
	Site SiteConfig `yaml:"site" json:"site"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SiteConfig holds settings for the source site
type SiteConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	// Jobs caps the number of transfers in flight at once
	Jobs       int  `yaml:"jobs" json:"jobs"`
	LatestOnly bool `yaml:"latest_only" json:"latest_only"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:   "https://musicforprogramming.net",
			UserAgent: "mfpget/1.0 (+https://musicforprogramming.net)",
		},
		Download: DownloadConfig{
			Jobs:       8,
			LatestOnly: false,
		},
		Output: OutputConfig{
			Directory: ".",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("MFPGET_BASE_URL"); baseURL != "" {
		c.Site.BaseURL = baseURL
	}
	if userAgent := os.Getenv("MFPGET_USER_AGENT"); userAgent != "" {
		c.Site.UserAgent = userAgent
	}
	if jobs := os.Getenv("MFPGET_JOBS"); jobs != "" {
		if val, err := strconv.Atoi(jobs); err == nil && val > 0 {
			c.Download.Jobs = val
		}
	}
	if outputDir := os.Getenv("MFPGET_OUTPUT_DIR"); outputDir != "" {
		c.Output.Directory = outputDir
	}
	if logLevel := os.Getenv("MFPGET_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".mfpget.yaml",
		".mfpget.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "mfpget", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".mfpget.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Download.Jobs <= 0 {
		errs = append(errs, apperrors.New(apperrors.ErrorTypeConfig, "jobs must be positive"))
	}

	if c.Site.BaseURL == "" {
		errs = append(errs, apperrors.New(apperrors.ErrorTypeConfig, "site base URL is required"))
	} else if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, apperrors.Newf(apperrors.ErrorTypeConfig, "site base URL %q is not an absolute URL", c.Site.BaseURL))
	}

	if c.Output.Directory == "" {
		errs = append(errs, apperrors.New(apperrors.ErrorTypeConfig, "output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, apperrors.Newf(apperrors.ErrorTypeConfig, "invalid log level %q", c.Logging.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	// The flags map only carries "jobs" when the flag was set on the command
	// line, so an explicit zero must reach Validate rather than fall back to
	// the default.
	if jobs, ok := flags["jobs"].(int); ok {
		c.Download.Jobs = jobs
	}
	if latest, ok := flags["latest"].(bool); ok {
		c.Download.LatestOnly = latest
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.Directory = outputDir
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".mfpget.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
