// Package config holds the runtime configuration for the assistant. A Config is built once
// at startup by Load and passed by value afterwards; nothing mutates it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel        = "gemini-2.5-flash-preview-05-20"
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = time.Second
	DefaultTimeout      = 30 * time.Second
	DefaultPort         = "5000"
	DefaultArchiveIndex = "vision-exchanges"

	// MaxAttemptsLimit bounds max_attempts so the exponential backoff stays finite.
	MaxAttemptsLimit = 32
)

const (
	envKeyAPIKey       = "GEMINI_API_KEY"
	envKeyBaseURL      = "GEMINI_BASE_URL"
	envKeyModel        = "GEMINI_MODEL"
	envKeyMaxAttempts  = "GEMINI_MAX_ATTEMPTS"
	envKeyInitialDelay = "GEMINI_INITIAL_DELAY"
	envKeyTimeout      = "GEMINI_TIMEOUT"
	envKeyPort         = "PORT"

	envKeyArchiveHost     = "OPENSEARCH_HOST"
	envKeyArchiveIndex    = "OPENSEARCH_INDEX"
	envKeyArchiveUsername = "OPENSEARCH_USERNAME"
	envKeyArchivePassword = "OPENSEARCH_PASSWORD"
	envKeyArchiveInsecure = "OPENSEARCH_INSECURE"
	envKeyArchiveFile     = "VISION_ARCHIVE_FILE"
)

// Config is the full set of recognized options.
type Config struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Timeout      time.Duration `yaml:"timeout"`
	Port         string        `yaml:"port"`

	Archive Archive `yaml:"archive"`
}

// Archive configures the optional exchange archive: an OpenSearch index when addresses are
// set, otherwise a local JSON file when File is set. It is disabled when neither is.
type Archive struct {
	File string `yaml:"file"`

	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`

	// Insecure skips TLS verification, for local clusters with self-signed certificates.
	Insecure bool `yaml:"insecure"`
}

func (a Archive) Enabled() bool {
	return a.UsesOpenSearch() || a.File != ""
}

func (a Archive) UsesOpenSearch() bool {
	return len(a.Addresses) > 0
}

// Default returns a Config with every default applied and no API key.
func Default() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		Model:        DefaultModel,
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Timeout:      DefaultTimeout,
		Port:         DefaultPort,
		Archive: Archive{
			Index: DefaultArchiveIndex,
		},
	}
}

// Load is Read followed by Validate.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read builds the configuration from defaults, then the YAML file at path (skipped when path
// is empty), then environment variables. It does not validate, so callers that source some
// options elsewhere (the API key from a secret store) can fill them in first.
func Read(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		fileBytes, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(fileBytes, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.APIKey = envOr(envKeyAPIKey, cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(envOr(envKeyBaseURL, cfg.BaseURL), "/")
	cfg.Model = envOr(envKeyModel, cfg.Model)
	cfg.Port = envOr(envKeyPort, cfg.Port)

	if v := os.Getenv(envKeyMaxAttempts); v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("failed to parse %s=%q: %w", envKeyMaxAttempts, v, err)
		}
		cfg.MaxAttempts = attempts
	}
	if v := os.Getenv(envKeyInitialDelay); v != "" {
		delay, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("failed to parse %s=%q: %w", envKeyInitialDelay, v, err)
		}
		cfg.InitialDelay = delay
	}
	if v := os.Getenv(envKeyTimeout); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("failed to parse %s=%q: %w", envKeyTimeout, v, err)
		}
		cfg.Timeout = timeout
	}

	if v := os.Getenv(envKeyArchiveHost); v != "" {
		var addresses []string
		for _, host := range strings.Split(v, ",") {
			host = strings.TrimSpace(host)
			if host == "" {
				continue
			}
			if !strings.Contains(host, "://") {
				host = "https://" + host
			}
			addresses = append(addresses, host)
		}
		cfg.Archive.Addresses = addresses
	}
	cfg.Archive.File = envOr(envKeyArchiveFile, cfg.Archive.File)
	cfg.Archive.Index = envOr(envKeyArchiveIndex, cfg.Archive.Index)
	cfg.Archive.Username = envOr(envKeyArchiveUsername, cfg.Archive.Username)
	cfg.Archive.Password = envOr(envKeyArchivePassword, cfg.Archive.Password)
	if v := os.Getenv(envKeyArchiveInsecure); v != "" {
		insecure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("failed to parse %s=%q: %w", envKeyArchiveInsecure, v, err)
		}
		cfg.Archive.Insecure = insecure
	}

	return nil
}

// Validate reports the first option that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.APIKey == "":
		return errors.New("missing API key: set " + envKeyAPIKey + " or api_key in the config file")
	case c.BaseURL == "":
		return errors.New("base_url must not be empty")
	case c.Model == "":
		return errors.New("model must not be empty")
	case c.MaxAttempts < 1 || c.MaxAttempts > MaxAttemptsLimit:
		return fmt.Errorf("max_attempts must be between 1 and %d, got %d", MaxAttemptsLimit, c.MaxAttempts)
	case c.InitialDelay < 0:
		return fmt.Errorf("initial_delay must not be negative, got %s", c.InitialDelay)
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	case c.Archive.UsesOpenSearch() && c.Archive.Index == "":
		return errors.New("archive index must not be empty when archive addresses are set")
	}
	return nil
}

// Endpoint is the generateContent URL for the configured model.
func (c Config) Endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.BaseURL, "/"), c.Model)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
