package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// BackendURL is the base URL of the news-topic backend. The gateway appends "/api".
	BackendURL string `json:"backend_url" validate:"required,url"`

	// RequestTimeoutSeconds bounds every gateway request.
	RequestTimeoutSeconds int `json:"request_timeout_seconds" validate:"gte=1,lte=600"`

	// BreakerDisabled turns off the gateway circuit breaker.
	BreakerDisabled bool `json:"breaker_disabled,omitempty"`

	// BreakerFailureThreshold is the number of consecutive failures that opens the breaker.
	BreakerFailureThreshold int `json:"breaker_failure_threshold,omitempty" validate:"gte=0"`

	// BreakerOpenSeconds is how long an open breaker rejects calls before probing again.
	BreakerOpenSeconds int `json:"breaker_open_seconds,omitempty" validate:"gte=0"`

	// UIBind and UIPort address the web UI.
	UIBind string `json:"ui_bind,omitempty"`
	UIPort int    `json:"ui_port,omitempty" validate:"gte=0,lte=65535"`

	// BackendBind and BackendPort address the development backend (topicnav backend).
	BackendBind string `json:"backend_bind,omitempty"`
	BackendPort int    `json:"backend_port,omitempty" validate:"gte=0,lte=65535"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`

	// LogJSON switches the logger from console to JSON encoding.
	LogJSON bool `json:"log_json,omitempty"`

	// DBMaxOpenConns limits the development backend's open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle database connections. 0 means use sql.DB default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type names ("topic", "posts", "summary") to disable entirely.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BackendURL:              "http://localhost:5001",
		RequestTimeoutSeconds:   30,
		BreakerFailureThreshold: 5,
		BreakerOpenSeconds:      30,
		UIBind:                  "127.0.0.1",
		UIPort:                  8080,
		BackendBind:             "127.0.0.1",
		BackendPort:             5001,
		LogLevel:                "info",
	}
}

// RequestTimeout returns the gateway request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// BreakerOpenTimeout returns how long the breaker stays open.
func (c *Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenSeconds) * time.Second
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.topicnav.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.topicnav) and repo (.topicnav) directories.
// Repo config is found by walking upward from startDir to find the nearest .topicnav/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .topicnav/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".topicnav", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.BackendURL = firstString(overlay.BackendURL, base.BackendURL)
	result.UIBind = firstString(overlay.UIBind, base.UIBind)
	result.BackendBind = firstString(overlay.BackendBind, base.BackendBind)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)

	result.RequestTimeoutSeconds = firstInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)
	result.BreakerFailureThreshold = firstInt(overlay.BreakerFailureThreshold, base.BreakerFailureThreshold)
	result.BreakerOpenSeconds = firstInt(overlay.BreakerOpenSeconds, base.BreakerOpenSeconds)
	result.UIPort = firstInt(overlay.UIPort, base.UIPort)
	result.BackendPort = firstInt(overlay.BackendPort, base.BackendPort)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.BreakerDisabled = base.BreakerDisabled || overlay.BreakerDisabled
	result.LogJSON = base.LogJSON || overlay.LogJSON

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// ApplyEnv overrides cfg from the process environment. A .env file in the working
// directory is loaded first when present; variables already set in the environment win.
//
//	TOPICNAV_BACKEND_URL (or BACKEND_URL)  backend base URL
//	TOPICNAV_REQUEST_TIMEOUT               request timeout in seconds
//	TOPICNAV_LOG_LEVEL                     debug|info|warn|error
//	TOPICNAV_LOG_JSON                      true|1 for JSON logs
//	PORT                                   development backend port (1024-65535)
//
// Returns warnings for values that were present but ignored.
func ApplyEnv(cfg *Config) []string {
	_ = godotenv.Load()
	return applyEnv(cfg, os.Getenv)
}

func applyEnv(cfg *Config, getenv func(string) string) []string {
	var warnings []string

	if v := firstString(getenv("TOPICNAV_BACKEND_URL"), getenv("BACKEND_URL")); v != "" {
		cfg.BackendURL = strings.TrimRight(v, "/")
	}
	if v := getenv("TOPICNAV_REQUEST_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.RequestTimeoutSeconds = secs
		} else {
			warnings = append(warnings, fmt.Sprintf("ignoring TOPICNAV_REQUEST_TIMEOUT=%q", v))
		}
	}
	if v := getenv("TOPICNAV_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv("TOPICNAV_LOG_JSON"); v != "" {
		cfg.LogJSON = v == "true" || v == "1"
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1024 || port > 65535 {
			warnings = append(warnings, fmt.Sprintf("ignoring PORT=%q, using %d", v, cfg.BackendPort))
		} else {
			cfg.BackendPort = port
		}
	}

	return warnings
}

func firstString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
