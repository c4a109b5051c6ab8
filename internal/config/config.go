// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.nutribot/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: model selection, tool-loop bounds, model-call rate limit
//   - Storage: SQLite database path, upload directory
//   - Lookup: Open Food Facts / USDA / openFDA / PubMed endpoints and keys
//   - Server: listen address, CORS, proxy trust, per-IP rate burst
//
// Security: the Gemini API key is only ever read from the environment and is
// never logged. Validation is comprehensive and fail-fast with sentinel
// errors usable via errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidMaxToolRounds indicates the tool-round bound is out of range.
	ErrInvalidMaxToolRounds = errors.New("invalid max tool rounds")

	// ErrInvalidRequestsPerMinute indicates the model rate limit is invalid.
	ErrInvalidRequestsPerMinute = errors.New("invalid requests per minute")

	// ErrInvalidUploadSize indicates the upload size limit is out of range.
	ErrInvalidUploadSize = errors.New("invalid max upload size")

	// ErrInvalidAddr indicates the listen address is empty.
	ErrInvalidAddr = errors.New("invalid listen address")

	// ErrInvalidDatabasePath indicates the SQLite database path is empty.
	ErrInvalidDatabasePath = errors.New("invalid database path")
)

// Tool-loop bounds. The engine refuses to run unbounded loops; the upper
// bound keeps a misbehaving model from burning the token budget.
const (
	MinToolRounds = 1
	MaxToolRounds = 8
)

// Config stores application configuration.
// SENSITIVE: GeminiAPIKey, USDAAPIKey, OpenFDAAPIKey and NCBIAPIKey must
// never be logged.
type Config struct {
	// AI model configuration
	GeminiAPIKey string `mapstructure:"gemini_api_key" json:"-"`
	Model        string `mapstructure:"model" json:"model"`
	VisionModel  string `mapstructure:"vision_model" json:"vision_model"`

	// Coaching engine configuration
	MaxToolRounds     int `mapstructure:"max_tool_rounds" json:"max_tool_rounds"`
	RequestsPerMinute int `mapstructure:"requests_per_minute" json:"requests_per_minute"`

	// Storage configuration
	DatabasePath    string `mapstructure:"database_path" json:"database_path"`
	UploadDir       string `mapstructure:"upload_dir" json:"upload_dir"`
	MaxUploadSizeMB int    `mapstructure:"max_upload_size_mb" json:"max_upload_size_mb"`

	// HTTP server configuration
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Lookup client configuration
	OpenFoodFactsBaseURL   string `mapstructure:"openfoodfacts_base_url" json:"openfoodfacts_base_url"`
	OpenFoodFactsUserAgent string `mapstructure:"openfoodfacts_user_agent" json:"openfoodfacts_user_agent"`
	USDAAPIKey             string `mapstructure:"usda_api_key" json:"-"`
	USDABaseURL            string `mapstructure:"usda_base_url" json:"usda_base_url"`
	OpenFDAAPIKey          string `mapstructure:"openfda_api_key" json:"-"`
	OpenFDABaseURL         string `mapstructure:"openfda_base_url" json:"openfda_base_url"`
	NCBIAPIKey             string `mapstructure:"ncbi_api_key" json:"-"`
	NCBITool               string `mapstructure:"ncbi_tool" json:"ncbi_tool"`
	NCBIEmail              string `mapstructure:"ncbi_email" json:"ncbi_email"`
	PubMedESearchURL       string `mapstructure:"pubmed_esearch_url" json:"pubmed_esearch_url"`
	PubMedESummaryURL      string `mapstructure:"pubmed_esummary_url" json:"pubmed_esummary_url"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".nutribot")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("model", "gemini-2.5-flash")
	v.SetDefault("vision_model", "gemini-2.5-flash")
	v.SetDefault("max_tool_rounds", 4)
	v.SetDefault("requests_per_minute", 60)

	// Storage defaults
	v.SetDefault("database_path", "nutribot.db")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("max_upload_size_mb", 10)

	// Server defaults
	v.SetDefault("addr", ":8080")
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 60)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	// Lookup defaults
	v.SetDefault("openfoodfacts_base_url", "https://world.openfoodfacts.org/api/v2/search")
	v.SetDefault("openfoodfacts_user_agent",
		"Nutribot/0.1 (https://github.com/nutribot/nutribot; contact=maintainer@example.com)")
	v.SetDefault("usda_base_url", "https://api.nal.usda.gov/fdc/v1/foods/search")
	v.SetDefault("openfda_base_url", "https://api.fda.gov/drug/label.json")
	v.SetDefault("ncbi_tool", "nutribot")
	v.SetDefault("ncbi_email", "maintainer@example.com")
	v.SetDefault("pubmed_esearch_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi")
	v.SetDefault("pubmed_esummary_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esummary.fcgi")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets are only ever read from the environment, never from the file.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	mustBind := func(key string, envVars ...string) {
		args := append([]string{key}, envVars...)
		if err := v.BindEnv(args...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("usda_api_key", "USDA_API_KEY")
	mustBind("openfda_api_key", "OPENFDA_API_KEY")
	mustBind("ncbi_api_key", "NCBI_API_KEY")

	mustBind("model", "NUTRIBOT_MODEL")
	mustBind("vision_model", "NUTRIBOT_VISION_MODEL")
	mustBind("addr", "NUTRIBOT_ADDR")
	mustBind("database_path", "NUTRIBOT_DATABASE_PATH")
	mustBind("upload_dir", "NUTRIBOT_UPLOAD_DIR")
	mustBind("cors_origins", "NUTRIBOT_CORS_ORIGINS")
	mustBind("trust_proxy", "NUTRIBOT_TRUST_PROXY")
	mustBind("log_level", "NUTRIBOT_LOG_LEVEL")
	mustBind("log_json", "NUTRIBOT_LOG_JSON")
	mustBind("max_tool_rounds", "NUTRIBOT_MAX_TOOL_ROUNDS")
	mustBind("requests_per_minute", "NUTRIBOT_REQUESTS_PER_MINUTE")
}

// ModelEnabled reports whether the Gemini gateway can be constructed.
// An absent key is a capability flag, not an error: the engine falls back to
// the deterministic plan generator.
func (c *Config) ModelEnabled() bool {
	return c.GeminiAPIKey != ""
}
