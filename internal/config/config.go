package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/cortex-vault/internal/models"
)

const (
	// DefaultBaseURL is the Cortex API address used in local development.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds each backend request.
	DefaultTimeout = 30 * time.Second

	// DefaultSearchLimit is the remote search result count.
	DefaultSearchLimit = 10

	// DeletePolicyOptimistic removes a memory locally and keeps it removed
	// even if the backend delete fails.
	DeletePolicyOptimistic = "optimistic"

	// DeletePolicyRollback removes a memory locally and restores it if the
	// backend delete fails.
	DeletePolicyRollback = "rollback"

	envPrefix = "CORTEX_VAULT"
	dirName   = ".cortex-vault"
)

// Config holds all configuration for cortex-vault.
type Config struct {
	Backend     BackendConfig     `mapstructure:"backend"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Session     SessionConfig     `mapstructure:"session"`
	View        ViewConfig        `mapstructure:"view"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`

	path string
	// loaded holds the resolved values at load time and stored the values
	// from the file and defaults alone. Save uses them to keep env-only
	// values out of the file.
	loaded map[string]any
	stored map[string]any
}

// BackendConfig locates the Cortex API.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CredentialsConfig holds the user's own provider keys, sent with every
// memory request.
type CredentialsConfig struct {
	OpenAIKey   string `mapstructure:"openai_key"`
	SupabaseURL string `mapstructure:"supabase_url"`
	SupabaseKey string `mapstructure:"supabase_key"`
	CohereKey   string `mapstructure:"cohere_key"`
}

// Credentials converts to the wire type.
func (c CredentialsConfig) Credentials() models.Credentials {
	return models.Credentials{
		OpenAIKey:   c.OpenAIKey,
		SupabaseURL: c.SupabaseURL,
		SupabaseKey: c.SupabaseKey,
		CohereKey:   c.CohereKey,
	}
}

// String returns a safe representation with every key masked.
func (c CredentialsConfig) String() string {
	return fmt.Sprintf("Credentials{OpenAIKey:%s, SupabaseURL:%s, SupabaseKey:%s, CohereKey:%s}",
		maskAPIKey(c.OpenAIKey), c.SupabaseURL, maskAPIKey(c.SupabaseKey), maskAPIKey(c.CohereKey))
}

// SessionConfig holds the login session.
type SessionConfig struct {
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserID       string `mapstructure:"user_id"`
	Email        string `mapstructure:"email"`
}

// LoggedIn reports whether an access token is present.
func (s SessionConfig) LoggedIn() bool { return s.AccessToken != "" }

// ViewConfig holds defaults for the memory view.
type ViewConfig struct {
	SortBy       string `mapstructure:"sort_by"`
	SearchLimit  int    `mapstructure:"search_limit"`
	DeletePolicy string `mapstructure:"delete_policy"`
}

// ServerConfig holds view server settings.
type ServerConfig struct {
	ListenAddr  string   `mapstructure:"listen_addr"`
	AuthToken   string   `mapstructure:"auth_token"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if key == "" {
		return ""
	}
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// Load reads configuration from the default locations, a .env file and
// environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from the default search paths
// when path is empty. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := newViper(true)
	if err := readConfig(v, path); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Same file without the environment: what Save may write back.
	fv := newViper(false)
	var stored Config
	if used := v.ConfigFileUsed(); used != "" {
		if err := readConfig(fv, used); err != nil {
			return nil, err
		}
	}
	if err := fv.Unmarshal(&stored); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.loaded = cfg.values()
	cfg.stored = stored.values()

	switch {
	case path != "":
		cfg.path = path
	case v.ConfigFileUsed() != "":
		cfg.path = v.ConfigFileUsed()
	default:
		cfg.path = DefaultPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// readConfig reads path, or the default search paths when path is empty.
// A missing file is not an error.
func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(homeDir(), dirName))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK: use defaults + env vars
	}
	return nil
}

func newViper(withEnv bool) *viper.Viper {
	v := viper.New()

	v.SetDefault("backend.base_url", DefaultBaseURL)
	v.SetDefault("backend.timeout", DefaultTimeout)

	v.SetDefault("credentials.openai_key", "")
	v.SetDefault("credentials.supabase_url", "")
	v.SetDefault("credentials.supabase_key", "")
	v.SetDefault("credentials.cohere_key", "")

	v.SetDefault("session.access_token", "")
	v.SetDefault("session.refresh_token", "")
	v.SetDefault("session.user_id", "")
	v.SetDefault("session.email", "")

	v.SetDefault("view.sort_by", "date")
	v.SetDefault("view.search_limit", DefaultSearchLimit)
	v.SetDefault("view.delete_policy", DeletePolicyOptimistic)

	v.SetDefault("server.listen_addr", ":8090")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if !withEnv {
		return v
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The Next.js front-ends read the API address from this variable.
	_ = v.BindEnv("backend.base_url", envPrefix+"_BACKEND_BASE_URL", "NEXT_PUBLIC_API_URL")
	_ = v.BindEnv("credentials.openai_key", envPrefix+"_CREDENTIALS_OPENAI_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("credentials.cohere_key", envPrefix+"_CREDENTIALS_COHERE_KEY", "COHERE_API_KEY")

	return v
}

// Validate checks that configuration fields are set and consistent. Every
// problem is reported, not just the first.
func (c *Config) Validate() error {
	var result error

	if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL))
	}
	if c.Backend.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("backend.timeout must be greater than 0"))
	}
	switch c.View.SortBy {
	case "date", "confidence", "access":
	default:
		result = multierror.Append(result, fmt.Errorf("view.sort_by must be one of [date, confidence, access], got %q", c.View.SortBy))
	}
	if c.View.SearchLimit <= 0 {
		result = multierror.Append(result, fmt.Errorf("view.search_limit must be greater than 0"))
	}
	switch c.View.DeletePolicy {
	case DeletePolicyOptimistic, DeletePolicyRollback:
	default:
		result = multierror.Append(result, fmt.Errorf("view.delete_policy must be %q or %q, got %q",
			DeletePolicyOptimistic, DeletePolicyRollback, c.View.DeletePolicy))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("logging.format must be either 'json' or 'text', got %q", c.Logging.Format))
	}

	return result
}

// Path returns the file Save writes to.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath()
	}
	return c.path
}

// Save writes the configuration to Path, creating the directory if needed.
// The file holds credentials, so it is written with owner-only permissions.
func (c *Config) Save() error {
	return c.SaveAs(c.Path())
}

// SaveAs writes the configuration to path. A value that came only from the
// environment, and was not changed since Load, is written as the file had
// it, so env-only secrets never end up on disk.
func (c *Config) SaveAs(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("saving config: creating directory: %w", err)
	}

	v := viper.New()
	for key, val := range c.values() {
		if c.loaded != nil && reflect.DeepEqual(val, c.loaded[key]) {
			val = c.stored[key]
		}
		v.Set(key, val)
	}
	v.SetConfigType("yaml")
	v.SetConfigPermissions(0o600)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	// WriteConfigAs keeps the mode of an existing file.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("saving config: restricting permissions: %w", err)
	}
	c.path = path
	return nil
}

// values flattens the persisted settings into viper keys.
func (c *Config) values() map[string]any {
	return map[string]any{
		"backend.base_url":         c.Backend.BaseURL,
		"backend.timeout":          c.Backend.Timeout.String(),
		"credentials.openai_key":   c.Credentials.OpenAIKey,
		"credentials.supabase_url": c.Credentials.SupabaseURL,
		"credentials.supabase_key": c.Credentials.SupabaseKey,
		"credentials.cohere_key":   c.Credentials.CohereKey,
		"session.access_token":     c.Session.AccessToken,
		"session.refresh_token":    c.Session.RefreshToken,
		"session.user_id":          c.Session.UserID,
		"session.email":            c.Session.Email,
		"view.sort_by":             c.View.SortBy,
		"view.search_limit":        c.View.SearchLimit,
		"view.delete_policy":       c.View.DeletePolicy,
		"server.listen_addr":       c.Server.ListenAddr,
		"server.auth_token":        c.Server.AuthToken,
		"server.cors_origins":      c.Server.CORSOrigins,
		"logging.level":            c.Logging.Level,
		"logging.format":           c.Logging.Format,
	}
}

// ClearSession forgets the login session.
func (c *Config) ClearSession() {
	c.Session = SessionConfig{}
}

// ClearCredentials forgets the provider keys.
func (c *Config) ClearCredentials() {
	c.Credentials = CredentialsConfig{}
}

// DefaultPath is ~/.cortex-vault/config.yaml.
func DefaultPath() string {
	return filepath.Join(homeDir(), dirName, "config.yaml")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
