// Package config provides configuration management for codeops.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// CODEOPS_SERVER_PORT=9000.
const EnvPrefix = "codeops"

// Config is the main configuration object. It is constructed once and
// threaded through every component; there is no ambient global state.
type Config struct {
	Debug bool `toml:"debug" envconfig:"DEBUG"`

	Server        ServerConfig       `toml:"server" envconfig:"SERVER"`
	Resolver      ResolverConfig     `toml:"resolver" envconfig:"RESOLVER"`
	Cache         CacheConfig        `toml:"cache" envconfig:"CACHE"`
	Facade        FacadeConfig       `toml:"facade" envconfig:"FACADE"`
	Notifications NotificationConfig `toml:"notifications" envconfig:"NOTIFICATIONS"`
	Logging       LoggingConfig      `toml:"logging" envconfig:"LOGGING"`
}

// ServerConfig controls how the server process is spawned and supervised.
type ServerConfig struct {
	Port             int    `toml:"port" envconfig:"PORT"`
	Host             string `toml:"host" envconfig:"HOST"`
	DisableTelemetry bool   `toml:"disable_telemetry" envconfig:"DISABLE_TELEMETRY"`
	// ConnectionToken secures the local server. Empty disables the token,
	// "auto" generates a fresh token per start, anything else is passed
	// through verbatim.
	ConnectionToken string `toml:"connection_token" envconfig:"CONNECTION_TOKEN"`
	// ExtraArgs are appended to the server command line verbatim, in order.
	ExtraArgs        []string `toml:"extra_args" envconfig:"EXTRA_ARGS"`
	StartupTimeout   int      `toml:"startup_timeout" envconfig:"STARTUP_TIMEOUT"`
	GracefulStopWait int      `toml:"graceful_stop_wait" envconfig:"GRACEFUL_STOP_WAIT"`
}

// ResolverConfig controls version resolution endpoints.
type ResolverConfig struct {
	// APIVersion is the frontend library version to resolve a server build
	// for; "latest" selects the highest published release.
	APIVersion          string `toml:"api_version" envconfig:"API_VERSION"`
	ReleasesURL         string `toml:"releases_url" envconfig:"RELEASES_URL"`
	ManifestURLTemplate string `toml:"manifest_url_template" envconfig:"MANIFEST_URL_TEMPLATE"`
	DownloadURLTemplate string `toml:"download_url_template" envconfig:"DOWNLOAD_URL_TEMPLATE"`
	Timeout             int    `toml:"timeout" envconfig:"TIMEOUT"`
}

// CacheConfig controls the local archive store.
type CacheConfig struct {
	Dir string `toml:"dir" envconfig:"DIR"`
	// KeepPatterns are doublestar globs matched against entry names that
	// `cache clear` preserves.
	KeepPatterns []string `toml:"keep_patterns" envconfig:"KEEP_PATTERNS"`
}

// FacadeConfig controls the optional local HTTP control surface.
type FacadeConfig struct {
	Enabled bool   `toml:"enabled" envconfig:"ENABLED"`
	Listen  string `toml:"listen" envconfig:"LISTEN"`
}

// NotificationConfig controls lifecycle webhook notifications.
type NotificationConfig struct {
	WebhookURL string `toml:"webhook_url" envconfig:"WEBHOOK_URL"`
	OnReady    bool   `toml:"on_ready" envconfig:"ON_READY"`
	OnStop     bool   `toml:"on_stop" envconfig:"ON_STOP"`
	OnFailure  bool   `toml:"on_failure" envconfig:"ON_FAILURE"`
}

// LoggingConfig defines log output levels and formats.
type LoggingConfig struct {
	Level          string `toml:"level" envconfig:"LEVEL"`
	Format         string `toml:"format" envconfig:"FORMAT"`
	FileEnabled    bool   `toml:"file_enabled" envconfig:"FILE_ENABLED"`
	ConsoleEnabled bool   `toml:"console_enabled" envconfig:"CONSOLE_ENABLED"`
	Dir            string `toml:"dir" envconfig:"DIR"`
}

// DefaultConfig returns a configuration with production-ready defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Debug: false,
		Server: ServerConfig{
			Port:             8001,
			Host:             "127.0.0.1",
			DisableTelemetry: true,
			ConnectionToken:  "",
			ExtraArgs:        []string{"--accept-server-license-terms"},
			StartupTimeout:   30,
			GracefulStopWait: 10,
		},
		Resolver: ResolverConfig{
			APIVersion:          "latest",
			ReleasesURL:         "https://api.github.com/repos/CodinGame/monaco-vscode-api/tags",
			ManifestURLTemplate: "https://raw.githubusercontent.com/CodinGame/monaco-vscode-api/%s/package.json",
			DownloadURLTemplate: "https://update.code.visualstudio.com/commit:%s/%s/%s",
			Timeout:             300,
		},
		Cache: CacheConfig{
			Dir:          defaultCacheDir(),
			KeepPatterns: []string{},
		},
		Facade: FacadeConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8002",
		},
		Notifications: NotificationConfig{
			WebhookURL: "",
			OnReady:    true,
			OnStop:     true,
			OnFailure:  true,
		},
		Logging: LoggingConfig{
			Level:          "INFO",
			Format:         "json",
			FileEnabled:    true,
			ConsoleEnabled: true,
			Dir:            filepath.Join(homeDir, ".local", "share", "codeops", "logs"),
		},
	}
}

// defaultCacheDir resolves the server install cache location. The
// VSCODE_SERVER_DIR override is honored for compatibility with other
// monaco-vscode-api tooling.
func defaultCacheDir() string {
	if dir := os.Getenv("VSCODE_SERVER_DIR"); dir != "" {
		return dir
	}
	if cacheDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cacheDir, "codeops", "servers")
	}
	return "./vscode-server"
}

// LoadConfig loads configuration from a file or fallback paths, then applies
// CODEOPS_* environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		configPath = findDefaultConfig()
	}
	if configPath != "" {
		if _, err := toml.DecodeFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// SaveConfig writes the configuration to a TOML file.
func (c *Config) SaveConfig(configPath string) error {
	file, err := os.Create(configPath) //nolint:gosec // config path is user-controlled
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		_ = file.Close() // Close errors are non-critical after successful encoding
	}()

	return toml.NewEncoder(file).Encode(c)
}

// Validate ensures settings are within supported bounds.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d. Must be between 1 and 65535", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Server.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be positive, got %d", c.Server.StartupTimeout)
	}
	if c.Server.GracefulStopWait < 0 {
		return fmt.Errorf("graceful_stop_wait must not be negative, got %d", c.Server.GracefulStopWait)
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	return c.validateLogging()
}

func findDefaultConfig() string {
	candidates := []string{"config.toml"}

	if cfgDir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(cfgDir, "codeops", "config.toml"))
	}
	candidates = append(candidates, "/etc/codeops/config.toml")

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) validateResolver() error {
	if c.Resolver.APIVersion == "" {
		return fmt.Errorf("resolver api_version must not be empty (use \"latest\")")
	}
	if c.Resolver.ReleasesURL == "" || c.Resolver.ManifestURLTemplate == "" || c.Resolver.DownloadURLTemplate == "" {
		return fmt.Errorf("resolver endpoint URLs must not be empty")
	}
	if c.Resolver.Timeout <= 0 {
		return fmt.Errorf("resolver timeout must be positive, got %d", c.Resolver.Timeout)
	}
	return nil
}

func (c *Config) validateLogging() error {
	validLevels := []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}
	level := strings.ToUpper(c.Logging.Level)
	if !slices.Contains(validLevels, level) {
		return fmt.Errorf("invalid log level: %s. Must be one of %v", c.Logging.Level, validLevels)
	}
	c.Logging.Level = level

	validFormats := []string{"json", "text"}
	format := strings.ToLower(c.Logging.Format)
	if !slices.Contains(validFormats, format) {
		return fmt.Errorf("invalid log format: %s. Must be one of %v", c.Logging.Format, validFormats)
	}
	c.Logging.Format = format
	return nil
}
