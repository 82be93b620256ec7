package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for formbridge.
type Config struct {
	General GeneralConfig `json:"general" yaml:"general"`
	Forms   FormsConfig   `json:"forms" yaml:"forms"`
	MCP     MCPConfig     `json:"mcp" yaml:"mcp"`
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
	Audit   AuditConfig   `json:"audit" yaml:"audit"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
}

// FormsConfig points at the WordPress site hosting the forms API.
type FormsConfig struct {
	RESTRoot       string `json:"restRoot" yaml:"restRoot"` // e.g. https://example.com/wp-json
	Detect         string `json:"detect" yaml:"detect"`     // "always" | "never" | "auto"
	StrictArgs     bool   `json:"strictArgs" yaml:"strictArgs"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	// Username and AppPassword are sent as HTTP basic auth (WordPress
	// application passwords). Both empty means anonymous requests.
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	AppPassword string `json:"appPassword,omitempty" yaml:"appPassword,omitempty"`
}

type MCPConfig struct {
	ServerName string `json:"serverName" yaml:"serverName"`
}

// GatewayConfig configures the HTTP tool gateway.
type GatewayConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	Host               string `json:"host" yaml:"host"`
	Port               int    `json:"port" yaml:"port"`
	APIKey             string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	RateLimitPerMinute int    `json:"rateLimitPerMinute" yaml:"rateLimitPerMinute"` // 0 = unlimited
	Burst              int    `json:"burst" yaml:"burst"`
}

type AuditConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.formbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".formbridge"
	}
	return filepath.Join(home, ".formbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads path, substitutes ${VAR} placeholders, decodes the result over
// Defaults and validates it.
func Load(path string) (*Config, error) {
	cfg, err := decodeFile(path, true)
	if err != nil {
		return nil, err
	}
	expandPaths(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadRaw decodes path over Defaults exactly as written: placeholders and
// "~" stay unexpanded and nothing is validated. Edit and Save the result
// so that secrets referenced through ${VAR} never reach the file.
func LoadRaw(path string) (*Config, error) {
	return decodeFile(path, false)
}

// Resolve returns a copy of a raw config with ${VAR} placeholders in string
// values and "~" in paths expanded, and validates it.
func Resolve(raw *Config) (*Config, error) {
	cfg := *raw
	walkLeaves(reflect.ValueOf(&cfg).Elem(), "", func(_ string, leaf reflect.Value) {
		if leaf.Kind() == reflect.String {
			leaf.SetString(ExpandEnvVars(leaf.String()))
		}
	})
	expandPaths(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func decodeFile(path string, expandEnv bool) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	if expandEnv {
		data = []byte(ExpandEnvVars(string(data)))
	}

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func expandPaths(cfg *Config) {
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// Owner-only: may contain the application password and gateway key.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Forms.RESTRoot != "" {
		u, err := url.Parse(cfg.Forms.RESTRoot)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "forms.restRoot must be an absolute http(s) URL")
		}
	}
	switch cfg.Forms.Detect {
	case "always", "never", "auto":
	default:
		errs = append(errs, "forms.detect must be one of: always, never, auto")
	}
	if cfg.Forms.TimeoutSeconds < 1 || cfg.Forms.TimeoutSeconds > 300 {
		errs = append(errs, "forms.timeoutSeconds must be between 1 and 300")
	}
	if (cfg.Forms.Username == "") != (cfg.Forms.AppPassword == "") {
		errs = append(errs, "forms.username and forms.appPassword must be set together")
	}

	if cfg.MCP.ServerName == "" {
		errs = append(errs, "mcp.serverName must not be empty")
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 0 and 65535")
	}
	if cfg.Gateway.RateLimitPerMinute < 0 {
		errs = append(errs, "gateway.rateLimitPerMinute must be >= 0")
	}
	if cfg.Gateway.RateLimitPerMinute > 0 && cfg.Gateway.Burst < 1 {
		errs = append(errs, "gateway.burst must be >= 1 when rate limiting is enabled")
	}

	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}
	if cfg.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retentionDays must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
