// Package config loads process settings, the model routing table, and the
// secrets the routing table refers to.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix scopes environment overrides, e.g. BRIDGE_SERVER__PORT=9000.
const EnvPrefix = "BRIDGE_"

// DefaultModelOverrideEnv forces every request onto one model. It is kept
// for compatibility with existing deployments and maps to routing.force_model.
const DefaultModelOverrideEnv = "DEFAULT_MODEL_OVERRIDE"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Routing   RoutingConfig   `koanf:"routing"`
	Backend   BackendConfig   `koanf:"backend"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Usage     UsageConfig     `koanf:"usage"`
}

type ServerConfig struct {
	Port         int             `koanf:"port"`
	MaxBodyBytes int64           `koanf:"max_body_bytes"`
	CORSOrigins  []string        `koanf:"cors_origins"`
	RateLimit    RateLimitConfig `koanf:"rate_limit"`

	// RequireAPIKey rejects ingress requests that carry no client key. The
	// key itself is never checked; backends use server-side credentials.
	RequireAPIKey bool `koanf:"require_api_key"`
}

// RateLimitConfig bounds requests per second on the ingress routes. A zero
// RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

type RoutingConfig struct {
	ModelsFile   string `koanf:"models_file"`
	SecretsFile  string `koanf:"secrets_file"`
	DefaultModel string `koanf:"default_model"`
	ForceModel   string `koanf:"force_model"`
}

type BackendConfig struct {
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	Timeout        time.Duration `koanf:"timeout"`
	IncludeUsage   bool          `koanf:"include_usage"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // auto, json, text
	File   string `koanf:"file"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
	// SampleRatio is the fraction of new traces recorded. Traces continued
	// from an inbound traceparent follow the caller's decision.
	SampleRatio float64 `koanf:"sample_ratio"`
}

type UsageConfig struct {
	SQLitePath string `koanf:"sqlite_path"`
}

var defaults = map[string]any{
	"server.port":             8080,
	"server.max_body_bytes":   int64(10 << 20),
	"routing.models_file":     "models.yml",
	"routing.secrets_file":    ".env",
	"backend.connect_timeout": 60 * time.Second,
	"backend.timeout":         300 * time.Second,
	"backend.include_usage":   true,
	"logging.level":           "info",
	"logging.format":          "auto",
	"telemetry.service_name":  "llm-bridge",
	"telemetry.sample_ratio":  1.0,
}

// Load reads path (optional; a missing file is not an error), applies
// BRIDGE_ environment overrides, and fills defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	if v := os.Getenv(DefaultModelOverrideEnv); v != "" && !k.Exists("routing.force_model") {
		k.Set("routing.force_model", v)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that cannot be served.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if c.Server.RateLimit.RPS < 0 {
		return fmt.Errorf("server.rate_limit.rps must not be negative")
	}
	if c.Backend.Timeout <= 0 || c.Backend.ConnectTimeout <= 0 {
		return fmt.Errorf("backend timeouts must be positive")
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_ratio %v must be between 0 and 1", r)
	}
	switch c.Logging.Format {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("logging.format %q must be auto, json or text", c.Logging.Format)
	}
	return nil
}

// Route is one routing-table entry: the adapter that speaks to the backend
// and the names of the secrets holding its credential and base URL.
type Route struct {
	Adapter     string `koanf:"adapter"`
	APIKeyName  string `koanf:"api_key_name"`
	BaseURLName string `koanf:"base_url_name"`
}

// routesDelim never occurs in a model name, so keys such as "gpt-4.1" or
// "anthropic/claude-3.5" stay whole instead of being split into paths.
const routesDelim = "\x1f"

// LoadRoutes reads the routing table: a top-level mapping of client-visible
// model name to Route.
func LoadRoutes(path string) (map[string]Route, error) {
	k := koanf.New(routesDelim)
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load routing table %s: %w", path, err)
	}

	routes := make(map[string]Route, len(k.Raw()))
	for name, v := range k.Raw() {
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Errorf("routing table %s: entry %q is not a mapping", path, name)
		}
		var r Route
		if err := k.Unmarshal(name, &r); err != nil {
			return nil, fmt.Errorf("routing table %s: entry %q: %w", path, name, err)
		}
		r.APIKeyName = substituteEnvVars(r.APIKeyName)
		r.BaseURLName = substituteEnvVars(r.BaseURLName)
		routes[name] = r
	}
	return routes, nil
}

// Secrets holds named credential and endpoint values. Names missing from the
// secrets file fall back to the process environment.
type Secrets map[string]string

func (s Secrets) Lookup(name string) (string, bool) {
	if v, ok := s[name]; ok && v != "" {
		return v, true
	}
	v, ok := os.LookupEnv(name)
	return v, ok && v != ""
}

// LoadSecrets parses a dotenv file. A missing file yields an empty set, so
// every lookup goes to the environment.
func LoadSecrets(path string) (Secrets, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("load secrets %s: %w", path, err)
	}
	return Secrets(vals), nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
