// Package config implements the ambient Configuration component: the
// registry's env/flag/file driven settings struct, grounded on the
// teacher's configuration/ package shape (a nested struct decoded from
// YAML) and generalized with mapstructure so environment variables can
// override any field without hand-written parsing per field.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

// Storage configures the byte-level persistence layer (§4.2, §6's
// storage_root).
type Storage struct {
	Root   string `yaml:"root" mapstructure:"root"`
	Driver string `yaml:"driver" mapstructure:"driver"` // "filesystem" or "s3"
	S3     struct {
		Region string `yaml:"region" mapstructure:"region"`
		Bucket string `yaml:"bucket" mapstructure:"bucket"`
		Prefix string `yaml:"prefix" mapstructure:"prefix"`
	} `yaml:"s3" mapstructure:"s3"`
}

// Database configures the Catalog Store's connection (§6's db_path).
type Database struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// HTTP configures the listener the Protocol Router binds (§6's
// port/host/tls cert/key paths).
type HTTP struct {
	Host    string `yaml:"host" mapstructure:"host"`
	Port    int    `yaml:"port" mapstructure:"port"`
	TLSCert string `yaml:"tls_cert,omitempty" mapstructure:"tls_cert"`
	TLSKey  string `yaml:"tls_key,omitempty" mapstructure:"tls_key"`
}

// Addr renders Host:Port for net.Listen / http.Server.Addr.
func (h HTTP) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// Auth configures the Auth & Scope component's JWT signing and the
// default-admin bootstrap account (§6's jwt_secret and first-run admin
// email/password).
type Auth struct {
	JWTSecret     string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer        string        `yaml:"issuer" mapstructure:"issuer"`
	Service       string        `yaml:"service" mapstructure:"service"`
	TokenTTL      time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
	AdminEmail    string        `yaml:"admin_email" mapstructure:"admin_email"`
	AdminPassword string        `yaml:"admin_password" mapstructure:"admin_password"`
}

// RateLimit configures the single token bucket backing TOOMANYREQUESTS
// (§4.7); every request draws from it, whoever the principal is.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// Log configures the structured logger every request and background
// sweep writes through.
type Log struct {
	Level     string `yaml:"level" mapstructure:"level"`
	Formatter string `yaml:"formatter" mapstructure:"formatter"` // "text", "json", or "logstash"
}

// Reporting configures optional 5xx crash reporting to an external
// collector, an ambient concern the teacher's require block carries
// (Shopify/logrus-bugsnag, bugsnag/bugsnag-go) but spec.md's Non-goals
// do not exclude.
type Reporting struct {
	BugsnagAPIKey string `yaml:"bugsnag_api_key,omitempty" mapstructure:"bugsnag_api_key"`
}

// Cache configures the optional Redis-backed tag list cache (§4.3's
// Catalog Store, fronted by catalog.TagCache).
type Cache struct {
	RedisAddr string        `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// Uploads configures the Upload Session Manager's startup recovery
// sweep (§4.4's "a startup sweep removes uploads older than a
// configurable horizon (default 24h)").
type Uploads struct {
	Horizon time.Duration `yaml:"horizon" mapstructure:"horizon"`
}

// Configuration is the root settings struct, matching the teacher's
// Configuration type but scoped to this core's components.
type Configuration struct {
	Version   string    `yaml:"version"`
	Storage   Storage   `yaml:"storage"`
	Database  Database  `yaml:"database"`
	HTTP      HTTP      `yaml:"http"`
	Auth      Auth      `yaml:"auth"`
	RateLimit RateLimit `yaml:"ratelimit"`
	Log       Log       `yaml:"log"`
	Reporting Reporting `yaml:"reporting"`
	Cache     Cache     `yaml:"cache"`
	Uploads   Uploads   `yaml:"uploads"`
}

// Default returns a Configuration with the same baseline values the
// teacher's configuration_test.go canonical example fills in for fields
// an operator does not override.
func Default() Configuration {
	return Configuration{
		Version: "0.1",
		Storage: Storage{Root: "/var/lib/registry", Driver: "filesystem"},
		Database: Database{Path: "/var/lib/registry/registry.db"},
		HTTP:     HTTP{Host: "0.0.0.0", Port: 5000},
		Auth: Auth{
			Issuer:   "registry-token-issuer",
			Service:  "registry",
			TokenTTL: 24 * time.Hour,
		},
		RateLimit: RateLimit{RequestsPerSecond: 50, Burst: 100},
		Log:       Log{Level: "info", Formatter: "text"},
		Cache:     Cache{TTL: 5 * time.Minute},
		Uploads:   Uploads{Horizon: 24 * time.Hour},
	}
}

// Load reads a YAML configuration file at path over the defaults, then
// applies any REGISTRY_-prefixed environment variable overrides.
func Load(path string) (*Configuration, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envVars maps each REGISTRY_-prefixed environment variable to the dotted
// mapstructure path it overrides, matching §6's enumerated configuration
// surface (storage_root, db_path, port, host, tls cert/key paths,
// jwt_secret, default admin email/password) one entry at a time rather
// than inferring struct nesting from underscores, since several field
// names (jwt_secret, requests_per_second) are themselves underscored.
var envVars = map[string][]string{
	"REGISTRY_STORAGE_ROOT":          {"storage", "root"},
	"REGISTRY_STORAGE_DRIVER":        {"storage", "driver"},
	"REGISTRY_STORAGE_S3_REGION":     {"storage", "s3", "region"},
	"REGISTRY_STORAGE_S3_BUCKET":     {"storage", "s3", "bucket"},
	"REGISTRY_STORAGE_S3_PREFIX":     {"storage", "s3", "prefix"},
	"REGISTRY_DATABASE_PATH":         {"database", "path"},
	"REGISTRY_HTTP_HOST":             {"http", "host"},
	"REGISTRY_HTTP_PORT":             {"http", "port"},
	"REGISTRY_HTTP_TLS_CERT":         {"http", "tls_cert"},
	"REGISTRY_HTTP_TLS_KEY":          {"http", "tls_key"},
	"REGISTRY_AUTH_JWT_SECRET":       {"auth", "jwt_secret"},
	"REGISTRY_AUTH_ISSUER":           {"auth", "issuer"},
	"REGISTRY_AUTH_SERVICE":          {"auth", "service"},
	"REGISTRY_AUTH_TOKEN_TTL":        {"auth", "token_ttl"},
	"REGISTRY_AUTH_ADMIN_EMAIL":      {"auth", "admin_email"},
	"REGISTRY_AUTH_ADMIN_PASSWORD":   {"auth", "admin_password"},
	"REGISTRY_RATELIMIT_RPS":         {"ratelimit", "requests_per_second"},
	"REGISTRY_RATELIMIT_BURST":       {"ratelimit", "burst"},
	"REGISTRY_LOG_LEVEL":             {"log", "level"},
	"REGISTRY_LOG_FORMATTER":         {"log", "formatter"},
	"REGISTRY_REPORTING_BUGSNAG_KEY": {"reporting", "bugsnag_api_key"},
	"REGISTRY_CACHE_REDIS_ADDR":      {"cache", "redis_addr"},
	"REGISTRY_CACHE_TTL":             {"cache", "ttl"},
	"REGISTRY_UPLOADS_HORIZON":       {"uploads", "horizon"},
}

// applyEnv overlays whichever of envVars's environment variables are set
// onto cfg via mapstructure, so an operator can override any enumerated
// setting without editing the YAML file.
func applyEnv(cfg *Configuration) error {
	overrides := map[string]interface{}{}
	for name, path := range envVars {
		val, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		setNested(overrides, path, val)
	}
	if len(overrides) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("config: building decoder: %w", err)
	}
	if err := decoder.Decode(overrides); err != nil {
		return fmt.Errorf("config: applying environment overrides: %w", err)
	}
	return nil
}

func setNested(m map[string]interface{}, path []string, val string) {
	if len(path) == 1 {
		m[path[0]] = val
		return
	}
	next, ok := m[path[0]].(map[string]interface{})
	if !ok {
		next = map[string]interface{}{}
		m[path[0]] = next
	}
	setNested(next, path[1:], val)
}
