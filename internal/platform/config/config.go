package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultMigrationsDir = "migrations"
	defaultRedisAddr     = "localhost:6379"

	defaultShippingTimeout       = 10 * time.Second
	defaultFallbackShippingCents = 999
	defaultFreeShippingThreshold = 5000
	defaultItemWeightOunces      = 8

	defaultTaxBasisPoints = 800

	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 720 * time.Hour
	defaultSessionMaxIdle  = 30 * 24 * time.Hour

	defaultCurrency = "USD"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	PSP      PSPConfig
	Shipping ShippingConfig
	Tax      TaxConfig
	Auth     AuthConfig
	Features FeatureFlags
	Currency string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig stores Postgres connection and migration parameters.
type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MigrationsDir string
}

// RedisConfig stores connection parameters for the cart and session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PSPConfig collects credentials for payment providers.
type PSPConfig struct {
	StripeAPIKey   string
	PayPalClientID string
	PayPalSecret   string
	PayPalLive     bool
}

// ShippingConfig controls the carrier rate endpoint and its fallback.
type ShippingConfig struct {
	RatesEndpoint         string
	Timeout               time.Duration
	FallbackRateCents     int64
	FreeShippingThreshold int64
	DefaultItemWeightOz   float64
}

// TaxConfig holds the flat tax rate applied at checkout.
type TaxConfig struct {
	BasisPoints int64
}

// AuthConfig groups token signing and session lifetime settings.
type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionMaxIdle  time.Duration
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	// LegacySingleDesignMaterialCost charges material cost on the legacy
	// single-design pricing path. Off by default: the multi-design and
	// legacy paths intentionally disagree until product clarifies the
	// intended behaviour.
	LegacySingleDesignMaterialCost bool
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Database: DatabaseConfig{
			Host:          stringWithDefault(lookup, "API_DB_HOST", "localhost"),
			Port:          intWithDefault(lookup, "API_DB_PORT", 5432),
			User:          stringWithDefault(lookup, "API_DB_USER", ""),
			Password:      stringWithDefault(lookup, "API_DB_PASSWORD", ""),
			Name:          stringWithDefault(lookup, "API_DB_NAME", ""),
			SSLMode:       stringWithDefault(lookup, "API_DB_SSLMODE", "disable"),
			MigrationsDir: stringWithDefault(lookup, "API_DB_MIGRATIONS_DIR", defaultMigrationsDir),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "API_REDIS_ADDR", defaultRedisAddr),
			Password: stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "API_REDIS_DB", 0),
		},
		PSP: PSPConfig{
			StripeAPIKey:   stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			PayPalClientID: stringWithDefault(lookup, "API_PSP_PAYPAL_CLIENT_ID", ""),
			PayPalSecret:   stringWithDefault(lookup, "API_PSP_PAYPAL_SECRET", ""),
			PayPalLive:     boolWithDefault(lookup, "API_PSP_PAYPAL_LIVE", false),
		},
		Shipping: ShippingConfig{
			RatesEndpoint:         stringWithDefault(lookup, "API_SHIPPING_RATES_ENDPOINT", ""),
			Timeout:               durationWithDefault(lookup, "API_SHIPPING_TIMEOUT", defaultShippingTimeout),
			FallbackRateCents:     int64WithDefault(lookup, "API_SHIPPING_FALLBACK_CENTS", defaultFallbackShippingCents),
			FreeShippingThreshold: int64WithDefault(lookup, "API_SHIPPING_FREE_THRESHOLD_CENTS", defaultFreeShippingThreshold),
			DefaultItemWeightOz:   float64WithDefault(lookup, "API_SHIPPING_DEFAULT_WEIGHT_OZ", defaultItemWeightOunces),
		},
		Tax: TaxConfig{
			BasisPoints: int64WithDefault(lookup, "API_TAX_BASIS_POINTS", defaultTaxBasisPoints),
		},
		Auth: AuthConfig{
			JWTSecret:       stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
			AccessTokenTTL:  durationWithDefault(lookup, "API_AUTH_ACCESS_TTL", defaultAccessTokenTTL),
			RefreshTokenTTL: durationWithDefault(lookup, "API_AUTH_REFRESH_TTL", defaultRefreshTokenTTL),
			SessionMaxIdle:  durationWithDefault(lookup, "API_AUTH_SESSION_MAX_IDLE", defaultSessionMaxIdle),
		},
		Features: FeatureFlags{
			LegacySingleDesignMaterialCost: boolWithDefault(lookup, "API_FEATURE_LEGACY_MATERIAL_COST", false),
		},
		Currency: strings.ToUpper(stringWithDefault(lookup, "API_CURRENCY", defaultCurrency)),
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Database.User == "" {
		missing = append(missing, "Database.User")
	}
	if cfg.Database.Name == "" {
		missing = append(missing, "Database.Name")
	}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "Auth.JWTSecret")
	}
	if cfg.Auth.AccessTokenTTL <= 0 {
		missing = append(missing, "Auth.AccessTokenTTL")
	}
	if cfg.Auth.SessionMaxIdle <= 0 {
		missing = append(missing, "Auth.SessionMaxIdle")
	}
	if cfg.Tax.BasisPoints < 0 {
		missing = append(missing, "Tax.BasisPoints")
	}
	if cfg.Shipping.FallbackRateCents < 0 {
		missing = append(missing, "Shipping.FallbackRateCents")
	}
	if cfg.Shipping.RatesEndpoint == "" {
		missing = append(missing, "Shipping.RatesEndpoint")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func float64WithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
