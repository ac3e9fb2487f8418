// Package config loads the kycd service configuration from a YAML file,
// optional dotenv files and KYC_ prefixed environment variables, in that
// order of precedence from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-kyc"
	"github.com/goliatone/go-kyc/provider/stripe"
)

const envPrefix = "KYC_"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Log         LogConfig       `yaml:"log"`
	Database    DatabaseConfig  `yaml:"database"`
	Auth        AuthConfig      `yaml:"auth"`
	Stripe      StripeConfig    `yaml:"stripe"`
	ReturnURL   ReturnURLConfig `yaml:"return_url"`
	Redis       RedisConfig     `yaml:"redis"`
	Kafka       KafkaConfig     `yaml:"kafka"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Debug           bool          `yaml:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	Debug       bool          `yaml:"debug"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
}

// The getters below satisfy the persistence client configuration.

func (d DatabaseConfig) GetDebug() bool                { return d.Debug }
func (d DatabaseConfig) GetDriver() string             { return d.Driver }
func (d DatabaseConfig) GetServer() string             { return d.DSN }
func (d DatabaseConfig) GetDSN() string                { return d.DSN }
func (d DatabaseConfig) GetPingTimeout() time.Duration { return d.PingTimeout }
func (d DatabaseConfig) GetOtelIdentifier() string     { return "kycd" }

type AuthConfig struct {
	SigningKey    string   `yaml:"signing_key"`
	SigningMethod string   `yaml:"signing_method"`
	JWKSetURLs    []string `yaml:"jwk_set_urls"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
}

type StripeConfig struct {
	SecretKey          string        `yaml:"secret_key"`
	WebhookSecret      string        `yaml:"webhook_secret"`
	APIURL             string        `yaml:"api_url"`
	Timeout            time.Duration `yaml:"timeout"`
	WebhookTolerance   time.Duration `yaml:"webhook_tolerance"`
	RequireLiveCapture bool          `yaml:"require_live_capture"`
}

type ReturnURLConfig struct {
	Default string            `yaml:"default"`
	Hosts   map[string]string `yaml:"hosts"`
}

type RedisConfig struct {
	URL         string        `yaml:"url"`
	StartLimit  int           `yaml:"start_limit"`
	StartWindow time.Duration `yaml:"start_window"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Defaults returns a configuration that runs locally against SQLite.
func Defaults() Config {
	return Config{
		Environment: "development",
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			DSN:         "file:kyc.db?cache=shared",
			PingTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			SigningMethod: "HS256",
		},
		Stripe: StripeConfig{
			Timeout:          kyc.DefaultProviderTimeout,
			WebhookTolerance: kyc.DefaultTolerance,
		},
		ReturnURL: ReturnURLConfig{
			Default: "http://localhost:3000/dashboard",
		},
		Redis: RedisConfig{
			StartLimit:  5,
			StartWindow: time.Hour,
		},
		Kafka: KafkaConfig{
			Topic: "kyc.activity",
		},
	}
}

// Load builds the configuration. path may be empty. Missing dotenv files are
// ignored.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = splitList(v)
		}
	}

	var errs []error
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("ENVIRONMENT", &c.Environment)

	str("SERVER_ADDRESS", &c.Server.Address)
	list("SERVER_ALLOWED_ORIGINS", &c.Server.AllowedOrigins)
	dur("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	boolean("SERVER_DEBUG", &c.Server.Debug)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	boolean("DATABASE_DEBUG", &c.Database.Debug)
	dur("DATABASE_PING_TIMEOUT", &c.Database.PingTimeout)

	str("AUTH_SIGNING_KEY", &c.Auth.SigningKey)
	str("AUTH_SIGNING_METHOD", &c.Auth.SigningMethod)
	list("AUTH_JWK_SET_URLS", &c.Auth.JWKSetURLs)
	str("AUTH_ISSUER", &c.Auth.Issuer)
	str("AUTH_AUDIENCE", &c.Auth.Audience)

	str("STRIPE_SECRET_KEY", &c.Stripe.SecretKey)
	str("STRIPE_WEBHOOK_SECRET", &c.Stripe.WebhookSecret)
	str("STRIPE_API_URL", &c.Stripe.APIURL)
	dur("STRIPE_TIMEOUT", &c.Stripe.Timeout)
	dur("STRIPE_WEBHOOK_TOLERANCE", &c.Stripe.WebhookTolerance)
	boolean("STRIPE_REQUIRE_LIVE_CAPTURE", &c.Stripe.RequireLiveCapture)

	str("RETURN_URL_DEFAULT", &c.ReturnURL.Default)

	str("REDIS_URL", &c.Redis.URL)
	integer("REDIS_START_LIMIT", &c.Redis.StartLimit)
	dur("REDIS_START_WINDOW", &c.Redis.StartWindow)

	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("KAFKA_TOPIC", &c.Kafka.Topic)

	return errors.Join(errs...)
}

// Validate checks required settings.
func (c Config) Validate() error {
	authRules := []validation.Rule{}
	if len(c.Auth.JWKSetURLs) == 0 {
		authRules = append(authRules, validation.Required)
	}

	limitRules := []validation.Rule{}
	if c.Redis.URL != "" {
		limitRules = append(limitRules, validation.Required, validation.Min(1))
	}

	return validation.Errors{
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
			validation.Field(&c.Database.DSN, validation.Required),
		),
		"auth": validation.ValidateStruct(&c.Auth,
			validation.Field(&c.Auth.SigningKey, authRules...),
		),
		"stripe": validation.ValidateStruct(&c.Stripe,
			validation.Field(&c.Stripe.SecretKey, validation.Required),
			validation.Field(&c.Stripe.WebhookSecret, validation.Required),
		),
		"return_url": validation.ValidateStruct(&c.ReturnURL,
			validation.Field(&c.ReturnURL.Default, validation.Required),
		),
		"redis": validation.ValidateStruct(&c.Redis,
			validation.Field(&c.Redis.StartLimit, limitRules...),
		),
	}.Filter()
}

// Bearer returns the bearer token settings for the HTTP layer.
func (c Config) Bearer() kyc.BearerConfig {
	return kyc.BearerConfig{
		SigningKey:    c.Auth.SigningKey,
		SigningMethod: c.Auth.SigningMethod,
		JWKSetURLs:    c.Auth.JWKSetURLs,
		Issuer:        c.Auth.Issuer,
		Audience:      c.Auth.Audience,
	}
}

// StripeProvider returns the Stripe Identity provider settings.
func (c Config) StripeProvider() stripe.Config {
	cfg := stripe.DefaultConfig(c.Stripe.SecretKey)
	cfg.APIURL = c.Stripe.APIURL
	cfg.Timeout = c.Stripe.Timeout
	cfg.RequireLiveCapture = c.Stripe.RequireLiveCapture
	return cfg
}

// ReturnURLs builds the resolver used to choose the post-verification URL.
func (c Config) ReturnURLs() *kyc.ReturnURLResolver {
	return kyc.NewReturnURLResolver(c.ReturnURL.Default, c.ReturnURL.Hosts)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
