// Package config reads the service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the whole runtime configuration. Each field names the variable it
// is read from; validation errors refer to fields by that name.
type Config struct {
	Port               string   `env:"PORT" validate:"tcpport"`
	CookieSecure       bool     `env:"COOKIE_SECURE"`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" validate:"gte=1"`
	TrustedProxies     []string `env:"TRUSTED_PROXIES" validate:"dive,cidr"`

	DataBackend string        `env:"DATA_BACKEND" validate:"oneof=http memory"`
	APIBaseURL  string        `env:"API_BASE_URL" validate:"omitempty,scheme=http https"`
	APITimeout  time.Duration `env:"API_TIMEOUT"`

	SessionTTL time.Duration `env:"SESSION_TTL" validate:"gte=1m"`
	SessionMax int           `env:"SESSION_MAX" validate:"gte=1"`

	CacheBackend string        `env:"CACHE_BACKEND" validate:"oneof=memory redis"`
	CacheTTL     time.Duration `env:"CACHE_TTL" validate:"gte=0"`
	RedisURL     string        `env:"REDIS_URL" validate:"omitempty,scheme=redis rediss"`

	AMQPURL      string `env:"AMQP_URL" validate:"omitempty,scheme=amqp amqps"`
	AMQPExchange string `env:"AMQP_EXCHANGE"`
	// AMQPQueue prefixes the per-instance queue name.
	AMQPQueue string `env:"AMQP_QUEUE"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=text json"`
}

// LoadEnvFile loads a .env file for local development. A missing file is not an error.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

// Load reads the environment. Unset or unparsable values take their default.
func Load() *Config {
	e := environment(os.LookupEnv)
	return &Config{
		Port:               e.str("PORT", "8080"),
		CookieSecure:       e.boolean("COOKIE_SECURE", false),
		RateLimitPerMinute: e.integer("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     e.list("TRUSTED_PROXIES"),

		DataBackend: e.str("DATA_BACKEND", "memory"),
		APIBaseURL:  e.str("API_BASE_URL", "http://localhost:8080"),
		APITimeout:  e.duration("API_TIMEOUT", 10*time.Second),

		SessionTTL: e.duration("SESSION_TTL", 30*time.Minute),
		SessionMax: e.integer("SESSION_MAX", 1000),

		CacheBackend: e.str("CACHE_BACKEND", "memory"),
		CacheTTL:     e.duration("CACHE_TTL", 30*time.Second),
		RedisURL:     e.str("REDIS_URL", ""),

		AMQPURL:      e.str("AMQP_URL", ""),
		AMQPExchange: e.str("AMQP_EXCHANGE", "gastos"),
		AMQPQueue:    e.str("AMQP_QUEUE", "gastos.ledger"),

		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(e.str("LOG_FORMAT", "text")),
	}
}

// Validate reports every problem at once, one per line.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, len(verrs))
	for i, fe := range verrs {
		problems[i] = describe(fe)
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	_ = v.RegisterValidation("tcpport", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Field().String())
		return err == nil && n >= 1 && n <= 65535
	})
	_ = v.RegisterValidation("scheme", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		if err != nil || u.Host == "" {
			return false
		}
		for _, s := range strings.Fields(fl.Param()) {
			if u.Scheme == s {
				return true
			}
		}
		return false
	})
	v.RegisterStructValidation(requiredTogether, Config{})
	return v
}

// requiredTogether checks settings that only matter for a chosen backend.
func requiredTogether(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.DataBackend == "http" {
		if c.APIBaseURL == "" {
			sl.ReportError(c.APIBaseURL, "API_BASE_URL", "APIBaseURL", "needed", "DATA_BACKEND=http")
		}
		if c.APITimeout <= 0 {
			sl.ReportError(c.APITimeout, "API_TIMEOUT", "APITimeout", "positive", "")
		}
	}
	if c.CacheBackend == "redis" && c.RedisURL == "" {
		sl.ReportError(c.RedisURL, "REDIS_URL", "RedisURL", "needed", "CACHE_BACKEND=redis")
	}
	if c.AMQPURL != "" {
		if c.AMQPExchange == "" {
			sl.ReportError(c.AMQPExchange, "AMQP_EXCHANGE", "AMQPExchange", "needed", "AMQP_URL")
		}
		if c.AMQPQueue == "" {
			sl.ReportError(c.AMQPQueue, "AMQP_QUEUE", "AMQPQueue", "needed", "AMQP_URL")
		}
	}
}

func describe(fe validator.FieldError) string {
	name, value := fe.Field(), fe.Value()
	switch fe.Tag() {
	case "tcpport":
		return fmt.Sprintf("%s=%q: must be a port between 1 and 65535", name, value)
	case "oneof":
		return fmt.Sprintf("%s=%q: must be one of %s", name, value, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "scheme":
		return fmt.Sprintf("%s=%q: must be an absolute URL with scheme %s", name, value, strings.ReplaceAll(fe.Param(), " ", " or "))
	case "cidr":
		return fmt.Sprintf("%s=%q: must be a CIDR", name, value)
	case "gte":
		return fmt.Sprintf("%s=%v: must be at least %s", name, value, fe.Param())
	case "positive":
		return fmt.Sprintf("%s=%v: must be positive", name, value)
	case "needed":
		return fmt.Sprintf("%s is required with %s", name, fe.Param())
	}
	return fmt.Sprintf("%s=%v: failed %s", name, value, fe.Tag())
}

// environment reads typed values through a lookup function.
type environment func(string) (string, bool)

func (e environment) str(key, fallback string) string {
	if v, ok := e(key); ok && v != "" {
		return v
	}
	return fallback
}

func (e environment) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(e.str(key, "")); err == nil {
		return n
	}
	return fallback
}

func (e environment) boolean(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(e.str(key, "")); err == nil {
		return b
	}
	return fallback
}

func (e environment) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(e.str(key, "")); err == nil {
		return d
	}
	return fallback
}

// list splits a comma-separated value, dropping empty entries.
func (e environment) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
