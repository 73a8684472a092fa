package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	MinSecretLength = 32

	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is shared by every serving surface. It is loaded and validated once
// at process start; a validation failure must stop the process.
type Config struct {
	Env string `yaml:"env"`

	APIPort string `yaml:"api_port"`
	WebPort string `yaml:"web_port"`

	Auth AuthConfig `yaml:"auth"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	DatabaseDSN string `yaml:"database_dsn"`

	Providers []ProviderConfig `yaml:"providers"`
}

type AuthConfig struct {
	Secret         string        `yaml:"secret"`
	BaseURL        string        `yaml:"base_url"`
	BasePath       string        `yaml:"base_path"`
	ExpiresIn      time.Duration `yaml:"expires_in"`
	UpdateAge      time.Duration `yaml:"update_age"`
	CookieSecure   bool          `yaml:"cookie_secure"`
	TrustedOrigins []string      `yaml:"trusted_origins"`
}

type RateLimitConfig struct {
	Backend       string        `yaml:"backend"`
	GeneralMax    int           `yaml:"general_max"`
	GeneralWindow time.Duration `yaml:"general_window"`
	SignInMax     int           `yaml:"sign_in_max"`
	SignInWindow  time.Duration `yaml:"sign_in_window"`
}

// ProviderConfig describes an OIDC social sign-in provider. Providers are
// optional; an empty list disables social sign-in.
type ProviderConfig struct {
	Name          string `yaml:"name"`
	Issuer        string `yaml:"issuer"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	PublicAuthURL string `yaml:"public_auth_url"`
}

func Default() Config {
	return Config{
		Env:     EnvProduction,
		APIPort: "8080",
		WebPort: "3000",
		Auth: AuthConfig{
			BasePath:     "/api/auth",
			ExpiresIn:    7 * 24 * time.Hour,
			UpdateAge:    24 * time.Hour,
			CookieSecure: true,
		},
		RateLimit: RateLimitConfig{
			Backend:       RateLimitMemory,
			GeneralMax:    100,
			GeneralWindow: 15 * time.Minute,
			SignInMax:     5,
			SignInWindow:  time.Hour,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and finally environment variables. It does not validate.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	e := envReader{getenv: getenv}

	e.str("APP_ENV", &cfg.Env)
	e.str("API_PORT", &cfg.APIPort)
	e.str("WEB_PORT", &cfg.WebPort)

	e.str("AUTH_SECRET", &cfg.Auth.Secret)
	e.str("AUTH_BASE_URL", &cfg.Auth.BaseURL)
	e.str("AUTH_BASE_PATH", &cfg.Auth.BasePath)
	e.duration("SESSION_EXPIRES_IN", &cfg.Auth.ExpiresIn)
	e.duration("SESSION_UPDATE_AGE", &cfg.Auth.UpdateAge)
	e.boolean("COOKIE_SECURE", &cfg.Auth.CookieSecure)
	e.list("TRUSTED_ORIGINS", &cfg.Auth.TrustedOrigins)

	e.str("RATE_LIMIT_BACKEND", &cfg.RateLimit.Backend)
	e.integer("RATE_LIMIT_GENERAL_MAX", &cfg.RateLimit.GeneralMax)
	e.duration("RATE_LIMIT_GENERAL_WINDOW", &cfg.RateLimit.GeneralWindow)
	e.integer("RATE_LIMIT_SIGNIN_MAX", &cfg.RateLimit.SignInMax)
	e.duration("RATE_LIMIT_SIGNIN_WINDOW", &cfg.RateLimit.SignInWindow)

	e.str("REDIS_ADDR", &cfg.RedisAddr)
	e.str("REDIS_PASSWORD", &cfg.RedisPassword)
	e.str("DATABASE_DSN", &cfg.DatabaseDSN)

	for _, name := range []string{"google", "keycloak"} {
		p := ProviderConfig{Name: name}
		prefix := strings.ToUpper(name) + "_"
		e.str(prefix+"ISSUER", &p.Issuer)
		e.str(prefix+"CLIENT_ID", &p.ClientID)
		e.str(prefix+"CLIENT_SECRET", &p.ClientSecret)
		e.str(prefix+"PUBLIC_AUTH_URL", &p.PublicAuthURL)
		if p.ClientID == "" {
			continue
		}
		if p.Issuer == "" && name == "google" {
			p.Issuer = "https://accounts.google.com"
		}
		cfg.Providers = append(cfg.Providers, p)
	}

	if e.err != nil {
		return Config{}, e.err
	}

	return cfg, nil
}

// Validate reports every problem at once so a misconfigured deployment is
// fixed in one pass.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		fail("APP_ENV must be %q or %q", EnvDevelopment, EnvProduction)
	}

	if c.Auth.Secret == "" {
		fail("AUTH_SECRET is required")
	} else if len(c.Auth.Secret) < MinSecretLength {
		fail("AUTH_SECRET must be at least %d characters", MinSecretLength)
	}

	if c.Auth.BaseURL == "" {
		fail("AUTH_BASE_URL is required")
	} else if u, err := url.Parse(c.Auth.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fail("AUTH_BASE_URL must be an absolute http(s) URL")
	} else if c.Auth.CookieSecure && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		// browsers drop Secure cookies set over plain http
		fail("COOKIE_SECURE requires an https AUTH_BASE_URL outside localhost")
	}

	if !strings.HasPrefix(c.Auth.BasePath, "/") {
		fail("AUTH_BASE_PATH must start with /")
	}

	if c.Auth.ExpiresIn <= 0 {
		fail("SESSION_EXPIRES_IN must be positive")
	}
	if c.Auth.UpdateAge <= 0 {
		fail("SESSION_UPDATE_AGE must be positive")
	} else if c.Auth.UpdateAge >= c.Auth.ExpiresIn {
		fail("SESSION_UPDATE_AGE must be shorter than SESSION_EXPIRES_IN")
	}

	switch c.RateLimit.Backend {
	case RateLimitMemory, RateLimitRedis:
	default:
		fail("RATE_LIMIT_BACKEND must be %q or %q", RateLimitMemory, RateLimitRedis)
	}
	if c.RateLimit.GeneralMax <= 0 || c.RateLimit.GeneralWindow <= 0 {
		fail("general rate limit must have a positive max and window")
	}
	if c.RateLimit.SignInMax <= 0 || c.RateLimit.SignInWindow <= 0 {
		fail("sign-in rate limit must have a positive max and window")
	}

	if c.RedisAddr == "" {
		fail("REDIS_ADDR is required")
	}
	if c.DatabaseDSN == "" {
		fail("DATABASE_DSN is required")
	}

	for _, p := range c.Providers {
		if p.Name == "" || p.Issuer == "" || p.ClientID == "" {
			fail("provider %q is missing name, issuer or client id", p.Name)
		}
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether detailed diagnostics may be exposed in logs.
func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) str(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = d
}

func (e *envReader) integer(key string, dst *int) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = n
}

func (e *envReader) boolean(key string, dst *bool) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = b
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("config: %s: %w", key, err)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
