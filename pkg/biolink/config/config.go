package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the server settings, read from the environment and an
// optional .env file.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV"`
	Port            string        `mapstructure:"PORT"`
	BaseURL         string        `mapstructure:"BASE_URL"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	SessionSecret   string        `mapstructure:"SESSION_SECRET"`
	TokenTTL        time.Duration `mapstructure:"TOKEN_TTL"`
	ProvisionToken  string        `mapstructure:"PROVISION_TOKEN"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	CacheTTL        time.Duration `mapstructure:"CACHE_TTL"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	TrustedProxies  []string      `mapstructure:"TRUSTED_PROXIES"`
	MinioEndpoint   string        `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey  string        `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey  string        `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket     string        `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL     bool          `mapstructure:"MINIO_USE_SSL"`
	MinioPublicURL  string        `mapstructure:"MINIO_PUBLIC_URL"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DefaultLanguage string        `mapstructure:"DEFAULT_LANGUAGE"`
	AdminEmail      string        `mapstructure:"ADMIN_EMAIL"`
	AdminPassword   string        `mapstructure:"ADMIN_PASSWORD"`
	AdminUsername   string        `mapstructure:"ADMIN_USERNAME"`
}

var defaults = map[string]interface{}{
	"APP_ENV":          "development",
	"PORT":             "8080",
	"BASE_URL":         "http://localhost:8080",
	"DATABASE_URL":     "sqlite://biolink.db",
	"JWT_SECRET":       auth.DevJWTSecret,
	"SESSION_SECRET":   auth.DevSessionSecret,
	"TOKEN_TTL":        "24h",
	"PROVISION_TOKEN":  "",
	"REDIS_URL":        "",
	"CACHE_TTL":        "5m",
	"RATE_LIMIT_RPS":   5,
	"RATE_LIMIT_BURST": 10,
	"TRUSTED_PROXIES":  "",
	"MINIO_ENDPOINT":   "",
	"MINIO_ACCESS_KEY": "",
	"MINIO_SECRET_KEY": "",
	"MINIO_BUCKET":     "avatars",
	"MINIO_USE_SSL":    false,
	"MINIO_PUBLIC_URL": "",
	"LOG_LEVEL":        "info",
	"DEFAULT_LANGUAGE": "en",
	"ADMIN_EMAIL":      "",
	"ADMIN_PASSWORD":   "",
	"ADMIN_USERNAME":   "admin",
}

// Load reads .env (when present) and the environment into a Config
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			log.Debug().Str("file", f).Msg("loaded env file")
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	proxies := cfg.TrustedProxies[:0]
	for _, p := range cfg.TrustedProxies {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	cfg.TrustedProxies = proxies
	return cfg, nil
}

// IsProduction reports whether APP_ENV is production
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// CacheEnabled reports whether a redis url is configured
func (c Config) CacheEnabled() bool {
	return c.RedisURL != ""
}

// StorageEnabled reports whether avatar uploads have object storage
func (c Config) StorageEnabled() bool {
	return c.MinioEndpoint != ""
}

// Validate rejects configurations that must not reach production
func (c Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.DefaultLanguage != "en" && c.DefaultLanguage != "ar" {
		errs = append(errs, fmt.Errorf("DEFAULT_LANGUAGE %q is not supported", c.DefaultLanguage))
	}
	for _, p := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", p))
		}
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}

	if c.IsProduction() {
		if c.JWTSecret == "" || c.JWTSecret == auth.DevJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		}
		if c.SessionSecret == "" || c.SessionSecret == auth.DevSessionSecret {
			errs = append(errs, errors.New("SESSION_SECRET must be set in production"))
		}
	}

	return errors.Join(errs...)
}
