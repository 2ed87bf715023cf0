// config — загрузка конфигурации шлюза сессий.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
//
// ENV всегда накладывается поверх файла.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилища токенов шлюза.
const (
	StoreCookie = "cookie"
	StoreRedis  = "redis"
)

type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	API      APIConfig     `yaml:"api"`
	Tokens   TokensConfig  `yaml:"tokens"`
	Store    StoreConfig   `yaml:"store"`
	Cookies  CookiesConfig `yaml:"cookies"`
	Session  SessionConfig `yaml:"session"`
	Locales  LocalesConfig `yaml:"locales"`
	Limits   LimitsConfig  `yaml:"limits"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// HTTPConfig — публичный HTTP-сервер шлюза.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// APIConfig — удалённый REST API сайта.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"        env:"API_BASE_URL"        env-default:"https://syria-vision-backend-production.up.railway.app/api"`
	Timeout        time.Duration `yaml:"timeout"         env:"API_TIMEOUT"         env-default:"15s"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"API_REFRESH_TIMEOUT" env-default:"10s"`
	UserAgent      string        `yaml:"user_agent"      env:"API_USER_AGENT"      env-default:"hackathon-site-gateway"`
}

// TokensConfig — сроки жизни токенов на стороне клиента.
type TokensConfig struct {
	AccessTTL  time.Duration `yaml:"access_ttl"  env:"TOKEN_ACCESS_TTL"  env-default:"24h"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"TOKEN_REFRESH_TTL" env-default:"168h"`
}

// StoreConfig — где шлюз хранит токены браузера.
//
// cookie — сами токены в HttpOnly cookie; redis — токены в Redis,
// в браузере только непрозрачный id сессии (cookie SessionCookie).
type StoreConfig struct {
	Driver        string        `yaml:"driver"         env:"STORE_DRIVER"         env-default:"cookie"`
	RedisURL      string        `yaml:"redis_url"      env:"REDIS_URL"            env-default:"redis://localhost:6379/0"`
	Prefix        string        `yaml:"prefix"         env:"STORE_PREFIX"         env-default:"site:sess:"`
	SessionTTL    time.Duration `yaml:"session_ttl"    env:"STORE_SESSION_TTL"    env-default:"168h"`
	SessionCookie string        `yaml:"session_cookie" env:"STORE_SESSION_COOKIE" env-default:"site_sid"`
}

// CookiesConfig — атрибуты cookie шлюза.
type CookiesConfig struct {
	Secure   bool   `yaml:"secure"    env:"COOKIE_SECURE"    env-default:"true"`
	Domain   string `yaml:"domain"    env:"COOKIE_DOMAIN"`
	SameSite string `yaml:"same_site" env:"COOKIE_SAME_SITE" env-default:"lax"`
}

// SameSiteMode переводит строковое значение в http.SameSite.
func (c CookiesConfig) SameSiteMode() (http.SameSite, error) {
	switch strings.ToLower(c.SameSite) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("unknown same_site %q", c.SameSite)
	}
}

// SessionConfig — поведение фасада сессии.
type SessionConfig struct {
	RevokeOnLogout bool `yaml:"revoke_on_logout" env:"SESSION_REVOKE_ON_LOGOUT" env-default:"false"`
}

// LocalesConfig — поддерживаемые языки сайта.
type LocalesConfig struct {
	Supported []string `yaml:"supported" env:"LOCALES_SUPPORTED" env-separator:"," env-default:"en,ar,fr,tr"`
	Default   string   `yaml:"default"   env:"LOCALES_DEFAULT"   env-default:"en"`
}

// LimitsConfig — ограничения публичных эндпоинтов.
type LimitsConfig struct {
	// LoginRPS/LoginBurst — лимит попыток логина/регистрации с одного IP.
	LoginRPS       float64 `yaml:"login_rps"        env:"LIMIT_LOGIN_RPS"        env-default:"0.2"`
	LoginBurst     int     `yaml:"login_burst"      env:"LIMIT_LOGIN_BURST"      env-default:"5"`
	AvatarMaxBytes int64   `yaml:"avatar_max_bytes" env:"LIMIT_AVATAR_MAX_BYTES" env-default:"5242880"`
}

// TimeoutConfig — таймаут обработки входящего запроса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE" env-default:"30s"`
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q must be an absolute http(s) url", c.API.BaseURL))
	}

	switch c.Store.Driver {
	case StoreCookie:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for redis driver"))
		}
		if c.Store.SessionCookie == "" {
			errs = append(errs, errors.New("store.session_cookie is required for redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		errs = append(errs, errors.New("tokens ttl must be positive"))
	}

	if _, err := c.Cookies.SameSiteMode(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Locales.Supported) == 0 {
		errs = append(errs, errors.New("locales.supported is empty"))
	} else if !slices.Contains(c.Locales.Supported, c.Locales.Default) {
		errs = append(errs, fmt.Errorf("locales.default %q is not supported", c.Locales.Default))
	}

	if c.Limits.LoginRPS < 0 || c.Limits.LoginBurst < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}

	return errors.Join(errs...)
}

// MustLoad — паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return readFile(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return readFile(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return readFile("local.yaml")
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
