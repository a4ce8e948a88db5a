package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	// OAuth (GitHub)
	GitHubClientID     string `env:"GITHUB_CLIENT_ID,notEmpty"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET,notEmpty"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL,notEmpty"`

	// Session
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" envDefault:"86400"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Web UI -> API
	APIBaseURL            string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	IdentityLookupTimeout time.Duration `env:"IDENTITY_LOOKUP_TIMEOUT" envDefault:"5s"`

	// Rate Limit (req/min/user)
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitWrite   int `env:"RATE_LIMIT_WRITE" envDefault:"30"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	WebPort    string `env:"WEB_PORT" envDefault:"3000"`
	// MetricsPort はworkerが/metricsを公開するポート。
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	// BaseURL はWeb UIの公開URL。OAuthログイン後のリダイレクト先にも使う。
	BaseURL string `env:"BASE_URL,notEmpty"`

	// Cookie
	CookieSecure bool   `env:"-"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.String("error", err.Error()))
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("required environment variables are not set: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}
