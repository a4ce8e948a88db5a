package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fiturae/fiturae/internal/client"
	"github.com/fiturae/fiturae/internal/metrics"
	"github.com/fiturae/fiturae/internal/middleware"
	"github.com/fiturae/fiturae/internal/session"
)

// contentSecurityPolicy はWeb UIのCSP。アバター画像のみ外部ホストを許可する。
const contentSecurityPolicy = "default-src 'self'; img-src 'self' https: http:; style-src 'self' 'unsafe-inline'; form-action 'self'; frame-ancestors 'none'"

// Config はWeb UIのルーター設定。
type Config struct {
	API      *client.Client
	LoginURL string

	CookieDomain string
	CookieSecure bool

	// Metricsはセッション解決とHTTPリクエストの記録に使う。
	// Gathererがnilの場合は/metricsを公開しない。
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewRouter はWeb UIのルーティングを構成したhttp.Handlerを返す。
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CSRF
//	  /home と /workout/* と /logout: Guard
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}

	rd, err := newRenderer(cfg.Logger)
	if err != nil {
		return nil, err
	}
	pages := &Pages{
		api:          cfg.API,
		render:       rd,
		logger:       cfg.Logger,
		loginURL:     cfg.LoginURL,
		cookieDomain: cfg.CookieDomain,
		cookieSecure: cfg.CookieSecure,
	}
	csrf := middleware.CSRFConfig{CookieSecure: cfg.CookieSecure, CookieDomain: cfg.CookieDomain}
	lookups := func(r *http.Request) session.Lookup { return cfg.API.As(sessionID(r)) }

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger))
	r.Use(middleware.NewMetricsMiddleware(cfg.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(contentSecurityPolicy))
	r.Use(middleware.NewCSRFMiddleware(csrf))

	r.Get("/", pages.StartPage)
	r.Get(LoginPath, pages.LoginPage)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(NewGuard(lookups, session.Options{Metrics: cfg.Metrics, Logger: cfg.Logger}))

		r.Get(HomePath, pages.Home)
		r.Post("/logout", pages.Logout)

		r.Get("/workout/new", pages.CreatePage)
		r.Post("/workout", pages.Create)
		r.Get("/workout/{id}", pages.ShowWorkout)
		r.Post("/workout/{id}", pages.Update)
		r.Get("/workout/{id}/edit", pages.EditPage)
		r.Post("/workout/{id}/delete", pages.Delete)
	})

	return r, nil
}
