package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fiturae/fiturae/internal/metrics"
	"github.com/fiturae/fiturae/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// メトリクス。Gathererがnilの場合は/metricsを公開しない。
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// ワークアウト
	WorkoutService WorkoutServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  認証が必要なルート: Session → RateLimit(General) → CSRF → RateLimit(Write)
//
// OAuthフロー（/auth/*）と/api/auth/meはセッション必須チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(""))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	workoutHandler := NewWorkoutHandler(deps.WorkoutService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", authHandler.Login)
		r.Get("/github/callback", authHandler.Callback)
		r.With(middleware.NewOptionalSessionMiddleware(deps.SessionFinder)).Post("/logout", authHandler.Logout)
	})

	// 未ログインは401、照会失敗は500を区別して返すため、ハンドラー側でセッションを検証する
	r.Get("/api/auth/me", authHandler.Me)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.WriteMiddleware())

		r.Route("/api/users", func(r chi.Router) {
			r.Post("/", userHandler.AddUser)
			r.Delete("/me", userHandler.Withdraw)
			r.Get("/{id}", userHandler.GetUser)
		})

		r.Route("/api/workouts", func(r chi.Router) {
			r.Post("/", workoutHandler.AddWorkout)
			r.Get("/details/{id}", workoutHandler.GetWorkout)
			r.Get("/{userId}", workoutHandler.ListWorkouts)
			r.Put("/{id}", workoutHandler.EditWorkout)
			r.Delete("/{id}", workoutHandler.DeleteWorkout)
		})
	})

	return r
}
