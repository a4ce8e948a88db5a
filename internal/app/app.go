package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fiturae/fiturae/internal/auth"
	"github.com/fiturae/fiturae/internal/client"
	"github.com/fiturae/fiturae/internal/config"
	"github.com/fiturae/fiturae/internal/database"
	"github.com/fiturae/fiturae/internal/handler"
	"github.com/fiturae/fiturae/internal/logger"
	"github.com/fiturae/fiturae/internal/metrics"
	"github.com/fiturae/fiturae/internal/middleware"
	"github.com/fiturae/fiturae/internal/repository"
	"github.com/fiturae/fiturae/internal/user"
	"github.com/fiturae/fiturae/internal/web"
	"github.com/fiturae/fiturae/internal/worker/cleanup"
	"github.com/fiturae/fiturae/internal/workout"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルを反映する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWeb:
		return runWeb(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newRegistry はGo/プロセスのメトリクスを含むレジストリとCollectorを生成する。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	workoutRepo := repository.NewPostgresWorkoutRepo(db)

	reg, collector := newRegistry()

	// 3. ドメインサービスの初期化
	oauthProvider := auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		RedirectURL:  cfg.GitHubRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	userService := user.NewService(userRepo, sessionRepo, workoutRepo, nil)
	workoutService := workout.NewService(workoutRepo, userRepo, collector, nil)

	// 4. ルーターの構築（レート制限はreq/min単位の設定から生成する）
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitWrite),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Metrics:     collector,
		Gatherer:    reg,
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		UserService:    userService,
		WorkoutService: workoutService,
	})

	// 5. HTTPサーバーの起動
	return serveUntilSignal("API server", newHTTPServer(cfg.ServerPort, router))
}

// runWeb はWeb UIサーバーモードで起動する。DBには接続せず、API経由でデータを扱う。
func runWeb(cfg *config.Config) error {
	reg, collector := newRegistry()

	apiClient := client.New(cfg.APIBaseURL, cfg.IdentityLookupTimeout, slog.Default())
	loginURL, err := githubLoginURL(cfg.GitHubRedirectURL)
	if err != nil {
		return err
	}

	router, err := web.NewRouter(web.Config{
		API:          apiClient,
		LoginURL:     loginURL,
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
		Metrics:      collector,
		Gatherer:     reg,
		Logger:       slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to build web router: %w", err)
	}

	slog.Info("web ui configured",
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.Duration("identity_lookup_timeout", cfg.IdentityLookupTimeout),
	)
	return serveUntilSignal("web server", newHTTPServer(cfg.WebPort, router))
}

// githubLoginURL はOAuthコールバックURLと同じオリジンのログイン開始URLを返す。
// ブラウザから到達できるAPIの公開URLはコールバックURLから求める。
func githubLoginURL(redirectURL string) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid GITHUB_REDIRECT_URL: %q", redirectURL)
	}
	u.Path = "/auth/github/login"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを定期実行し、/metricsを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	reg, collector := newRegistry()
	job := cleanup.NewJob(repository.NewPostgresSessionRepo(db), collector, nil, slog.Default())

	// 2. メトリクスサーバーをバックグラウンドで起動
	metricsServer := newHTTPServer(cfg.MetricsPort, metrics.SetupMetricsRoute(reg))
	go func() {
		slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.SessionCleanupInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// serveUntilSignal はHTTPサーバーを起動し、SIGINTまたはSIGTERMを受信すると
// グレースフルシャットダウンを行う。起動に失敗した場合はそのエラーを返す。
func serveUntilSignal(name string, server *http.Server) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	httpClient := &http.Client{Timeout: 5 * time.Second}

	resp, err := httpClient.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return "***"
	}
	u.User = url.User("***")
	return u.Redacted()
}
