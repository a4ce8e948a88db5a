package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/fiturae/fiturae/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	WriteRate       rate.Limit    // 作成・更新・削除のレート（req/sec）
	WriteBurst      int           // 作成・更新・削除のバーストサイズ
	CleanupInterval time.Duration // 使われなくなったエントリのクリーンアップ間隔
	Clock           clockwork.Clock
}

// RateLimiterConfigPerMinute は1分あたりのリクエスト数から設定を組み立てる。
// バーストサイズは1分あたりの上限と同じにする。
func RateLimiterConfigPerMinute(general, write int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(general) / 60.0),
		GeneralBurst:    general,
		WriteRate:       rate.Limit(float64(write) / 60.0),
		WriteBurst:      write,
		CleanupInterval: 5 * time.Minute,
	}
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、書き込み 30 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfigPerMinute(120, 30)
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は種別ごとのユーザー別リミッター群。
type limiterSet struct {
	kind  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userLimiter
}

func newLimiterSet(kind string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		kind:     kind,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*userLimiter),
	}
}

// allow はユーザーのリミッターからnow時点で1トークン消費できるかを返す。
func (s *limiterSet) allow(userID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ul, ok := s.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[userID] = ul
	}
	ul.lastAccess = now
	return ul.limiter.AllowN(now, 1)
}

func (s *limiterSet) evictIdle(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, ul := range s.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(s.limiters, userID)
		}
	}
}

func (s *limiterSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般のレート制限と書き込み操作のレート制限の2種類を提供する。
type RateLimiter struct {
	config  RateLimiterConfig
	clock   clockwork.Clock
	general *limiterSet
	write   *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで使われなくなったエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		clock:   clock,
		general: newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		write:   newLimiterSet("write", config.WriteRate, config.WriteBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general, false)
}

// WriteMiddleware は作成・更新・削除リクエストだけを対象にしたレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) WriteMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.write, true)
}

func (rl *RateLimiter) middleware(set *limiterSet, writesOnly bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if writesOnly && isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !set.allow(userID, rl.clock.Now()) {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", set.kind),
				)
				writeRateLimitResponse(w, set.limit)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

// WriteLimiterCount は現在管理されている書き込みリミッターのエントリ数を返す。
func (rl *RateLimiter) WriteLimiterCount() int {
	return rl.write.count()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := rl.clock.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	now := rl.clock.Now()
	ttl := rl.config.CleanupInterval * 2
	rl.general.evictIdle(now, ttl)
	rl.write.evictIdle(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterには1トークンが補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
