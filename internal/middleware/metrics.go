package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fiturae/fiturae/internal/metrics"
)

// NewMetricsMiddleware はリクエスト数と処理時間をメトリクスに記録するミドルウェアを返す。
// ラベルにはURLではなくchiのルートパターンを使い、系列数がIDごとに増えないようにする。
func NewMetricsMiddleware(collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			collector.RecordHTTPRequest(r.Method, routePattern(r), rec.statusCode, time.Since(start))
		})
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}
