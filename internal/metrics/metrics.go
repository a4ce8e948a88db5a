// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// セッション解決の結果ラベル。
const (
	OutcomeAuthenticated   = "authenticated"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeFailed          = "failed"
)

// ワークアウト変更操作のラベル。
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、セッションストア、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordSessionResolution(outcome string, duration time.Duration)
	RecordWorkoutMutation(op string)
	RecordExpiredSessionsDeleted(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
	sessionResolutions *prometheus.CounterVec
	lookupLatency      prometheus.Histogram
	workoutMutations   *prometheus.CounterVec
	sessionsDeleted    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiturae_http_requests_total",
			Help: "ルート・メソッド・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fiturae_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		sessionResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiturae_session_resolutions_total",
			Help: "結果別のセッション解決回数",
		}, []string{"outcome"}),
		lookupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fiturae_identity_lookup_duration_seconds",
			Help:    "GET /api/auth/me によるidentity照会の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		workoutMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiturae_workout_mutations_total",
			Help: "操作別のワークアウト変更数",
		}, []string{"operation"}),
		sessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fiturae_expired_sessions_deleted_total",
			Help: "クリーンアップジョブが削除した期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.sessionResolutions,
		c.lookupLatency,
		c.workoutMutations,
		c.sessionsDeleted,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターンを渡し、ラベルの種類数を抑える。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSessionResolution はセッション解決の結果と照会時間を記録する。
func (c *Collector) RecordSessionResolution(outcome string, duration time.Duration) {
	c.sessionResolutions.WithLabelValues(outcome).Inc()
	c.lookupLatency.Observe(duration.Seconds())
}

// RecordWorkoutMutation はワークアウトの作成・更新・削除を記録する。
func (c *Collector) RecordWorkoutMutation(op string) {
	c.workoutMutations.WithLabelValues(op).Inc()
}

// RecordExpiredSessionsDeleted は削除した期限切れセッション数を記録する。
func (c *Collector) RecordExpiredSessionsDeleted(count int64) {
	c.sessionsDeleted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス未設定時に使う。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordSessionResolution(string, time.Duration)        {}
func (Nop) RecordWorkoutMutation(string)                         {}
func (Nop) RecordExpiredSessionsDeleted(int64)                   {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
