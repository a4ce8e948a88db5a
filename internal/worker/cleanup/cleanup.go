// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fiturae/fiturae/internal/metrics"
)

// ExpiredSessionDeleter は期限切れセッションを削除するインターフェース。
// repository.SessionRepository が満たす。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Job は期限切れセッションの削除ジョブ。冪等で、削除対象がなくてもエラーにならない。
type Job struct {
	sessions ExpiredSessionDeleter
	metrics  metrics.MetricsCollector
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewJob はJobを生成する。collectorとclockがnilの場合は既定値を使う。
func NewJob(sessions ExpiredSessionDeleter, collector metrics.MetricsCollector, clock clockwork.Clock, logger *slog.Logger) *Job {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		sessions: sessions,
		metrics:  collector,
		clock:    clock,
		logger:   logger,
	}
}

// RunOnce は現在時刻より前に期限切れになったセッションを削除し、削除件数を返す。
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	start := j.clock.Now()

	deleted, err := j.sessions.DeleteExpired(ctx, start)
	if err != nil {
		j.logger.Error("セッションクリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	j.metrics.RecordExpiredSessionsDeleted(deleted)
	j.logger.Info("セッションクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(j.clock.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start はinterval間隔でRunOnceを繰り返す。起動直後にも1回実行する。
// ctxがキャンセルされるまでブロックする。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := j.clock.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッションクリーンアップを開始しました", slog.Duration("interval", interval))

	j.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップを停止しました")
			return
		case <-ticker.Chan():
			j.RunOnce(ctx)
		}
	}
}
