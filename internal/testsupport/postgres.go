// Package testsupport はテスト間で共有するヘルパーを提供する。
package testsupport

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresImage = "postgres:16-alpine"

var (
	containerOnce sync.Once
	containerURL  string
	containerErr  error
)

// PostgresURL はテスト用PostgreSQLの接続URLを返す。
// TEST_DATABASE_URL が設定されていればそれを使い、未設定ならテストプロセスごとに
// 1つだけコンテナを起動して共有する。コンテナはプロセス終了時にreaperが回収する。
// Dockerが使えない環境や -short 指定時はテストをスキップする。
func PostgresURL(t testing.TB) string {
	t.Helper()

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	if testing.Short() {
		t.Skip("-short 指定のためPostgreSQLを使うテストをスキップ")
	}

	containerOnce.Do(func() {
		containerURL, containerErr = startPostgres(context.Background())
	})
	if containerErr != nil {
		t.Skipf("テスト用PostgreSQLを起動できません（スキップ）: %v", containerErr)
	}
	return containerURL
}

func startPostgres(ctx context.Context) (string, error) {
	ctr, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("fiturae_test"),
		postgres.WithUsername("fiturae"),
		postgres.WithPassword("fiturae"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return "", err
	}
	return ctr.ConnectionString(ctx, "sslmode=disable")
}

// OpenDB はPostgresURLの接続を開き、テスト終了時に閉じる。
// 接続できない場合はスキップする。
func OpenDB(t testing.TB) (*sql.DB, string) {
	t.Helper()

	url := PostgresURL(t)
	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, url
}

// ResetSchema はアプリケーションのテーブルとマイグレーション履歴を削除する。
func ResetSchema(t testing.TB, db *sql.DB) {
	t.Helper()

	const cleanupSQL = `
		DROP TABLE IF EXISTS workouts CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
		DROP TABLE IF EXISTS identities CASCADE;
		DROP TABLE IF EXISTS users CASCADE;
		DROP TABLE IF EXISTS schema_migrations CASCADE;
	`
	if _, err := db.Exec(cleanupSQL); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
}
