package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fiturae/fiturae/internal/database"
	"github.com/fiturae/fiturae/internal/model"
	"github.com/fiturae/fiturae/internal/testsupport"
)

// setupRepoDB はマイグレーション済みのクリーンなデータベースを返す。
func setupRepoDB(t *testing.T) *sql.DB {
	t.Helper()

	db, dbURL := testsupport.OpenDB(t)
	testsupport.ResetSchema(t, db)
	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	return db
}

// createTestUser はテスト用のユーザーを1件作成する。
func createTestUser(t *testing.T, repo *PostgresUserRepo, name string) *model.User {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &model.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     name + "@example.com",
		ImageURL:  "https://avatars.example.com/" + name + ".png",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("ユーザー作成に失敗: %v", err)
	}
	return user
}
