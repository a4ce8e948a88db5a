// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/fiturae/fiturae/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はidentityを持たないユーザーを作成する（POST /api/users）。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はIdPから取得した表示名・メール・アバターURLで上書きする。
	UpdateProfile(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、workoutsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// WorkoutRepository はワークアウトデータの永続化インターフェース。
type WorkoutRepository interface {
	// Create はワークアウトを作成する。IDが空の場合はDB側で採番する。
	Create(ctx context.Context, workout *model.Workout) error

	// FindByID は指定IDのワークアウトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Workout, error)

	// ListByUserID はユーザーのワークアウト一覧を曜日順で返す。0件の場合は空スライスを返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Workout, error)

	// Update は名前・曜日・説明・プランを上書きする。IDと所有ユーザーは変更しない。
	// 対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, workout *model.Workout) (bool, error)

	// Delete は指定IDのワークアウトを削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteByUserID はユーザーの全ワークアウトを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
