// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fiturae/fiturae/internal/model"
	"github.com/fiturae/fiturae/internal/repository"
	"github.com/fiturae/fiturae/internal/security"
	"github.com/fiturae/fiturae/internal/validation"
)

// WorkoutDeleter はワークアウトの一括削除インターフェース。
type WorkoutDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// Service はユーザー管理のサービス層。
// ユーザー登録・参照・退会のビジネスロジックを提供する。
type Service struct {
	userRepo       repository.UserRepository
	sessionRepo    repository.SessionRepository
	workoutDeleter WorkoutDeleter
	validator      *validation.Validator
	sanitizer      security.TextSanitizerService
	clock          clockwork.Clock
}

// NewService はServiceの新しいインスタンスを生成する。
// clockがnilの場合は実時間を使う。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	workoutDeleter WorkoutDeleter,
	clock clockwork.Clock,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		userRepo:       userRepo,
		sessionRepo:    sessionRepo,
		workoutDeleter: workoutDeleter,
		validator:      validation.New(),
		sanitizer:      security.NewTextSanitizer(),
		clock:          clock,
	}
}

// AddUser はidentityを持たないユーザーを登録する。IDはサーバー側で採番する。
func (s *Service) AddUser(ctx context.Context, in model.NewUser) (*model.User, error) {
	in.Name = s.sanitizer.Sanitize(in.Name)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	u := &model.User{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Email:     in.Email,
		ImageURL:  in.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました", slog.String("user_id", u.ID))
	return u, nil
}

// GetUserByID は指定IDのユーザーを返す。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: workouts → sessions → user（+ CASCADE: identities）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. ワークアウトを削除
	if s.workoutDeleter != nil {
		if err := s.workoutDeleter.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("ワークアウトの削除に失敗しました: %w", err)
		}
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 3. ユーザーを削除（identitiesはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
