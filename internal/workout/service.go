// Package workout はワークアウト管理のドメインロジックを提供する。
//
// 全ての操作は操作者（セッションのユーザー）を受け取り、
// 他ユーザーのワークアウトへのアクセスはFORBIDDENとして拒否する。
package workout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/fiturae/fiturae/internal/metrics"
	"github.com/fiturae/fiturae/internal/model"
	"github.com/fiturae/fiturae/internal/repository"
	"github.com/fiturae/fiturae/internal/security"
	"github.com/fiturae/fiturae/internal/validation"
)

// UserFinder はユーザーの存在確認に必要なインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Service はワークアウトのサービス層。
type Service struct {
	repo      repository.WorkoutRepository
	users     UserFinder
	validator *validation.Validator
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
	clock     clockwork.Clock
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorとclockはnilでもよい。
func NewService(
	repo repository.WorkoutRepository,
	users UserFinder,
	collector metrics.MetricsCollector,
	clock clockwork.Clock,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		repo:      repo,
		users:     users,
		validator: validation.New(),
		sanitizer: security.NewTextSanitizer(),
		metrics:   collector,
		clock:     clock,
	}
}

// Add はワークアウトを作成する。
// userIdが省略された場合は操作者のワークアウトとして作成する。
func (s *Service) Add(ctx context.Context, actorID string, details model.WorkoutDetails) (*model.Workout, error) {
	if details.UserID == "" {
		details.UserID = actorID
	}
	details.WorkoutName = s.sanitizer.Sanitize(details.WorkoutName)
	details.Description = s.sanitizer.Sanitize(details.Description)
	details.Plan = s.sanitizePlan(details.Plan)
	if err := s.validator.Struct(details); err != nil {
		return nil, err
	}

	// 存在しないユーザーは所有者チェックより先に404 "The user is unknown" とする。
	if err := s.ensureUser(ctx, details.UserID); err != nil {
		return nil, err
	}
	if details.UserID != actorID {
		return nil, model.NewForbiddenError()
	}

	now := s.clock.Now()
	w := &model.Workout{
		UserID:      details.UserID,
		WorkoutName: details.WorkoutName,
		WorkoutDay:  details.WorkoutDay,
		Description: details.Description,
		Plan:        details.Plan,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("ワークアウトの作成に失敗しました: %w", err)
	}

	s.metrics.RecordWorkoutMutation(metrics.OpCreate)
	slog.Info("ワークアウトを作成しました",
		slog.String("user_id", w.UserID),
		slog.String("workout_id", w.ID),
		slog.String("workout_day", string(w.WorkoutDay)),
		slog.Int("plan_size", len(w.Plan)),
	)
	return w, nil
}

// ListByUser はユーザーのワークアウト一覧を返す。0件の場合は空スライスを返す。
func (s *Service) ListByUser(ctx context.Context, actorID, userID string) ([]*model.Workout, error) {
	// Addと同じく存在確認を所有者チェックより先に行う。
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	if userID != actorID {
		return nil, model.NewForbiddenError()
	}

	workouts, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ワークアウト一覧の取得に失敗しました: %w", err)
	}
	return workouts, nil
}

// GetByID は指定IDのワークアウトを返す。
func (s *Service) GetByID(ctx context.Context, actorID, id string) (*model.Workout, error) {
	return s.findOwned(ctx, actorID, id)
}

// Edit はワークアウトの名前・曜日・説明・プランを更新する。IDと所有ユーザーは保持する。
func (s *Service) Edit(ctx context.Context, actorID, id string, edit model.WorkoutEdit) (*model.Workout, error) {
	edit.WorkoutName = s.sanitizer.Sanitize(edit.WorkoutName)
	edit.Description = s.sanitizer.Sanitize(edit.Description)
	edit.Plan = s.sanitizePlan(edit.Plan)
	if err := s.validator.Struct(edit); err != nil {
		return nil, err
	}

	w, err := s.findOwned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	w.WorkoutName = edit.WorkoutName
	w.WorkoutDay = edit.WorkoutDay
	w.Description = edit.Description
	w.Plan = edit.Plan
	w.UpdatedAt = s.clock.Now()

	ok, err := s.repo.Update(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("ワークアウトの更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewWorkoutNotFoundError()
	}

	s.metrics.RecordWorkoutMutation(metrics.OpUpdate)
	slog.Info("ワークアウトを更新しました",
		slog.String("user_id", w.UserID),
		slog.String("workout_id", w.ID),
	)
	return w, nil
}

// Delete はワークアウトを削除する。
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	w, err := s.findOwned(ctx, actorID, id)
	if err != nil {
		return err
	}

	ok, err := s.repo.Delete(ctx, w.ID)
	if err != nil {
		return fmt.Errorf("ワークアウトの削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewWorkoutNotFoundError()
	}

	s.metrics.RecordWorkoutMutation(metrics.OpDelete)
	slog.Info("ワークアウトを削除しました",
		slog.String("user_id", w.UserID),
		slog.String("workout_id", w.ID),
	)
	return nil
}

func (s *Service) ensureUser(ctx context.Context, userID string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}
	return nil
}

func (s *Service) findOwned(ctx context.Context, actorID, id string) (*model.Workout, error) {
	w, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ワークアウトの取得に失敗しました: %w", err)
	}
	if w == nil {
		return nil, model.NewWorkoutNotFoundError()
	}
	if w.UserID != actorID {
		return nil, model.NewForbiddenError()
	}
	return w, nil
}

func (s *Service) sanitizePlan(plan []model.WorkoutExercise) []model.WorkoutExercise {
	out := make([]model.WorkoutExercise, len(plan))
	for i, ex := range plan {
		ex.Name = s.sanitizer.Sanitize(ex.Name)
		out[i] = ex
	}
	return out
}
