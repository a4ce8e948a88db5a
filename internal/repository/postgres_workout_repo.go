package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fiturae/fiturae/internal/model"
)

// PostgresWorkoutRepo はPostgreSQLを使用したワークアウトリポジトリ。
// プランはJSONBカラムに配列として保存する。
type PostgresWorkoutRepo struct {
	db *sql.DB
}

// NewPostgresWorkoutRepo はPostgresWorkoutRepoを生成する。
func NewPostgresWorkoutRepo(db *sql.DB) *PostgresWorkoutRepo {
	return &PostgresWorkoutRepo{db: db}
}

const workoutColumns = `id, user_id, workout_name, workout_day, description, plan, created_at, updated_at`

// 曜日順（月曜始まり）で並べるための式。
const workoutDayOrder = `array_position(ARRAY['MONDAY','TUESDAY','WEDNESDAY','THURSDAY','FRIDAY','SATURDAY','SUNDAY']::varchar[], workout_day)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkout(row rowScanner) (*model.Workout, error) {
	w := &model.Workout{}
	var day string
	var plan []byte
	if err := row.Scan(&w.ID, &w.UserID, &w.WorkoutName, &day, &w.Description, &plan, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.WorkoutDay = model.WeekDay(day)
	if err := json.Unmarshal(plan, &w.Plan); err != nil {
		return nil, fmt.Errorf("failed to decode workout plan: %w", err)
	}
	if w.Plan == nil {
		w.Plan = []model.WorkoutExercise{}
	}
	return w, nil
}

func encodePlan(plan []model.WorkoutExercise) ([]byte, error) {
	if plan == nil {
		plan = []model.WorkoutExercise{}
	}
	b, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workout plan: %w", err)
	}
	return b, nil
}

// Create はワークアウトを作成する。IDが空の場合はDB側で採番し、workoutに書き戻す。
func (r *PostgresWorkoutRepo) Create(ctx context.Context, workout *model.Workout) error {
	plan, err := encodePlan(workout.Plan)
	if err != nil {
		return err
	}

	var id sql.NullString
	if workout.ID != "" {
		id = sql.NullString{String: workout.ID, Valid: true}
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO workouts (id, user_id, workout_name, workout_day, description, plan, created_at, updated_at)
		 VALUES (COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		id, workout.UserID, workout.WorkoutName, string(workout.WorkoutDay), workout.Description, plan,
		workout.CreatedAt, workout.UpdatedAt,
	).Scan(&workout.ID)
	if err != nil {
		return fmt.Errorf("failed to insert workout: %w", err)
	}
	return nil
}

// FindByID は指定IDのワークアウトを取得する。見つからない場合はnilを返す。
func (r *PostgresWorkoutRepo) FindByID(ctx context.Context, id string) (*model.Workout, error) {
	if !isUUID(id) {
		return nil, nil
	}

	w, err := scanWorkout(r.db.QueryRowContext(ctx,
		`SELECT `+workoutColumns+` FROM workouts WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find workout by ID: %w", err)
	}
	return w, nil
}

// ListByUserID はユーザーのワークアウト一覧を曜日順・作成日時順で返す。
// 0件の場合は空スライスを返す。
func (r *PostgresWorkoutRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Workout, error) {
	workouts := []*model.Workout{}
	if !isUUID(userID) {
		return workouts, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+workoutColumns+` FROM workouts
		 WHERE user_id = $1
		 ORDER BY `+workoutDayOrder+`, created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workouts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workout: %w", err)
		}
		workouts = append(workouts, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workouts: %w", err)
	}
	return workouts, nil
}

// Update は名前・曜日・説明・プランとupdated_atを上書きする。
// 対象が存在しない場合はfalseを返す。
func (r *PostgresWorkoutRepo) Update(ctx context.Context, workout *model.Workout) (bool, error) {
	if !isUUID(workout.ID) {
		return false, nil
	}
	plan, err := encodePlan(workout.Plan)
	if err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE workouts
		 SET workout_name = $2, workout_day = $3, description = $4, plan = $5, updated_at = $6
		 WHERE id = $1`,
		workout.ID, workout.WorkoutName, string(workout.WorkoutDay), workout.Description, plan, workout.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update workout: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete は指定IDのワークアウトを削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresWorkoutRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM workouts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete workout: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteByUserID はユーザーの全ワークアウトを削除する。
func (r *PostgresWorkoutRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM workouts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user workouts: %w", err)
	}
	return nil
}

// compile-time interface check
var _ WorkoutRepository = (*PostgresWorkoutRepo)(nil)
