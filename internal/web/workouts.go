package web

import (
	"context"
	"net/http"

	"github.com/fiturae/fiturae/internal/model"
)

// WorkoutLister はユーザーのワークアウト一覧を取得する。
type WorkoutLister interface {
	ListWorkouts(ctx context.Context, userID string) ([]model.Workout, error)
}

// WorkoutState はリクエスト単位で保持するワークアウトの状態。
// WorkoutProviderの内側のハンドラーから参照する。
type WorkoutState struct {
	UserID   string
	Workouts []model.Workout
	Err      error
}

type workoutStateKey struct{}

// WorkoutsFromContext はWorkoutProviderが設定した状態を返す。
func WorkoutsFromContext(ctx context.Context) *WorkoutState {
	s, _ := ctx.Value(workoutStateKey{}).(*WorkoutState)
	return s
}

// WorkoutProvider はuserIDのワークアウト一覧を読み込み、nextにcontext経由で渡す。
// 読み込みに失敗してもnextは呼び出し、WorkoutState.Errで失敗を伝える。
func WorkoutProvider(lister func(r *http.Request) WorkoutLister, userID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := &WorkoutState{UserID: userID}
		state.Workouts, state.Err = lister(r).ListWorkouts(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), workoutStateKey{}, state)))
	})
}
