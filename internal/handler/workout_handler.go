package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fiturae/fiturae/internal/model"
)

// WorkoutServiceInterface はワークアウトハンドラーが必要とするサービスインターフェース。
// actorIDはセッションのユーザーIDで、所有者チェックに使われる。
type WorkoutServiceInterface interface {
	Add(ctx context.Context, actorID string, details model.WorkoutDetails) (*model.Workout, error)
	ListByUser(ctx context.Context, actorID, userID string) ([]*model.Workout, error)
	GetByID(ctx context.Context, actorID, id string) (*model.Workout, error)
	Edit(ctx context.Context, actorID, id string, edit model.WorkoutEdit) (*model.Workout, error)
	Delete(ctx context.Context, actorID, id string) error
}

// WorkoutHandler はワークアウト管理のHTTPハンドラー。
type WorkoutHandler struct {
	service WorkoutServiceInterface
}

// NewWorkoutHandler はWorkoutHandlerを生成する。
func NewWorkoutHandler(service WorkoutServiceInterface) *WorkoutHandler {
	return &WorkoutHandler{service: service}
}

// AddWorkout はワークアウトを作成する。
// POST /api/workouts
func (h *WorkoutHandler) AddWorkout(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var details model.WorkoutDetails
	if !decodeJSON(w, r, &details) {
		return
	}

	workout, err := h.service.Add(r.Context(), actorID, details)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workout)
}

// ListWorkouts はユーザーのワークアウト一覧を返す。
// GET /api/workouts/{userId}
func (h *WorkoutHandler) ListWorkouts(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	workouts, err := h.service.ListByUser(r.Context(), actorID, chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workouts)
}

// GetWorkout はワークアウトの詳細を返す。
// GET /api/workouts/details/{id}
func (h *WorkoutHandler) GetWorkout(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	workout, err := h.service.GetByID(r.Context(), actorID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workout)
}

// EditWorkout はワークアウトを更新する。
// PUT /api/workouts/{id}
func (h *WorkoutHandler) EditWorkout(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var edit model.WorkoutEdit
	if !decodeJSON(w, r, &edit) {
		return
	}

	workout, err := h.service.Edit(r.Context(), actorID, chi.URLParam(r, "id"), edit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workout)
}

// DeleteWorkout はワークアウトを削除する。
// DELETE /api/workouts/{id}
func (h *WorkoutHandler) DeleteWorkout(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), actorID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
