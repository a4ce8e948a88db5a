package model

import "time"

// WeekDay はワークアウトを行う曜日を表す。
type WeekDay string

// 曜日の定義。DBのCHECK制約と一致させる。
const (
	Monday    WeekDay = "MONDAY"
	Tuesday   WeekDay = "TUESDAY"
	Wednesday WeekDay = "WEDNESDAY"
	Thursday  WeekDay = "THURSDAY"
	Friday    WeekDay = "FRIDAY"
	Saturday  WeekDay = "SATURDAY"
	Sunday    WeekDay = "SUNDAY"
)

// WeekDays は月曜始まりの曜日一覧を返す。フォームのセレクトボックスにも使う。
func WeekDays() []WeekDay {
	return []WeekDay{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// Valid は曜日として有効な値かを返す。
func (d WeekDay) Valid() bool {
	for _, wd := range WeekDays() {
		if d == wd {
			return true
		}
	}
	return false
}

// WorkoutExercise はワークアウト内の1種目を表す。
type WorkoutExercise struct {
	Name   string  `json:"name" validate:"required,max=100"`
	Sets   int     `json:"sets" validate:"gte=0,lte=100"`
	Reps   int     `json:"reps" validate:"gte=0,lte=1000"`
	Weight float64 `json:"weight" validate:"gte=0"`
}

// Workout はユーザーが登録したワークアウトを表す。
type Workout struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	WorkoutName string            `json:"workoutName"`
	WorkoutDay  WeekDay           `json:"workoutDay"`
	Description string            `json:"description"`
	Plan        []WorkoutExercise `json:"plan"`
	CreatedAt   time.Time         `json:"-"`
	UpdatedAt   time.Time         `json:"-"`
}

// WorkoutDetails はワークアウト作成リクエストの本文を表す。
type WorkoutDetails struct {
	UserID      string            `json:"userId" validate:"required"`
	WorkoutName string            `json:"workoutName" validate:"required,max=100"`
	WorkoutDay  WeekDay           `json:"workoutDay" validate:"required,weekday"`
	Description string            `json:"description" validate:"max=2000"`
	Plan        []WorkoutExercise `json:"plan" validate:"max=50,dive"`
}

// WorkoutEdit はワークアウト更新リクエストの本文を表す。
// IDと所有ユーザーは変更できない。
type WorkoutEdit struct {
	WorkoutName string            `json:"workoutName" validate:"required,max=100"`
	WorkoutDay  WeekDay           `json:"workoutDay" validate:"required,weekday"`
	Description string            `json:"description" validate:"max=2000"`
	Plan        []WorkoutExercise `json:"plan" validate:"max=50,dive"`
}
