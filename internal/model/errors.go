// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, workout, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
	ErrCodeWorkoutNotFound = "WORKOUT_NOT_FOUND"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeCSRF            = "CSRF_TOKEN_INVALID"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Sign in with GitHub and try again.",
	}
}

// NewForbiddenError は他ユーザーのリソースへのアクセスを拒否するエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You are not allowed to access this resource.",
		Category: "auth",
		Action:   "Only your own workouts can be viewed or changed.",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the highlighted fields and submit again.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "The user is unknown",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewWorkoutNotFoundError はワークアウトが見つからない場合のエラーを生成する。
func NewWorkoutNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeWorkoutNotFound,
		Message:  "The workout is unknown",
		Category: "workout",
		Action:   "Go back to your workout list and pick an existing workout.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests.",
		Category: "system",
		Action:   "Please wait and retry after the time given in Retry-After.",
	}
}

// NewCSRFError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and submit again.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ出力し、レスポンスには含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please try again later.",
	}
}
