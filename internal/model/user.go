package model

import "time"

// User はサービス利用ユーザーを表す。
// JSONはAPIのレスポンス形式（camelCase）に合わせる。
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// NewUser はユーザー登録リクエストの本文を表す。
type NewUser struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
	ImageURL string `json:"imageUrl" validate:"omitempty,url"`
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Me は GET /api/auth/me のレスポンスを表す。
type Me struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// MeFromUser はユーザーからMeを組み立てる。
func MeFromUser(u *User) Me {
	return Me{ID: u.ID, Name: u.Name, ImageURL: u.ImageURL}
}
