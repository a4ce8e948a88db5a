// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/fiturae/fiturae/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	holderContextKey = contextKey("user_id_holder")
)

// userIDHolder は外側のミドルウェアが内側で確定したユーザーIDを参照するための入れ物。
type userIDHolder struct {
	mu     sync.Mutex
	userID string
}

func (h *userIDHolder) get(ctx context.Context) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.userID != "" {
		return h.userID
	}
	userID, _ := UserIDFromContext(ctx)
	return userID
}

func withUserIDHolder(ctx context.Context, h *userIDHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, h)
}

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 UNAUTHORIZEDを返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := lookupSessionUser(r, sessionFinder)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// NewOptionalSessionMiddleware はセッションがあればユーザーIDを注入し、
// なければそのまま次へ渡すミドルウェアを返す。
// ログアウトのようにセッションの有無を問わないエンドポイントで使う。
func NewOptionalSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := lookupSessionUser(r, sessionFinder); ok {
				r = r.WithContext(ContextWithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func lookupSessionUser(r *http.Request, sessionFinder SessionFinder) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to find session",
			slog.String("error", err.Error()),
		)
		return "", false
	}
	if session == nil {
		return "", false
	}
	return session.UserID, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if h, ok := ctx.Value(holderContextKey).(*userIDHolder); ok {
		h.mu.Lock()
		h.userID = userID
		h.mu.Unlock()
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
