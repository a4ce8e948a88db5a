// Package client はWeb UIからAPIサーバーを呼び出すHTTPクライアントを提供する。
// ブラウザから受け取ったセッションCookieをそのまま転送し、利用者本人としてAPIを呼ぶ。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/fiturae/fiturae/internal/middleware"
	"github.com/fiturae/fiturae/internal/model"
	"github.com/fiturae/fiturae/internal/session"
)

const (
	// maxResponseBytes はAPIレスポンスとして読み取る最大サイズ。
	maxResponseBytes = 1 << 20

	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
)

// Client はAPIサーバーのクライアント。
// リダイレクトは追従せず、3xxはそのままエラーとして扱う。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// New はClientを生成する。timeoutは1リクエストあたりの上限。
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger,
		baseURL: baseURL,
	}
}

// As はセッションIDを持つ利用者としてAPIを呼ぶUserClientを返す。
// sessionIDが空の場合は未ログインとして呼び出す。
func (c *Client) As(sessionID string) *UserClient {
	return &UserClient{client: c, sessionID: sessionID}
}

// UserClient は1人の利用者のセッションに紐付いたAPIクライアント。
type UserClient struct {
	client    *Client
	sessionID string
}

// Me はGET /api/auth/meでログイン中の利用者を照会する。
// 401/403や空のレスポンスは未ログインとして nil, nil を返す。
// 通信エラーやそれ以外の非2xxはエラーを返す。
func (u *UserClient) Me(ctx context.Context) (*session.Identity, error) {
	if u.sessionID == "" {
		return nil, nil
	}

	status, body, err := u.do(ctx, http.MethodGet, "/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, nil
	case status < 200 || status >= 300:
		return nil, fmt.Errorf("identity lookup returned status %d", status)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var identity session.Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, fmt.Errorf("identityレスポンスのパースに失敗しました: %w", err)
	}
	if identity.ID == "" {
		return nil, nil
	}
	return &identity, nil
}

// ListWorkouts はユーザーのワークアウト一覧を取得する。
func (u *UserClient) ListWorkouts(ctx context.Context, userID string) ([]model.Workout, error) {
	var workouts []model.Workout
	if err := u.call(ctx, http.MethodGet, "/api/workouts/"+url.PathEscape(userID), nil, &workouts); err != nil {
		return nil, err
	}
	if workouts == nil {
		workouts = []model.Workout{}
	}
	return workouts, nil
}

// GetWorkout は1件のワークアウトを取得する。
func (u *UserClient) GetWorkout(ctx context.Context, id string) (*model.Workout, error) {
	var workout model.Workout
	if err := u.call(ctx, http.MethodGet, "/api/workouts/details/"+url.PathEscape(id), nil, &workout); err != nil {
		return nil, err
	}
	return &workout, nil
}

// CreateWorkout はワークアウトを登録する。
func (u *UserClient) CreateWorkout(ctx context.Context, details model.WorkoutDetails) (*model.Workout, error) {
	var workout model.Workout
	if err := u.call(ctx, http.MethodPost, "/api/workouts", details, &workout); err != nil {
		return nil, err
	}
	return &workout, nil
}

// EditWorkout はワークアウトを更新する。
func (u *UserClient) EditWorkout(ctx context.Context, id string, edit model.WorkoutEdit) (*model.Workout, error) {
	var workout model.Workout
	if err := u.call(ctx, http.MethodPut, "/api/workouts/"+url.PathEscape(id), edit, &workout); err != nil {
		return nil, err
	}
	return &workout, nil
}

// DeleteWorkout はワークアウトを削除する。
func (u *UserClient) DeleteWorkout(ctx context.Context, id string) error {
	return u.call(ctx, http.MethodDelete, "/api/workouts/"+url.PathEscape(id), nil, nil)
}

// Logout はAPI側のセッションを破棄する。
// APIはログアウト後にリダイレクトを返すため、3xxも成功として扱う。
func (u *UserClient) Logout(ctx context.Context) error {
	status, _, err := u.do(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("logout returned status %d", status)
	}
	return nil
}

// call はJSONのAPIを呼び出し、2xxならoutへデコードする。
// 4xxで統一エラーフォーマットの本文があれば*model.APIErrorを返す。
func (u *UserClient) call(ctx context.Context, method, path string, in, out any) error {
	status, body, err := u.do(ctx, method, path, in)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return decodeAPIError(status, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

func (u *UserClient) do(ctx context.Context, method, path string, in any) (int, []byte, error) {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.client.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: u.sessionID})
	}
	if method != http.MethodGet {
		// サーバー間呼び出しではdouble-submitの組をリクエストごとに発行する
		token := uuid.NewString()
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
		req.Header.Set(csrfHeaderName, token)
	}

	resp, err := u.client.httpClient.Do(req)
	if err != nil {
		u.client.logger.Error("APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode >= 500 {
		u.client.logger.Error("APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
	}
	return resp.StatusCode, body, nil
}

// StatusError は統一エラーフォーマットを持たない非2xxレスポンスを表す。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var resp middleware.ErrorResponseBody
	if err := json.Unmarshal(body, &resp); err != nil || resp.Code == "" {
		return &StatusError{StatusCode: status}
	}
	return &model.APIError{
		Code:     resp.Code,
		Message:  resp.Message,
		Category: resp.Category,
		Action:   resp.Action,
	}
}

// ErrorCode はerrがAPIエラーであればそのコードを返す。
func ErrorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

var _ session.Lookup = (*UserClient)(nil)
