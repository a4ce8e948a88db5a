// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fiturae/fiturae/internal/model"
	"github.com/fiturae/fiturae/internal/repository"
)

// ErrSessionNotFound はセッションが存在しない、期限切れ、またはユーザーが削除済みの場合に返る。
// ハンドラーはこれを401として扱い、それ以外のエラーは500として扱う。
var ErrSessionNotFound = errors.New("session not found or expired")

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	ImageURL       string
	Provider       string // "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	// Clock が nil の場合は実時間を使う。
	Clock clockwork.Clock
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	clock       clockwork.Clock
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		clock:       clock,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// 登録済みユーザーの場合はIdP側の表示名とアバターでプロフィールを更新してからログインさせる。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	now := s.clock.Now()
	var userID string

	if identity != nil {
		userID = identity.UserID
		if err := s.refreshProfile(ctx, userID, userInfo, now); err != nil {
			return nil, err
		}
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		newUser := &model.User{
			ID:        uuid.New().String(),
			Name:      userInfo.Name,
			Email:     userInfo.Email,
			ImageURL:  userInfo.ImageURL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		newIdentity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         newUser.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}

		userID = newUser.ID
		slog.Info("new user created",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	}

	session, err := s.createSession(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// refreshProfile はIdPの表示名・メール・アバターが変わっていればusersを更新する。
func (s *Service) refreshProfile(ctx context.Context, userID string, info *OAuthUserInfo, now time.Time) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user for identity not found: %s", userID)
	}
	if user.Name == info.Name && user.Email == info.Email && user.ImageURL == info.ImageURL {
		return nil
	}

	user.Name = info.Name
	user.Email = info.Email
	user.ImageURL = info.ImageURL
	user.UpdatedAt = now
	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return fmt.Errorf("failed to refresh user profile: %w", err)
	}
	return nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効な場合は ErrSessionNotFound を返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || !session.ExpiresAt.After(s.clock.Now()) {
		return nil, ErrSessionNotFound
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string, now time.Time) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
