package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGitHubAuthURL  = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL = "https://github.com/login/oauth/access_token"
	defaultGitHubUserURL  = "https://api.github.com/user"

	// ProviderGitHub はidentitiesテーブルに保存するプロバイダー名。
	ProviderGitHub = "github"
)

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	UserURL  string

	// HTTPClient が nil の場合はタイムアウト10秒のクライアントを使う。
	HTTPClient *http.Client
}

// GitHubOAuthProvider はGitHub OAuth Appによる認証を提供する。
type GitHubOAuthProvider struct {
	config GitHubOAuthConfig
	client *http.Client
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig) *GitHubOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGitHubAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGitHubTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultGitHubUserURL
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GitHubOAuthProvider{config: config, client: client}
}

// GetLoginURL はGitHubの認可URLを生成する。
// スコープは公開プロフィールとメールアドレスの読み取りのみ。
func (p *GitHubOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":    {p.config.ClientID},
		"redirect_uri": {p.config.RedirectURL},
		"scope":        {"read:user user:email"},
		"state":        {state},
		"allow_signup": {"true"},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

type githubTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *GitHubOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	token, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	user, err := p.fetchUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	// 表示名が未設定のアカウントはログイン名で代用する。
	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &OAuthUserInfo{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          user.Email,
		Name:           name,
		ImageURL:       user.AvatarURL,
		Provider:       ProviderGitHub,
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
// GitHubはエラー時も200を返すことがあるため、本文のerrorも確認する。
func (p *GitHubOAuthProvider) exchangeToken(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, status, err := p.do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("token exchange failed with status %d: %s", status, string(body))
	}

	var tokenResp githubTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.Error != "" {
		return "", fmt.Errorf("token exchange rejected: %s: %s", tokenResp.Error, tokenResp.ErrorDescription)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	return tokenResp.AccessToken, nil
}

// fetchUser はアクセストークンでGitHubのユーザー情報を取得する。
func (p *GitHubOAuthProvider) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	body, status, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("user request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("user fetch failed with status %d: %s", status, string(body))
	}

	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("empty id in user response")
	}

	return &user, nil
}

func (p *GitHubOAuthProvider) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// compile-time interface check
var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
