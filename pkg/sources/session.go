package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kerbaras/mdbulk/pkg/data"
	"github.com/kerbaras/mdbulk/pkg/utils"
	"go.uber.org/zap"
)

// ErrNotLoggedIn is returned by Token before any login or resume.
var ErrNotLoggedIn = errors.New("not logged in")

// AuthError means the credentials or the refresh token were rejected. It is
// fatal to the current workflow and never retried.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	RefreshAt    time.Time
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Session owns the bearer token pair and refreshes it before it expires.
type Session struct {
	api     *utils.API
	authURL string
	margin  time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu           sync.Mutex
	clientID     string
	clientSecret string
	tokens       TokenPair
}

func NewSession(api *utils.API, authURL string, margin time.Duration, logger *zap.Logger) *Session {
	return &Session{
		api:     api,
		authURL: authURL,
		margin:  margin,
		logger:  logger.Named("session"),
		now:     time.Now,
	}
}

// Login exchanges username and password for a token pair.
func (s *Session) Login(ctx context.Context, creds Credentials) (TokenPair, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"username":      {creds.Username},
		"password":      {creds.Password},
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
	}
	resp, err := s.requestToken(ctx, form)
	if err != nil {
		return TokenPair{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientID = creds.ClientID
	s.clientSecret = creds.ClientSecret
	s.tokens = s.pairFrom(resp)
	s.logger.Info("logged in", zap.String("username", creds.Username))
	return s.tokens, nil
}

// Resume restores a remembered login. The saved refresh token is used right
// away so a stale one fails here instead of on the first real call.
func (s *Session) Resume(ctx context.Context, saved data.SavedLogin) error {
	s.mu.Lock()
	s.clientID = saved.ClientID
	s.clientSecret = saved.ClientSecret
	s.tokens = TokenPair{RefreshToken: saved.RefreshToken}
	s.mu.Unlock()

	_, err := s.Token(ctx)
	return err
}

// Token returns a valid access token, refreshing it first when the refresh
// deadline has passed.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens.RefreshToken == "" {
		return "", ErrNotLoggedIn
	}
	if s.tokens.AccessToken != "" && s.now().Before(s.tokens.RefreshAt) {
		return s.tokens.AccessToken, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {s.tokens.RefreshToken},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}
	resp, err := s.requestToken(ctx, form)
	if err != nil {
		return "", err
	}
	s.tokens = s.pairFrom(resp)
	s.logger.Debug("refreshed access token", zap.Time("refresh_at", s.tokens.RefreshAt))
	return s.tokens.AccessToken, nil
}

// Saved returns what has to be stored to Resume later. The refresh token
// rotates, so it should be re-saved after each run.
func (s *Session) Saved() data.SavedLogin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return data.SavedLogin{
		RefreshToken: s.tokens.RefreshToken,
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
	}
}

func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.RefreshToken != ""
}

// Logout revokes the refresh token on a best-effort basis and always forgets
// the local tokens. It never returns an error.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	tokens := s.tokens
	clientID, clientSecret := s.clientID, s.clientSecret
	s.tokens = TokenPair{}
	s.mu.Unlock()

	if tokens.RefreshToken == "" {
		return
	}
	err := s.api.Do(ctx, utils.Request{
		Method:  http.MethodPost,
		Path:    "logout",
		BaseURL: s.authURL,
		Form: url.Values{
			"refresh_token": {tokens.RefreshToken},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
		},
	}, nil)
	if err != nil {
		s.logger.Warn("logout request failed", zap.Error(err))
	}
}

func (s *Session) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	var resp tokenResponse
	err := s.api.Do(ctx, utils.Request{
		Method:  http.MethodPost,
		Path:    "token",
		BaseURL: s.authURL,
		Form:    form,
	}, &resp)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	if resp.AccessToken == "" {
		return nil, &AuthError{Err: errors.New("token response carried no access token")}
	}
	return &resp, nil
}

// pairFrom computes the refresh deadline. When expires_in is missing the
// unverified exp claim of the access token is used instead.
func (s *Session) pairFrom(resp *tokenResponse) TokenPair {
	now := s.now()
	expiresAt := now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	if resp.ExpiresIn <= 0 {
		expiresAt = now
		claims := jwt.RegisteredClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
	}

	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = s.tokens.RefreshToken
	}
	return TokenPair{
		AccessToken:  resp.AccessToken,
		RefreshToken: refreshToken,
		RefreshAt:    expiresAt.Add(-s.margin),
	}
}
