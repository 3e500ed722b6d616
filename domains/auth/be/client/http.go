package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/bookline-app/bookline-core/domains/auth/be/service"
)

// Config carries the auth endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per-request transport timeout (0 leaves resty default)
}

// HTTP implements both the managed provider and the raw token-exchange
// fallback over the auth service's REST endpoints.
type HTTP struct {
	rest   *resty.Client
	logger *zap.Logger
}

// New constructs an HTTP auth client.
func New(cfg Config, logger *zap.Logger) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("auth base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		rest.SetHeader("apikey", cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		rest.SetTimeout(cfg.Timeout)
	}

	return &HTTP{rest: rest, logger: logger}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (e errorResponse) message() string {
	switch {
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Msg != "":
		return e.Msg
	default:
		return e.Error
	}
}

// SignInWithPassword is the managed sign-in path: a password grant followed by
// a user fetch so the session carries the provider's view of the account.
func (h *HTTP) SignInWithPassword(ctx context.Context, email, password string) (service.Session, error) {
	sess, err := h.passwordGrant(ctx, email, password)
	if err != nil {
		return service.Session{}, err
	}

	acct, err := h.fetchUser(ctx, sess.Tokens.AccessToken)
	if err != nil {
		// The grant succeeded; keep the claims-derived account.
		h.logger.Debug("user fetch after sign-in failed; using token claims", zap.Error(err))
		return sess, nil
	}
	sess.Account = acct
	return sess, nil
}

// ExchangePassword is the raw fallback: the bare token request, nothing else.
func (h *HTTP) ExchangePassword(ctx context.Context, email, password string) (service.Session, error) {
	return h.passwordGrant(ctx, email, password)
}

// SetSession validates an externally obtained token pair by resolving its user.
func (h *HTTP) SetSession(ctx context.Context, tokens service.TokenPair) (service.Session, error) {
	acct, err := h.fetchUser(ctx, tokens.AccessToken)
	if err != nil {
		return service.Session{}, err
	}
	return service.Session{Tokens: tokens, Account: acct}, nil
}

// SignUp creates the authenticated identity and returns its initial session.
func (h *HTTP) SignUp(ctx context.Context, email, password string) (service.Session, error) {
	var (
		ok   tokenResponse
		fail errorResponse
	)
	resp, err := h.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&ok).
		SetError(&fail).
		Post("/signup")
	if err != nil {
		return service.Session{}, fmt.Errorf("signup request: %w: %w", service.ErrTransient, err)
	}
	if resp.IsError() {
		return service.Session{}, h.mapError(resp.StatusCode(), fail)
	}

	return sessionFromToken(ok)
}

// SignOut revokes the access token; the caller treats failures as best-effort.
func (h *HTTP) SignOut(ctx context.Context, accessToken string) error {
	resp, err := h.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		Post("/logout")
	if err != nil {
		return fmt.Errorf("logout request: %w: %w", service.ErrTransient, err)
	}
	if resp.IsError() {
		return fmt.Errorf("logout rejected: status %d", resp.StatusCode())
	}
	return nil
}

func (h *HTTP) passwordGrant(ctx context.Context, email, password string) (service.Session, error) {
	var (
		ok   tokenResponse
		fail errorResponse
	)
	resp, err := h.rest.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&ok).
		SetError(&fail).
		Post("/token")
	if err != nil {
		return service.Session{}, fmt.Errorf("token request: %w: %w", service.ErrTransient, err)
	}
	if resp.IsError() {
		return service.Session{}, h.mapError(resp.StatusCode(), fail)
	}

	return sessionFromToken(ok)
}

func (h *HTTP) fetchUser(ctx context.Context, accessToken string) (service.Account, error) {
	var (
		ok struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		}
		fail errorResponse
	)
	resp, err := h.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&ok).
		SetError(&fail).
		Get("/user")
	if err != nil {
		return service.Account{}, fmt.Errorf("user request: %w: %w", service.ErrTransient, err)
	}
	if resp.IsError() {
		return service.Account{}, h.mapError(resp.StatusCode(), fail)
	}
	return service.Account{ID: ok.ID, Email: ok.Email}, nil
}

// mapError separates definitive credential rejections from transient transport
// conditions; only the former may short-circuit the login fallback.
func (h *HTTP) mapError(status int, fail errorResponse) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity, http.StatusForbidden:
		return fmt.Errorf("%w: %s", service.ErrInvalidCredentials, fail.message())
	default:
		return fmt.Errorf("%w: status %d: %s", service.ErrTransient, status, fail.message())
	}
}

func sessionFromToken(tok tokenResponse) (service.Session, error) {
	if tok.AccessToken == "" {
		return service.Session{}, fmt.Errorf("%w: token response missing access token", service.ErrTransient)
	}

	sess := service.Session{
		Tokens: service.TokenPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken},
	}
	if tok.User != nil {
		sess.Account = service.Account{ID: tok.User.ID, Email: tok.User.Email}
		return sess, nil
	}

	acct, err := accountFromClaims(tok.AccessToken)
	if err != nil {
		return service.Session{}, fmt.Errorf("token response missing user: %w", err)
	}
	sess.Account = acct
	return sess, nil
}

// accountFromClaims recovers the identity from the access token payload when
// the endpoint omits the user object. The token is not validated here; the
// issuing endpoint is trusted to have signed it.
func accountFromClaims(accessToken string) (service.Account, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return service.Account{}, fmt.Errorf("parse access token: %w", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return service.Account{}, errors.New("access token missing sub claim")
	}
	email, _ := claims["email"].(string)
	return service.Account{ID: sub, Email: email}, nil
}

// Ensure interface compliance.
var (
	_ service.Provider       = (*HTTP)(nil)
	_ service.TokenExchanger = (*HTTP)(nil)
)
