package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Errors surfaced by the credential exchange.
var (
	// ErrInvalidCredentials is a definitive rejection of the user's email/password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTransient marks a network or timeout condition on the auth transport.
	ErrTransient = errors.New("authentication transport failure")
)

// DefaultPrimaryTimeout bounds the primary sign-in before the raw fallback runs.
const DefaultPrimaryTimeout = 4 * time.Second

// TokenPair is the credential material held by a signed-in session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Account is the authenticated identity issued by the auth provider.
type Account struct {
	ID    string
	Email string
}

// Session is a token pair bound to its account.
type Session struct {
	Tokens  TokenPair
	Account Account
}

// Provider is the managed auth client.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	// SetSession installs an externally obtained token pair into the provider's
	// session layer and returns the validated session.
	SetSession(ctx context.Context, tokens TokenPair) (Session, error)
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// TokenExchanger is the raw protocol fallback: a bare password-grant request
// against the token endpoint, bypassing the managed client.
type TokenExchanger interface {
	ExchangePassword(ctx context.Context, email, password string) (Session, error)
}

// TenantProvisioner registers the tenant rows for a fresh owner account.
type TenantProvisioner interface {
	Provision(ctx context.Context, owner Account, input TenantInput) (Tenant, error)
}

// TenantInput carries the business fields of a registration.
type TenantInput struct {
	OwnerName    string
	BusinessName string
	Phone        string
	Slug         *string
}

// Tenant is the provisioned tenant summary returned to the caller.
type Tenant struct {
	BusinessID uuid.UUID
	Slug       string
}

// ExchangeConfig carries Exchange dependencies.
type ExchangeConfig struct {
	Provider       Provider
	Fallback       TokenExchanger
	Tenants        TenantProvisioner
	Logger         *zap.Logger
	PrimaryTimeout time.Duration // 0 means DefaultPrimaryTimeout
	// OnAuthenticated fires after any path yields a valid session; the session
	// layer uses it to start classification under the generation guard. It must
	// not block.
	OnAuthenticated func(Session)
}

// Exchange implements dual-path login and tenant registration.
type Exchange struct {
	provider        Provider
	fallback        TokenExchanger
	tenants         TenantProvisioner
	logger          *zap.Logger
	primaryTimeout  time.Duration
	onAuthenticated func(Session)
}

// NewExchange constructs an Exchange with required dependencies.
func NewExchange(cfg ExchangeConfig) *Exchange {
	if cfg.Provider == nil {
		panic("auth provider is required")
	}
	if cfg.Fallback == nil {
		panic("token exchanger is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.PrimaryTimeout
	if timeout <= 0 {
		timeout = DefaultPrimaryTimeout
	}
	return &Exchange{
		provider:        cfg.Provider,
		fallback:        cfg.Fallback,
		tenants:         cfg.Tenants,
		logger:          logger,
		primaryTimeout:  timeout,
		onAuthenticated: cfg.OnAuthenticated,
	}
}

// Login races the primary sign-in against the timeout and falls back to the
// raw token exchange on timeout or transient failure. A definitive credential
// rejection surfaces immediately: falling back would mask the real error and
// waste the attempt. Success returns as soon as a valid token pair exists;
// classification runs asynchronously via OnAuthenticated.
func (e *Exchange) Login(ctx context.Context, email, password string) (Session, error) {
	type result struct {
		sess Session
		err  error
	}
	// Buffered so a late primary result is dropped, not leaked.
	primary := make(chan result, 1)
	go func() {
		sess, err := e.provider.SignInWithPassword(ctx, email, password)
		primary <- result{sess: sess, err: err}
	}()

	timer := time.NewTimer(e.primaryTimeout)
	defer timer.Stop()

	var sess Session
	select {
	case res := <-primary:
		if res.err == nil {
			sess = res.sess
			break
		}
		if errors.Is(res.err, ErrInvalidCredentials) {
			return Session{}, res.err
		}
		e.logger.Warn("primary sign-in failed; using token-exchange fallback", zap.Error(res.err))
		fallbackSess, err := e.loginFallback(ctx, email, password)
		if err != nil {
			return Session{}, err
		}
		sess = fallbackSess
	case <-timer.C:
		e.logger.Warn("primary sign-in timed out; using token-exchange fallback",
			zap.Duration("timeout", e.primaryTimeout))
		fallbackSess, err := e.loginFallback(ctx, email, password)
		if err != nil {
			return Session{}, err
		}
		sess = fallbackSess
	}

	if e.onAuthenticated != nil {
		e.onAuthenticated(sess)
	}
	return sess, nil
}

// loginFallback performs the raw token exchange and manually installs the
// resulting pair into the provider's session layer.
func (e *Exchange) loginFallback(ctx context.Context, email, password string) (Session, error) {
	sess, err := e.fallback.ExchangePassword(ctx, email, password)
	if err != nil {
		return Session{}, err
	}

	installed, err := e.provider.SetSession(ctx, sess.Tokens)
	if err != nil {
		// The token pair itself is valid; a failed install is not fatal.
		e.logger.Warn("installing fallback session failed", zap.Error(err))
		return sess, nil
	}
	return installed, nil
}

// RegisterTenant bootstraps a new tenant: authenticated identity first, then
// the tenant rows (slug allocation, atomic business+owner insert, best-effort
// catalog seeding inside the provisioner). The fresh session triggers
// classification so the caller observes the new ownership.
func (e *Exchange) RegisterTenant(ctx context.Context, email, password string, input TenantInput) (Session, Tenant, error) {
	if e.tenants == nil {
		panic("tenant provisioner is required for registration")
	}

	sess, err := e.provider.SignUp(ctx, email, password)
	if err != nil {
		return Session{}, Tenant{}, err
	}

	tenant, err := e.tenants.Provision(ctx, sess.Account, input)
	if err != nil {
		return Session{}, Tenant{}, err
	}

	if e.onAuthenticated != nil {
		e.onAuthenticated(sess)
	}
	return sess, tenant, nil
}

// Logout revokes the session with the provider. Revocation is best-effort:
// the local session clear (handled by the session layer) must not depend on it.
func (e *Exchange) Logout(ctx context.Context, accessToken string) {
	if err := e.provider.SignOut(ctx, accessToken); err != nil {
		e.logger.Warn("provider sign-out failed", zap.Error(err))
	}
}
