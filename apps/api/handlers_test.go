package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	authservice "github.com/bookline-app/bookline-core/domains/auth/be/service"
	identityservice "github.com/bookline-app/bookline-core/domains/identity/be/service"
	subscriptions "github.com/bookline-app/bookline-core/domains/subscriptions/be/service"
)

type stubAuthProvider struct {
	account authservice.Account
}

func (p *stubAuthProvider) SignInWithPassword(ctx context.Context, email, password string) (authservice.Session, error) {
	return authservice.Session{}, errors.New("not used")
}

func (p *stubAuthProvider) SetSession(ctx context.Context, tokens authservice.TokenPair) (authservice.Session, error) {
	return authservice.Session{Tokens: tokens, Account: p.account}, nil
}

func (p *stubAuthProvider) SignUp(ctx context.Context, email, password string) (authservice.Session, error) {
	return authservice.Session{}, errors.New("not used")
}

func (p *stubAuthProvider) SignOut(ctx context.Context, accessToken string) error {
	return nil
}

// slowDirectory answers lookups after a short delay and honors context
// cancellation the way a real store driver does.
type slowDirectory struct {
	businessID uuid.UUID
}

func (d *slowDirectory) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
		return nil
	}
}

func (d *slowDirectory) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	if err := d.wait(ctx); err != nil {
		return false, err
	}
	return false, nil
}

func (d *slowDirectory) OwnerLinkByUserID(ctx context.Context, userID string) (identityservice.OwnerLink, error) {
	if err := d.wait(ctx); err != nil {
		return identityservice.OwnerLink{}, err
	}
	return identityservice.OwnerLink{LinkID: uuid.New(), BusinessID: d.businessID, UserID: userID}, nil
}

func (d *slowDirectory) OwnerLinkByEmail(ctx context.Context, email string) (identityservice.OwnerLink, error) {
	if err := d.wait(ctx); err != nil {
		return identityservice.OwnerLink{}, err
	}
	return identityservice.OwnerLink{}, identityservice.ErrNoMatch
}

func (d *slowDirectory) StaffLinkByUserID(ctx context.Context, userID string) (identityservice.StaffLink, error) {
	if err := d.wait(ctx); err != nil {
		return identityservice.StaffLink{}, err
	}
	return identityservice.StaffLink{}, identityservice.ErrNoMatch
}

func (d *slowDirectory) StaffLinkByEmail(ctx context.Context, email string) (identityservice.StaffLink, error) {
	if err := d.wait(ctx); err != nil {
		return identityservice.StaffLink{}, err
	}
	return identityservice.StaffLink{}, identityservice.ErrNoMatch
}

func (d *slowDirectory) AttachOwnerUser(ctx context.Context, linkID uuid.UUID, userID string) error {
	return nil
}

func (d *slowDirectory) AttachStaffUser(ctx context.Context, employeeID uuid.UUID, userID string) error {
	return nil
}

type fixedSubs struct{}

func (fixedSubs) Resolve(ctx context.Context, businessID uuid.UUID, ownerEmail string) subscriptions.View {
	return subscriptions.View{Status: subscriptions.StatusTrial, DaysRemaining: 15}
}

func TestSessionResolutionOutlivesRequest(t *testing.T) {
	businessID := uuid.New()
	classifier := identityservice.NewClassifier(&slowDirectory{businessID: businessID}, fixedSubs{}, zap.NewNop())
	sessions := newSessionRegistry(func() *identityservice.Manager {
		return identityservice.NewManager(identityservice.ManagerConfig{
			Classifier:    classifier,
			Logger:        zap.NewNop(),
			SafetyTimeout: 2 * time.Second,
		})
	})
	handlers := &apiHandlers{
		provider: &stubAuthProvider{account: authservice.Account{ID: "u1", Email: "owner@joescuts.com"}},
		sessions: sessions,
		logger:   zap.NewNop(),
	}

	// A real server so the request context is cancelled once the handler returns.
	srv := httptest.NewServer(http.HandlerFunc(handlers.session))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer at-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The handler answers while still resolving; the store lookups finish well
	// after the request context is gone and must still land.
	mgr := sessions.For("u1")
	require.Eventually(t, func() bool {
		owner, ok := mgr.Snapshot().Principal.(identityservice.BusinessOwner)
		return ok && owner.BusinessID == businessID
	}, 2*time.Second, 10*time.Millisecond,
		"resolution started by the handler must not die with the request context")
}
