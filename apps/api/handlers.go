package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	authservice "github.com/bookline-app/bookline-core/domains/auth/be/service"
	identityservice "github.com/bookline-app/bookline-core/domains/identity/be/service"
	tenantsservice "github.com/bookline-app/bookline-core/domains/tenants/be/service"
	platformlogging "github.com/bookline-app/bookline-core/platform/go/logging"
	"github.com/bookline-app/bookline-core/platform/go/requesttrace"
	"github.com/bookline-app/bookline-core/platform/go/tenant"
)

type apiHandlers struct {
	exchange *authservice.Exchange
	provider authservice.Provider
	sessions *sessionRegistry
	logger   *zap.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	OwnerName    string  `json:"ownerName"`
	BusinessName string  `json:"businessName"`
	Phone        string  `json:"phone"`
	Slug         *string `json:"slug,omitempty"`
}

func (h *apiHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.exchange.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authservice.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, authservice.ErrTransient):
			writeError(w, http.StatusBadGateway, "authentication service unavailable")
		default:
			platformlogging.FromRequest(r, h.logger).Error("login failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  sess.Tokens.AccessToken,
		"refreshToken": sess.Tokens.RefreshToken,
		"user":         map[string]string{"id": sess.Account.ID, "email": sess.Account.Email},
	})
}

func (h *apiHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, tenant, err := h.exchange.RegisterTenant(r.Context(), req.Email, req.Password, authservice.TenantInput{
		OwnerName:    req.OwnerName,
		BusinessName: req.BusinessName,
		Phone:        req.Phone,
		Slug:         req.Slug,
	})
	if err != nil {
		switch {
		case errors.Is(err, tenantsservice.ErrSlugExhausted):
			writeError(w, http.StatusConflict, "cannot provision tenant, contact support")
		case errors.Is(err, authservice.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, "registration rejected")
		case errors.Is(err, authservice.ErrTransient):
			writeError(w, http.StatusBadGateway, "authentication service unavailable")
		default:
			platformlogging.FromRequest(r, h.logger).Error("tenant registration failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"businessId":   tenant.BusinessID.String(),
		"slug":         tenant.Slug,
		"accessToken":  sess.Tokens.AccessToken,
		"refreshToken": sess.Tokens.RefreshToken,
	})
}

func (h *apiHandlers) logout(w http.ResponseWriter, r *http.Request) {
	r, token, acct, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	h.exchange.Logout(r.Context(), token)
	h.sessions.For(acct.ID).Logout()
	h.sessions.Drop(acct.ID)

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	platformlogging.FromRequest(r, h.logger).Info("session closed",
		zap.String("actor", string(audit.ActorKind)),
		zap.Stringp("user_id", audit.UserID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) session(w http.ResponseWriter, r *http.Request) {
	r, _, acct, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	mgr := h.sessions.For(acct.ID)
	snap := mgr.Snapshot()
	if snap.Principal == nil && !snap.Resolving {
		// The resolution outlives this request; net/http cancels r.Context()
		// the moment the handler returns.
		mgr.Resolve(context.WithoutCancel(r.Context()), identityservice.AuthenticatedUser{ID: acct.ID, Email: acct.Email})
		snap = mgr.Snapshot()
	}

	writeJSON(w, http.StatusOK, snapshotJSON(snap))
}

func (h *apiHandlers) refreshSession(w http.ResponseWriter, r *http.Request) {
	r, _, acct, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	mgr := h.sessions.For(acct.ID)
	settled := mgr.Refresh(context.WithoutCancel(r.Context()), identityservice.AuthenticatedUser{ID: acct.ID, Email: acct.Email})
	select {
	case <-settled:
	case <-r.Context().Done():
	}

	writeJSON(w, http.StatusOK, snapshotJSON(mgr.Snapshot()))
}

// business serves the public tenant summary resolved by the tenant-space
// middleware.
func (h *apiHandlers) business(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "tenant not resolved")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"businessId": space.BusinessID.String(),
		"slug":       space.Slug,
		"name":       space.Name,
	})
}

// authenticate resolves the bearer token to its account via the provider and
// upgrades the request's audit record to the authenticated actor.
func (h *apiHandlers) authenticate(w http.ResponseWriter, r *http.Request) (*http.Request, string, authservice.Account, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return r, "", authservice.Account{}, false
	}

	sess, err := h.provider.SetSession(r.Context(), authservice.TokenPair{AccessToken: token})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid session token")
		return r, "", authservice.Account{}, false
	}

	requestID := requesttrace.FromContextOrAnonymous(r.Context()).RequestID
	if audit, err := requesttrace.ForUser(sess.Account.ID, requestID); err == nil {
		r = r.WithContext(requesttrace.IntoContext(r.Context(), audit))
	}
	return r, token, sess.Account, true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func snapshotJSON(snap identityservice.Snapshot) map[string]any {
	return map[string]any{
		"principal": principalJSON(snap.Principal),
		"resolving": snap.Resolving,
	}
}

// principalJSON renders the tagged union; the kind discriminator tells clients
// which fields exist.
func principalJSON(p identityservice.Principal) any {
	switch v := p.(type) {
	case identityservice.SuperAdmin:
		return map[string]any{
			"kind":   "super_admin",
			"userId": v.UserID,
		}
	case identityservice.BusinessOwner:
		return map[string]any{
			"kind":       "business_owner",
			"userId":     v.UserID,
			"businessId": v.BusinessID.String(),
			"subscription": map[string]any{
				"status":        string(v.Subscription.Status),
				"periodEnd":     v.Subscription.PeriodEnd,
				"daysRemaining": v.Subscription.DaysRemaining,
			},
		}
	case identityservice.StaffMember:
		return map[string]any{
			"kind":        "staff_member",
			"userId":      v.UserID,
			"businessId":  v.BusinessID.String(),
			"employeeId":  v.EmployeeID.String(),
			"displayName": v.DisplayName,
		}
	case identityservice.Unclassified:
		return map[string]any{
			"kind":         "unclassified",
			"userId":       v.UserID,
			"email":        v.Email,
			"isSuperAdmin": v.IsSuperAdmin,
		}
	default:
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
