package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookline-app/bookline-core/domains/auth/be/service"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTP {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)
	return c
}

// respondJSON writes body with the JSON content type; without the header the
// client's response decoding never runs.
func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// unsignedToken builds a JWT-shaped token with the given claims and an empty
// signature, enough for claim recovery without validation.
func unsignedToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "."
}

func TestSignInWithPasswordHappyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "password", r.URL.Query().Get("grant_type"))
		require.Equal(t, "test-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "owner@joescuts.com", body["email"])

		respondJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"user":          map[string]string{"id": "user-1", "email": "owner@joescuts.com"},
		})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		respondJSON(w, http.StatusOK, map[string]string{"id": "user-1", "email": "owner@joescuts.com"})
	})

	c := newTestClient(t, mux)
	sess, err := c.SignInWithPassword(context.Background(), "owner@joescuts.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "at-1", sess.Tokens.AccessToken)
	require.Equal(t, "rt-1", sess.Tokens.RefreshToken)
	require.Equal(t, service.Account{ID: "user-1", Email: "owner@joescuts.com"}, sess.Account)
}

func TestExchangePasswordRecoversAccountFromClaims(t *testing.T) {
	var token string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		// No user object in the response: the claims are the only identity source.
		respondJSON(w, http.StatusOK, map[string]any{
			"access_token":  token,
			"refresh_token": "rt-1",
		})
	})

	c := newTestClient(t, mux)
	token = unsignedToken(t, map[string]any{"sub": "user-1", "email": "owner@joescuts.com"})

	sess, err := c.ExchangePassword(context.Background(), "owner@joescuts.com", "secret")
	require.NoError(t, err)
	require.Equal(t, service.Account{ID: "user-1", Email: "owner@joescuts.com"}, sess.Account)
}

func TestPasswordGrantMapsRejectionToInvalidCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error_description": "Invalid login credentials"})
	})

	c := newTestClient(t, mux)
	_, err := c.ExchangePassword(context.Background(), "owner@joescuts.com", "wrong")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	require.ErrorContains(t, err, "Invalid login credentials")
}

func TestPasswordGrantMapsServerFailureToTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c := newTestClient(t, mux)
	_, err := c.ExchangePassword(context.Background(), "owner@joescuts.com", "secret")
	require.ErrorIs(t, err, service.ErrTransient)
}

func TestSignInKeepsClaimsAccountWhenUserFetchFails(t *testing.T) {
	var token string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"access_token": token, "refresh_token": "rt-1"})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, mux)
	token = unsignedToken(t, map[string]any{"sub": "user-1", "email": "owner@joescuts.com"})

	sess, err := c.SignInWithPassword(context.Background(), "owner@joescuts.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "user-1", sess.Account.ID)
}

func TestSetSessionResolvesUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-external", r.Header.Get("Authorization"))
		respondJSON(w, http.StatusOK, map[string]string{"id": "user-1", "email": "owner@joescuts.com"})
	})

	c := newTestClient(t, mux)
	sess, err := c.SetSession(context.Background(), service.TokenPair{AccessToken: "at-external", RefreshToken: "rt-external"})
	require.NoError(t, err)
	require.Equal(t, "at-external", sess.Tokens.AccessToken)
	require.Equal(t, "user-1", sess.Account.ID)
}

func TestSignUpReturnsInitialSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /signup", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at-new",
			"refresh_token": "rt-new",
			"user":          map[string]string{"id": "user-new", "email": "new@joescuts.com"},
		})
	})

	c := newTestClient(t, mux)
	sess, err := c.SignUp(context.Background(), "new@joescuts.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "user-new", sess.Account.ID)
}

func TestSignOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, mux)
	require.NoError(t, c.SignOut(context.Background(), "at-1"))
}

func TestTokenResponseMissingAccessToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"refresh_token": "rt-only"})
	})

	c := newTestClient(t, mux)
	_, err := c.ExchangePassword(context.Background(), "owner@joescuts.com", "secret")
	require.ErrorIs(t, err, service.ErrTransient)
}
