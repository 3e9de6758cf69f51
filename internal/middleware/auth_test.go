package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"camwatch/internal/model"
)

type fakeValidator struct {
	claims *model.AuthClaims
	err    error
}

func (f *fakeValidator) ValidateToken(string) (*model.AuthClaims, error) {
	return f.claims, f.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, handler http.Handler, authHeader string) (*httptest.ResponseRecorder, model.APIResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body model.APIResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestRequireAuthMissingHeader(t *testing.T) {
	mw := NewAuthMiddleware(&fakeValidator{})
	rec, body := doRequest(t, mw.RequireAuth(okHandler()), "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, body.Error)
	require.Equal(t, "TOKEN_INVALID", body.Error.Code)
}

func TestRequireAuthMalformedHeader(t *testing.T) {
	mw := NewAuthMiddleware(&fakeValidator{})
	rec, body := doRequest(t, mw.RequireAuth(okHandler()), "Basic abc123")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "TOKEN_INVALID", body.Error.Code)
}

func TestRequireAuthExpiredToken(t *testing.T) {
	mw := NewAuthMiddleware(&fakeValidator{err: model.ErrTokenExpired})
	rec, body := doRequest(t, mw.RequireAuth(okHandler()), "Bearer sometoken")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "TOKEN_EXPIRED", body.Error.Code)
}

func TestRequireAuthInvalidToken(t *testing.T) {
	mw := NewAuthMiddleware(&fakeValidator{err: model.ErrTokenInvalid})
	rec, body := doRequest(t, mw.RequireAuth(okHandler()), "Bearer sometoken")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "TOKEN_INVALID", body.Error.Code)
}

func TestRequireAuthPassesClaims(t *testing.T) {
	claims := &model.AuthClaims{Username: "alice", Role: model.RoleUser}
	mw := NewAuthMiddleware(&fakeValidator{claims: claims})

	var seen *model.AuthClaims
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec, _ := doRequest(t, handler, "Bearer sometoken")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, claims, seen)
}

func TestRequireAdminRejectsUserRole(t *testing.T) {
	claims := &model.AuthClaims{Username: "alice", Role: model.RoleUser}
	mw := NewAuthMiddleware(&fakeValidator{claims: claims})

	handler := mw.RequireAuth(mw.RequireAdmin(okHandler()))
	rec, body := doRequest(t, handler, "Bearer sometoken")

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "FORBIDDEN", body.Error.Code)
}

func TestRequireAdminAllowsAdminRole(t *testing.T) {
	claims := &model.AuthClaims{Username: "Admin_G", Role: model.RoleAdmin}
	mw := NewAuthMiddleware(&fakeValidator{claims: claims})

	handler := mw.RequireAuth(mw.RequireAdmin(okHandler()))
	rec, _ := doRequest(t, handler, "Bearer sometoken")

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAdminWithoutAuthContext(t *testing.T) {
	mw := NewAuthMiddleware(&fakeValidator{})
	rec, body := doRequest(t, mw.RequireAdmin(okHandler()), "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "TOKEN_INVALID", body.Error.Code)
}
