package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"sub": "uid-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *RESTProvider {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTProvider(RESTConfig{BaseURL: srv.URL, APIKey: "k-123"}, zap.NewNop())
}

func TestRESTProvider_SignIn(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	token := signedToken(t, exp)

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signInWithPassword", r.URL.Path)
		assert.Equal(t, "k-123", r.URL.Query().Get("key"))

		var req signInRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ana@gym.test", req.Email)
		assert.True(t, req.ReturnSecureToken)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(signInResponse{
			LocalID:     "uid-1",
			Email:       req.Email,
			DisplayName: "Ana",
			IDToken:     token,
		})
	})

	id, err := p.SignIn(context.Background(), "ana@gym.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", id.UID)
	assert.Equal(t, "Ana", id.DisplayName)
	assert.True(t, exp.Equal(id.ExpiresAt))
	assert.False(t, id.Expired(exp.Add(-time.Minute)))
	assert.True(t, id.Expired(exp))
}

func TestRESTProvider_InvalidCredentials(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`))
	})

	_, err := p.SignIn(context.Background(), "ana@gym.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRESTProvider_OtherErrors(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"USER_DISABLED"}}`))
	})

	_, err := p.SignIn(context.Background(), "ana@gym.test", "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "USER_DISABLED")
}

func TestTokenExpiry_Malformed(t *testing.T) {
	_, ok := tokenExpiry("not-a-jwt")
	assert.False(t, ok)
	_, ok = tokenExpiry("")
	assert.False(t, ok)
}
