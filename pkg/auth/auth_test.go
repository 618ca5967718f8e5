package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "carbon.identity"}

func TestSignAndParse(t *testing.T) {
	token, err := Sign(testConfig, "user-1", []string{"activities:read", "activities:write"}, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope("activities:read"))
	require.True(t, claims.HasScope("activities:write"))
	require.False(t, claims.HasScope("admin"))
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 2*time.Second)
}

func TestParseRejectsBadTokens(t *testing.T) {
	_, err := Parse("", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	token, err := Sign(Config{Secret: "other", Issuer: testConfig.Issuer}, "user-1", nil, time.Hour)
	require.NoError(t, err)
	_, err = Parse(token, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	token, err = Sign(Config{Secret: testConfig.Secret, Issuer: "someone-else"}, "user-1", nil, time.Hour)
	require.NoError(t, err)
	_, err = Parse(token, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	token, err = Sign(testConfig, "user-1", nil, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(token, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	token, err = Sign(testConfig, "", nil, time.Hour)
	require.NoError(t, err)
	_, err = Parse(token, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1", "iss": testConfig.Issuer})
	signed, err := noExpiry.SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	_, err = Parse(signed, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseSpaceSeparatedScopes(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":                "user-1",
		"iss":                testConfig.Issuer,
		"exp":                time.Now().Add(time.Hour).Unix(),
		"scopes":             "activities:read  activities:write",
		"preferred_username": "sonia",
	})
	signed, err := token.SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	claims, err := Parse(signed, testConfig)
	require.NoError(t, err)
	require.Len(t, claims.Scopes, 2)
	require.Equal(t, "sonia", claims.Username)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mw := NewMiddleware(testConfig,
		func(r *http.Request) bool { return r.URL.Path == "/healthz" },
		func(r *http.Request) bool { return r.URL.Path == "/v1/calculator" },
	).Wrap(next)

	serve := func(path, header string) int {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		mw.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusNoContent, serve("/healthz", ""))
	require.Equal(t, http.StatusUnauthorized, serve("/v1/activities", ""))
	require.Equal(t, http.StatusUnauthorized, serve("/v1/activities", "Basic abc"))

	require.Equal(t, http.StatusNoContent, serve("/v1/calculator", ""))
	require.Nil(t, seen)

	token, err := Sign(testConfig, "user-1", []string{"activities:read"}, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, serve("/v1/calculator", "Bearer "+token))
	require.Equal(t, "user-1", seen.Subject)
	require.Equal(t, http.StatusUnauthorized, serve("/v1/calculator", "Bearer garbage"))

	require.Equal(t, http.StatusNoContent, serve("/v1/activities", "bearer "+token))
	require.Equal(t, "user-1", seen.Subject)
}
