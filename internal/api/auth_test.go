package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"bookflow/internal/config"

	"github.com/stretchr/testify/assert"
)

func authConfig(rps float64, burst int) config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "op-key", Name: "front desk", Permissions: []string{permOperator}},
				{Key: "ro-key", Name: "dashboard", Permissions: []string{"read:catalog"}},
				{Key: "any-key", Name: "legacy"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: rps, Burst: burst},
	}
}

func TestIsOperator(t *testing.T) {
	auth := NewHTTPAuth(authConfig(100, 100))

	request := func(key string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
		if key != "" {
			r.Header.Set("x-api-key", key)
		}
		return r
	}

	assert.True(t, auth.IsOperator(request("op-key")))
	assert.False(t, auth.IsOperator(request("ro-key")))
	// No permission list means the key is unrestricted.
	assert.True(t, auth.IsOperator(request("any-key")))
	assert.False(t, auth.IsOperator(request("bad-key")))
	assert.False(t, auth.IsOperator(request("")))
}

func TestRateLimitPerClient(t *testing.T) {
	auth := NewHTTPAuth(authConfig(1, 2))
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	fire := func(key, addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
		r.RemoteAddr = addr
		if key != "" {
			r.Header.Set("x-api-key", key)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	// Burst of two, then limited.
	assert.Equal(t, http.StatusOK, fire("", "192.0.2.1:1000"))
	assert.Equal(t, http.StatusOK, fire("", "192.0.2.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, fire("", "192.0.2.1:1000"))

	// A different client IP has its own bucket.
	assert.Equal(t, http.StatusOK, fire("", "192.0.2.2:1000"))

	// An API key is its own bucket regardless of IP.
	assert.Equal(t, http.StatusOK, fire("op-key", "192.0.2.1:1000"))
}

func TestRateLimitDisabled(t *testing.T) {
	auth := NewHTTPAuth(authConfig(0, 0))
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 50; i++ {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
