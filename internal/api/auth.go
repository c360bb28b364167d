package api

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"bookflow/internal/config"

	"golang.org/x/time/rate"
)

const permOperator = "operator:book"

// HTTPAuth rate-limits every request and authenticates the operator surface.
// The customer flow carries no credentials; requests with a valid API key get
// operator privileges and a per-key limiter instead of the per-IP one.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsOperator reports whether the request carries an API key with the
// operator permission. An empty permission list grants everything the key's
// owner configured it for.
func (a *HTTPAuth) IsOperator(r *http.Request) bool {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerAPIKey()))
	if apiKey == "" {
		return false
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return false
	}
	if len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == permOperator {
			return true
		}
	}
	return false
}

func (a *HTTPAuth) headerAPIKey() string {
	h := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		h = "x-api-key"
	}
	return h
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := a.clientKey(r)
	lim := a.getLimiter(key)
	if !lim.Allow() {
		return errRateLimited
	}
	return nil
}

var errRateLimited = &rateLimitError{}

type rateLimitError struct{}

func (e *rateLimitError) Error() string { return "rate limit exceeded" }

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerAPIKey())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
