package interceptors

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	validator := NewTokenValidator([]byte("test-secret"), "https://localhost:7169", "cityinfoapi")
	h := NewAuthMiddleware(validator, "/health")(okHandler)

	token, err := validator.IssueToken(Claims{
		GivenName:        "Kevin",
		FamilyName:       "Dockx",
		City:             "Antwerp",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1"},
	}, time.Hour)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		var seen *Claims
		h := NewAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = ClaimsFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cities", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		serve(h, req)
		require.NotNil(t, seen)
		assert.Equal(t, "Antwerp", seen.City)
		assert.Equal(t, "1", seen.Subject)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/cities", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := NewTokenValidator([]byte("other-secret"), "https://localhost:7169", "cityinfoapi")
		forged, err := other.IssueToken(Claims{City: "Antwerp"}, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/cities", nil)
		req.Header.Set("Authorization", "Bearer "+forged)
		assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		expired, err := validator.IssueToken(Claims{City: "Antwerp"}, -time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/cities", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
	})

	t.Run("public path", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	})
}

func TestRequireClaim(t *testing.T) {
	h := RequireClaim("city", "Antwerp")(okHandler)

	tests := []struct {
		name   string
		claims *Claims
		status int
	}{
		{"matching city", &Claims{City: "Antwerp"}, http.StatusOK},
		{"other city", &Claims{City: "Paris"}, http.StatusForbidden},
		{"no city claim", &Claims{GivenName: "Kevin"}, http.StatusForbidden},
		{"unauthenticated", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v2/cities/1/pointsofinterest", nil)
			if tt.claims != nil {
				req = req.WithContext(ContextWithClaims(req.Context(), tt.claims))
			}
			assert.Equal(t, tt.status, serve(h, req).Code)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := NewRequestIDMiddleware("X-Request-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFromContext(r.Context())
	}))

	t.Run("propagates incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rec := serve(h, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	})

	t.Run("mints an id", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := NewRecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/cities", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "nil map write")
	assert.Contains(t, buf.String(), "nil map write")
}

func TestRateLimitMiddleware(t *testing.T) {
	h := NewRateLimitMiddleware(rate.NewLimiter(rate.Every(time.Hour), 1))(okHandler)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestLoggingMiddleware_IncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := Chain(okHandler,
		NewRequestIDMiddleware("X-Request-ID"),
		NewTracingMiddleware(noop.NewTracerProvider().Tracer("test")),
		NewLoggingMiddleware(logger),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cities", nil)
	req.Header.Set("X-Request-ID", "req-42")
	serve(h, req)

	out := buf.String()
	assert.Contains(t, out, "Request completed")
	assert.Contains(t, out, "request_id=req-42")
	assert.Equal(t, 2, strings.Count(out, "req-42"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	serve(Chain(okHandler, mark("outer"), nil, mark("inner")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}
