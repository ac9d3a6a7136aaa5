package interceptors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FACorreiaa/cityinfo-api/internal/types"
	"github.com/FACorreiaa/cityinfo-api/pkg/httpx"
)

// Claims is the bearer token payload. City drives the points of interest
// access policy.
type Claims struct {
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	City       string `json:"city,omitempty"`
	jwt.RegisteredClaims
}

// Claim returns the named custom claim.
func (c *Claims) Claim(name string) (string, bool) {
	switch name {
	case "city":
		return c.City, c.City != ""
	case "given_name":
		return c.GivenName, c.GivenName != ""
	case "family_name":
		return c.FamilyName, c.FamilyName != ""
	case "sub":
		return c.Subject, c.Subject != ""
	default:
		return "", false
	}
}

type claimsKey struct{}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// ContextWithClaims is used by tests and by callers that authenticate by
// other means.
func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// TokenValidator checks HS256 bearer tokens.
type TokenValidator struct {
	secret   []byte
	issuer   string
	audience string
}

func NewTokenValidator(secret []byte, issuer, audience string) *TokenValidator {
	return &TokenValidator{secret: secret, issuer: issuer, audience: audience}
}

func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("no signing secret configured: %w", types.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w: %w", types.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", types.ErrUnauthenticated)
	}
	return claims, nil
}

// IssueToken signs claims for ttl. It backs the development token command.
func (v *TokenValidator) IssueToken(claims Claims, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if v.issuer != "" {
		claims.Issuer = v.issuer
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// NewAuthMiddleware requires a valid bearer token on every request except
// those whose path starts with one of publicPrefixes.
func NewAuthMiddleware(validator *TokenValidator, publicPrefixes ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range publicPrefixes {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				httpx.WriteJSON(w, http.StatusUnauthorized, httpx.FromError(types.ErrUnauthenticated))
				return
			}

			claims, err := validator.Validate(strings.TrimSpace(raw))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				httpx.WriteJSON(w, http.StatusUnauthorized, httpx.FromError(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireClaim admits only callers whose token carries claim with value.
func RequireClaim(claim, value string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httpx.WriteJSON(w, http.StatusUnauthorized, httpx.FromError(types.ErrUnauthenticated))
				return
			}
			if got, ok := claims.Claim(claim); !ok || got != value {
				httpx.WriteJSON(w, http.StatusForbidden, httpx.FromError(types.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
