// Package auth resolves bearer tokens into callers. Tokens are issued by the
// upstream identity provider; the engine only verifies the signature and
// reads the subject and role.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/okian/verdict/internal/domain/model"
)

// Claims is the token payload.
type Claims struct {
	Role string `json:"role"`
	jwtlib.RegisteredClaims
}

// Verifier parses and validates HS256 tokens.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithIssuer requires tokens to carry iss = issuer.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithLeeway tolerates clock skew on exp/nbf.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.leeway = d
		}
	}
}

// NewVerifier builds a Verifier for secret.
func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	v := &Verifier{secret: []byte(secret), leeway: 30 * time.Second}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Parse validates token and returns the caller it identifies.
func (v *Verifier) Parse(token string) (model.Caller, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.issuer))
	}
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(*jwtlib.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return model.Caller{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return model.Caller{}, ErrInvalidToken
	}
	return claimsToCaller(claims)
}

func claimsToCaller(c *Claims) (model.Caller, error) {
	if strings.TrimSpace(c.Subject) == "" {
		return model.Caller{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role := model.Role(strings.ToLower(strings.TrimSpace(c.Role)))
	switch role {
	case model.RoleEvaluator, model.RoleAdmin:
	default:
		return model.Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}
	return model.Caller{ID: c.Subject, Role: role}, nil
}

// Issue signs a token for caller. Used by tooling and tests; production
// tokens come from the identity provider.
func Issue(secret, issuer string, caller model.Caller, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims := Claims{
		Role: string(caller.Role),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   caller.ID,
			Issuer:    issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type contextKey string

const callerKey contextKey = "verdict-caller"

// WithCaller stores caller on ctx.
func WithCaller(ctx context.Context, caller model.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom extracts the caller placed by Middleware.
func CallerFrom(ctx context.Context) (model.Caller, bool) {
	c, ok := ctx.Value(callerKey).(model.Caller)
	return c, ok
}

// Middleware resolves the bearer token when one is present. Requests without
// a header pass through anonymously; handlers that need a caller reject them.
// A malformed or invalid token is rejected with 401 here.
func (v *Verifier) Middleware(onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if strings.TrimSpace(header) == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, err := BearerToken(header)
			if err == nil {
				var caller model.Caller
				caller, err = v.Parse(token)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
					return
				}
			}
			onError(w, r, err)
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrMissingToken
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("%w: invalid authorization header format", ErrInvalidToken)
	}
	return parts[1], nil
}
