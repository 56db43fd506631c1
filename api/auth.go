package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/footprint-ledger/ledger"
)

// =============================================================================
// CALLER IDENTITY - HS256 bearer tokens
// =============================================================================
//
// The ledger only needs an opaque caller identity. Here it is the "sub" claim
// of a bearer JWT. Requests without a token proceed anonymously; write
// handlers reject anonymous callers.

// AuthConfig holds signer verification parameters.
type AuthConfig struct {
	Secret string
	Issuer string
}

// ErrMissingToken is returned when the Authorization header is absent.
var ErrMissingToken = errors.New("missing bearer token")

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid bearer token")

type contextKey string

const callerKey contextKey = "footprint-caller"

// ParseCaller validates token and returns its subject.
func ParseCaller(token string, cfg AuthConfig) (ledger.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}
	return ledger.Identity(subject), nil
}

// IssueToken signs a token for subject. Used by tests and local tooling.
func IssueToken(subject string, cfg AuthConfig) (string, error) {
	claims := jwt.MapClaims{"sub": subject}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

// Authenticate resolves the bearer token, if any, into a caller identity on
// the request context. A malformed or invalid token is rejected with 401.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Authorization must be a bearer token", nil)
				return
			}
			caller, err := ParseCaller(token, cfg)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid bearer token", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// WithCaller stores the caller identity on the context.
func WithCaller(ctx context.Context, caller ledger.Identity) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom retrieves the identity stored by WithCaller.
func CallerFrom(ctx context.Context) (ledger.Identity, bool) {
	caller, ok := ctx.Value(callerKey).(ledger.Identity)
	return caller, ok && caller != ""
}
