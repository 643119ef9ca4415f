// Package auth verifies the Bearer tokens issued by Agora's external session
// provider and carries the authenticated user id through request contexts.
//
// Agora never issues tokens itself. [Verifier.Middleware] checks the
// Authorization header of every request and, when a valid HS256 JWT is
// present, stores its subject claim via [WithUser]. Requests without a valid
// token are passed on unchanged; orchestrators that need an identity call
// [UserFrom] and fail with an authentication error themselves.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey struct{}

// WithUser returns a copy of ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the authenticated user id stored in ctx, or "" when the
// request is anonymous.
func UserFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Option configures a [Verifier].
type Option func(*Verifier)

// WithAudience requires tokens to carry aud in their audience claim.
func WithAudience(aud string) Option {
	return func(v *Verifier) { v.audience = aud }
}

// WithLeeway tolerates clock skew when checking exp, nbf and iat.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) { v.leeway = d }
}

// Verifier validates HS256 JWTs signed with a shared secret.
type Verifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// New creates a Verifier for tokens signed with secret.
func New(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: secret must not be empty")
	}
	v := &Verifier{secret: []byte(secret)}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Verify parses tokenString and returns its subject claim.
func (v *Verifier) Verify(tokenString string) (string, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("auth: invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("auth: token has no subject")
	}
	return claims.Subject, nil
}

// Middleware attaches the verified user id to the request context. Invalid
// tokens are logged at debug level and otherwise ignored.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := BearerToken(r)
		if tok == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := v.Verify(tok)
		if err != nil {
			slog.Debug("auth: rejecting bearer token", "path", r.URL.Path, "err", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
