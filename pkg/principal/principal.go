// Package principal establishes who is calling the inventory service.
//
// Tokens are issued by the external auth service; this package only verifies
// them. Behind the API gateway the verified identity arrives as X-User-*
// headers instead.
package principal

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rentora/rentora-backend/pkg/actor"
	"github.com/rentora/rentora-backend/pkg/config"
	"github.com/rentora/rentora-backend/pkg/errors"
	"github.com/rentora/rentora-backend/pkg/httputil"
)

// Claims are the access-token claims this service reads
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Verifier checks bearer tokens and gateway headers
type Verifier struct {
	secret              []byte
	issuer              string
	trustGatewayHeaders bool
}

// NewVerifier creates a verifier from JWT config
func NewVerifier(cfg *config.JWTConfig) *Verifier {
	return &Verifier{
		secret:              []byte(cfg.Secret),
		issuer:              cfg.Issuer,
		trustGatewayHeaders: cfg.TrustGatewayHeaders,
	}
}

// VerifyToken validates an HS256 access token and returns its actor
func (v *Verifier) VerifyToken(tokenString string) (*actor.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Unauthorized("token has expired")
		}
		return nil, errors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.Unauthorized("invalid token")
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return nil, errors.Unauthorized("token has no subject")
	}

	return &actor.Actor{ID: id, Name: claims.Name, Email: claims.Email, Source: actor.SourceToken}, nil
}

// Middleware attaches the caller's actor to the request context when one can be
// established. It never rejects; use Require on routes that need a principal.
// A bearer token that fails verification is rejected with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if auth := r.Header.Get("Authorization"); auth != "" {
			tokenString, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				httputil.ErrorLocalized(w, r, errors.Unauthorized("malformed authorization header"))
				return
			}
			a, err := v.VerifyToken(strings.TrimSpace(tokenString))
			if err != nil {
				httputil.ErrorLocalized(w, r, err)
				return
			}
			ctx = actor.WithActor(ctx, a)
			httputil.NoteActor(ctx, a.Ref())
		} else if v.trustGatewayHeaders {
			if userID := r.Header.Get("X-User-ID"); userID != "" {
				email := r.Header.Get("X-User-Email")
				a := &actor.Actor{ID: userID, Email: email, Source: actor.SourceGateway}
				ctx = actor.WithActor(ctx, a)
				httputil.NoteActor(ctx, a.Ref())
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require rejects requests that carry no principal
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor.FromContext(r.Context()) == nil {
			httputil.ErrorLocalized(w, r, errors.Unauthorized("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
