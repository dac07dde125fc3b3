package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/torchbearer.quest/internal/engine/authz"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// actorClaims is the JWT payload the campaign gateway issues per member.
type actorClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// TokenVerifier validates bearer tokens into actor identities.
//
// Tokens are HMAC-signed by the campaign gateway with a shared secret; the
// engine never issues them.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier creates a verifier for the shared signing secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{secret: secret, now: time.Now}
}

// ParseActor validates the token and extracts the actor identity.
func (v *TokenVerifier) ParseActor(token string) (authz.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return authz.Actor{}, errors.New(errors.CodeMissingActor, "bearer token is required")
	}

	var claims actorClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return authz.Actor{}, errors.Wrap(errors.CodeMissingActor, "invalid bearer token", err)
	}

	role, err := authz.ParseRole(claims.Role)
	if err != nil {
		return authz.Actor{}, errors.Wrap(errors.CodeInvalidActorRole, "token carries an unknown role", err)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return authz.Actor{}, errors.New(errors.CodeMissingActor, "token carries no user id")
	}

	return authz.Actor{UserID: claims.UserID, Role: role}, nil
}

// RequireActor resolves the Authorization header into the request context.
//
// The role is derived exactly once here; downstream operations consume the
// capability value from the context.
func (v *TokenVerifier) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, errors.New(errors.CodeMissingActor, "missing bearer authorization"))
			return
		}
		actor, err := v.ParseActor(token)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.WithActor(r.Context(), actor)))
	})
}
