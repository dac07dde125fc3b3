// Package authz centralizes the capability check for engine operations.
//
// The actor's role is resolved once at the transport boundary into an Actor
// value carried on the request context; every operation consumes the value
// instead of re-deriving roles.
package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// Role is a campaign-scoped authority level.
type Role string

const (
	// RolePlayer is a regular campaign participant.
	RolePlayer Role = "player"
	// RoleDM runs the campaign.
	RoleDM Role = "dm"
	// RoleCoDM shares DM authority.
	RoleCoDM Role = "co_dm"
	// RoleAdmin has platform-wide authority.
	RoleAdmin Role = "admin"
)

// ParseRole validates a wire role value.
func ParseRole(value string) (Role, error) {
	switch Role(strings.TrimSpace(value)) {
	case RolePlayer:
		return RolePlayer, nil
	case RoleDM:
		return RoleDM, nil
	case RoleCoDM:
		return RoleCoDM, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

// Actor is the resolved caller identity for one request.
type Actor struct {
	UserID string
	Role   Role
}

// System is the internal actor used by the enemy-turn executor.
var System = Actor{UserID: "system", Role: RoleAdmin}

// IsZero reports whether no actor was resolved.
func (a Actor) IsZero() bool {
	return a.UserID == "" && a.Role == ""
}

// CanModerate reports DM-level authority (DM, co-DM, or admin).
func (a Actor) CanModerate() bool {
	return a.Role == RoleDM || a.Role == RoleCoDM || a.Role == RoleAdmin
}

type contextKey struct{}

// WithActor stores the resolved actor on the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFromContext returns the resolved actor, or an error when the
// request carried no identity.
func ActorFromContext(ctx context.Context) (Actor, error) {
	actor, _ := ctx.Value(contextKey{}).(Actor)
	if actor.IsZero() {
		return Actor{}, errors.New(errors.CodeMissingActor, "request carries no actor identity")
	}
	return actor, nil
}

// RequireModerator fails unless the actor holds DM-level authority.
func RequireModerator(actor Actor) error {
	if !actor.CanModerate() {
		return errors.WithMetadata(errors.CodePhaseForbidden,
			"operation requires DM authority",
			map[string]string{"role": string(actor.Role)})
	}
	return nil
}
