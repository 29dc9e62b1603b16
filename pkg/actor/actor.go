// Package actor identifies the user or system performing an action.
//
// Handlers attach the verified principal to the request context; the
// allocation engine records it as allocated_by / released_by.
package actor

import (
	"context"
	"fmt"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID or token subject)
	ID string `json:"id"`

	// Name is a display name, when the token carries one
	Name string `json:"name,omitempty"`

	// Email is the actor's email address
	Email string `json:"email,omitempty"`

	// Source records how the actor was established: "token", "gateway" or "system"
	Source string `json:"source"`
}

// Actor sources
const (
	SourceToken   = "token"
	SourceGateway = "gateway"
	SourceSystem  = "system"
)

const systemID = "00000000-0000-0000-0000-000000000000"

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	if a.Email == "" {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", a.ID, a.Email)
}

// Ref is the value stored in audit columns
func (a *Actor) Ref() string {
	if a == nil {
		return SourceSystem
	}
	if a.Email != "" {
		return a.Email
	}
	return a.ID
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the service itself.
// Use this for the audit scheduler and broker-driven releases.
func SystemActor(name string) *Actor {
	return &Actor{
		ID:     systemID,
		Name:   name,
		Email:  name + "@system.rentora.local",
		Source: SourceSystem,
	}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == systemID
}
