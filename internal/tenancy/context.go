// Package tenancy carries the caller's tenant and identity through a request.
package tenancy

import "context"

type ctxKey string

const (
	orgKey   ctxKey = "salon.org_id"
	actorKey ctxKey = "salon.actor"
)

// Actor identifies who initiated a request. Kind is "staff", "agent" or
// "system"; agents may only mutate schedules through confirmed actions.
type Actor struct {
	Kind string
	ID   string
}

// String renders the actor as "kind:id" for audit rows.
func (a Actor) String() string {
	if a.Kind == "" {
		return "unknown"
	}
	if a.ID == "" {
		return a.Kind
	}
	return a.Kind + ":" + a.ID
}

// IsAgent reports whether the actor is an automated assistant.
func (a Actor) IsAgent() bool { return a.Kind == "agent" }

// WithOrgID stores the org id in context.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgKey, orgID)
}

// OrgIDFromContext extracts the org id if present.
func OrgIDFromContext(ctx context.Context) (string, bool) {
	orgID, ok := ctx.Value(orgKey).(string)
	return orgID, ok && orgID != ""
}

// WithActor stores the request actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the request actor, or a "system" actor when the
// request carried none.
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorKey).(Actor); ok && actor.Kind != "" {
		return actor
	}
	return Actor{Kind: "system"}
}
