package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Space captures the resolved tenant routing metadata for a request. It is
// attached to the context by middleware once the tenant has been resolved
// from the request's slug segment.
type Space struct {
	BusinessID uuid.UUID
	Slug       string
	Name       string
}

type ctxKey string

const spaceKey ctxKey = "BOOKLINE_TENANT_SPACE"

// WithSpace returns a derived context carrying the tenant Space.
func WithSpace(ctx context.Context, space Space) context.Context {
	return context.WithValue(ctx, spaceKey, space)
}

// FromContext extracts the tenant Space and a boolean indicating presence.
func FromContext(ctx context.Context) (Space, bool) {
	v := ctx.Value(spaceKey)
	if v == nil {
		return Space{}, false
	}

	space, ok := v.(Space)
	return space, ok
}
