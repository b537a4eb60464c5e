// Package security implements policy administration.
package security

import (
	"context"

	"sqlguard/internal/domain"
)

// requireCapability checks that the caller in context holds the named
// capability. Returns AccessDeniedError if not authenticated or not
// entitled.
func requireCapability(ctx context.Context, capability string) (domain.CallerContext, error) {
	c, ok := domain.CallerFromContext(ctx)
	if !ok {
		return c, domain.ErrAccessDenied(domain.CodeInsufficientPermission,
			"authentication required")
	}
	if !c.Role.Can(capability) {
		return c, domain.ErrAccessDenied(domain.CodeInsufficientPermission,
			"capability %s required", capability)
	}
	return c, nil
}
