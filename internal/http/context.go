package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/room-timetable/internal/application"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Headers carrying the caller identity from the gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	roleAdmin      = "admin"
)

// ContextWithPrincipal returns a derived context containing the authenticated principal.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from context if available.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}

func principalFromHeaders(r *http.Request) (application.Principal, bool) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return application.Principal{}, false
	}
	role := strings.TrimSpace(r.Header.Get(HeaderUserRole))
	return application.Principal{
		UserID:  userID,
		IsAdmin: strings.EqualFold(role, roleAdmin),
	}, true
}
