package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"slotmanager/internal/domain/user"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const userContextKey contextKey = "user"

// DefaultIdentityHeader is the header the upstream proxy sets.
const DefaultIdentityHeader = "X-Remote-User"

// UserResolver looks up the user asserted by the identity header.
type UserResolver interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

// Resolve maps a header value to an active user.
// The value is tried as a user id first, then as an e-mail address.
// POST: Returns ErrUserNotFound or ErrInactiveIdentity when no active user matches
func Resolve(ctx context.Context, users UserResolver, value string) (user.User, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return user.User{}, user.ErrUserNotFound
	}
	u, err := users.GetByID(ctx, value)
	if errors.Is(err, user.ErrUserNotFound) && strings.Contains(value, "@") {
		u, err = users.GetByEmail(ctx, strings.ToLower(value))
	}
	if err != nil {
		return user.User{}, err
	}
	if !u.IsActive {
		return user.User{}, user.ErrInactiveIdentity
	}
	return u, nil
}

// Auth returns middleware that resolves the trusted identity header into the request context.
// It does NOT block anonymous requests; use RequireUser or RequireAdmin for that.
// A lookup failure other than an unknown or inactive identity answers 503.
func Auth(users UserResolver, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultIdentityHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := r.Header.Get(header)
			if value == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := Resolve(r.Context(), users, value)
			switch {
			case err == nil:
				r = r.WithContext(ContextWithUser(r.Context(), u))
			case errors.Is(err, user.ErrUserNotFound), errors.Is(err, user.ErrInactiveIdentity):
				slog.Warn("auth_event", "event", "identity_rejected", "identity", value, "reason", err.Error())
			default:
				slog.Error("auth_event", "event", "identity_lookup_failed", "identity", value, "error", err.Error())
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusServiceUnavailable, "identity lookup failed", "STORE_UNAVAILABLE")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser blocks requests without a resolved identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "authentication required", "UNAUTHENTICATED")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin blocks requests from anyone but an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := CurrentUser(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required", "UNAUTHENTICATED")
			return
		}
		if !u.IsAdmin {
			writeError(w, http.StatusForbidden, "admin only", "FORBIDDEN")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUser returns the user resolved for this request.
func CurrentUser(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(userContextKey).(user.User)
	return u, ok
}

// IsAdmin checks if the current user is an admin.
func IsAdmin(ctx context.Context) bool {
	u, ok := CurrentUser(ctx)
	return ok && u.IsAdmin
}

// ContextWithUser returns a context carrying u as the current user.
func ContextWithUser(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
