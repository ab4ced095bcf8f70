// ABOUTME: Authentication middleware for grid requests.
// ABOUTME: Parses Bearer tokens and loads the caller's roles and language for request context.

package auth

import (
	"context"
	"log"
	"net/http"
	"slices"
	"strings"

	apperrors "github.com/2389/tabulator/internal/errors"
)

type contextKey string

const userContextKey contextKey = "user"

// GuestName is the identity of callers without a known user.
const GuestName = "guest"

// RoleSuperuser grants every role check.
const RoleSuperuser = "superuser"

// User is the caller identity for one request.
type User struct {
	Name       string
	Roles      []string
	LanguageID int64
}

// HasRole reports whether the user holds role. Superusers hold every role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role) || slices.Contains(u.Roles, RoleSuperuser)
}

// IsGuest reports whether the caller is unauthenticated.
func (u *User) IsGuest() bool {
	return u == nil || u.Name == GuestName
}

// UserStore looks up users by name. A nil user with a nil error means unknown.
type UserStore interface {
	GetUser(name string) (*User, error)
}

// Middleware resolves the caller from the Authorization header and stores
// the user in the request context.
func Middleware(users UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := lookupUser(users, extractUser(r.Header.Get("Authorization")))
			ctx := WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers without role with 403. It must run after
// Middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if !user.HasRole(role) {
				msg := "role " + role + " required"
				if user.IsGuest() {
					msg = "sign in with a " + role + " account"
				}
				apperrors.WriteError(w, http.StatusForbidden, apperrors.ErrForbidden, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the caller, or a guest when none was resolved.
func UserFromContext(ctx context.Context) *User {
	user, ok := ctx.Value(userContextKey).(*User)
	if !ok || user == nil {
		return &User{Name: GuestName}
	}
	return user
}

func lookupUser(users UserStore, name string) *User {
	if name == GuestName || users == nil {
		return &User{Name: GuestName}
	}
	user, err := users.GetUser(name)
	if err != nil {
		log.Printf("auth: failed to load user %q: %v", name, err)
		return &User{Name: GuestName}
	}
	if user == nil {
		return &User{Name: GuestName}
	}
	return user
}

func extractUser(authHeader string) string {
	if authHeader == "" {
		return GuestName
	}

	// Remove "Bearer " prefix
	token := strings.TrimPrefix(authHeader, "Bearer ")
	token = strings.TrimSpace(token)

	// Only "user:<name>" tokens identify a user
	if name, ok := strings.CutPrefix(token, "user:"); ok && name != "" {
		return name
	}
	return GuestName
}

// UserNameFromHeader returns the user name an Authorization header claims,
// without consulting the user store.
func UserNameFromHeader(authHeader string) string {
	return extractUser(authHeader)
}
