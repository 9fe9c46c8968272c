package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"slotmanager/internal/domain/user"
)

type mockResolver struct {
	users map[string]user.User
	err   error
}

func (m *mockResolver) GetByID(_ context.Context, id string) (user.User, error) {
	if m.err != nil {
		return user.User{}, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return user.User{}, user.ErrUserNotFound
	}
	return u, nil
}

func (m *mockResolver) GetByEmail(_ context.Context, email string) (user.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, user.ErrUserNotFound
}

func newResolver() *mockResolver {
	return &mockResolver{users: map[string]user.User{
		"u1":    {ID: "u1", Email: "ann@example.com", DisplayName: "Ann", IsActive: true},
		"admin": {ID: "admin", Email: "root@example.com", DisplayName: "Root", IsActive: true, IsAdmin: true},
		"gone":  {ID: "gone", Email: "gone@example.com", DisplayName: "Gone"},
	}}
}

// TestResolve covers id lookup, e-mail fallback and rejection of inactive users.
func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantID  string
		wantErr error
	}{
		{"by id", "u1", "u1", nil},
		{"by email", "ann@example.com", "u1", nil},
		{"email is case-insensitive", "Ann@Example.com", "u1", nil},
		{"surrounding spaces", "  u1 ", "u1", nil},
		{"unknown", "nobody", "", user.ErrUserNotFound},
		{"unknown email", "nobody@example.com", "", user.ErrUserNotFound},
		{"inactive", "gone", "", user.ErrInactiveIdentity},
		{"blank", "   ", "", user.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Resolve(context.Background(), newResolver(), tt.value)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if u.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", u.ID, tt.wantID)
			}
		})
	}
}

// TestAuth_RequireUser checks which identities reach a protected handler.
func TestAuth_RequireUser(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"no header", "", http.StatusUnauthorized, ""},
		{"known user", "u1", http.StatusOK, "u1"},
		{"unknown user", "nobody", http.StatusUnauthorized, ""},
		{"inactive user", "gone", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				u, _ := CurrentUser(r.Context())
				seen = u.ID
			})
			h := Auth(newResolver(), "X-Test-User")(RequireUser(inner))

			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("X-Test-User", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if seen != tt.wantUser {
				t.Errorf("current user = %q, want %q", seen, tt.wantUser)
			}
			if rr.Code == http.StatusUnauthorized {
				var body map[string]string
				if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body["code"] != "UNAUTHENTICATED" {
					t.Errorf("code = %q, want UNAUTHENTICATED", body["code"])
				}
			}
		})
	}
}

// TestAuth_StoreFailure answers 503 instead of treating the caller as anonymous.
func TestAuth_StoreFailure(t *testing.T) {
	resolver := newResolver()
	resolver.err = errors.New("database is locked")
	called := false
	h := Auth(resolver, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(DefaultIdentityHeader, "u1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if called {
		t.Error("handler ran despite failed identity lookup")
	}
}

// TestRequireAdmin separates anonymous, member and admin callers.
func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		user       *user.User
		wantStatus int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"member", &user.User{ID: "u1", IsActive: true}, http.StatusForbidden},
		{"admin", &user.User{ID: "a", IsActive: true, IsAdmin: true}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/api/admin/perf", nil)
			if tt.user != nil {
				req = req.WithContext(ContextWithUser(req.Context(), *tt.user))
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

// TestIsAdmin reads the flag from the context user.
func TestIsAdmin(t *testing.T) {
	ctx := context.Background()
	if IsAdmin(ctx) {
		t.Error("IsAdmin(empty) = true")
	}
	if IsAdmin(ContextWithUser(ctx, user.User{ID: "u1"})) {
		t.Error("IsAdmin(member) = true")
	}
	if !IsAdmin(ContextWithUser(ctx, user.User{ID: "a", IsAdmin: true})) {
		t.Error("IsAdmin(admin) = false")
	}
}
