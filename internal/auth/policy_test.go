package auth

import (
	"errors"
	"testing"
)

func mustRule(t *testing.T, pattern string, roles ...Role) Rule {
	t.Helper()
	r, err := NewRule(pattern, roles)
	if err != nil {
		t.Fatalf("NewRule(%q) error = %v", pattern, err)
	}
	return r
}

func defaultTestPolicy(t *testing.T) *Policy {
	t.Helper()
	return NewPolicy(
		mustRule(t, "/api/v1/health"),
		mustRule(t, "/api/v1/auth/**"),
		mustRule(t, "/api/admin/**", RoleAdmin),
		mustRule(t, "/api/manager/**", RoleAdmin, RoleManager),
		mustRule(t, "/**", RoleUser),
	)
}

func TestAuthorize_AdminRoute(t *testing.T) {
	required := RoleSet{RoleAdmin}

	tests := []struct {
		name     string
		identity *Identity
		want     Decision
		wantErr  error
	}{
		{"manager is forbidden", &Identity{UserID: "m", Role: RoleManager}, DecisionForbidden, ErrForbidden},
		{"anonymous is unauthenticated", nil, DecisionUnauthenticated, ErrUnauthenticated},
		{"admin is allowed", &Identity{UserID: "a", Role: RoleAdmin}, DecisionAllow, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Authorize(required, tt.identity)
			if got != tt.want {
				t.Errorf("Authorize() = %s, want %s", got, tt.want)
			}
			if !errors.Is(got.Err(), tt.wantErr) {
				t.Errorf("Err() = %v, want %v", got.Err(), tt.wantErr)
			}
		})
	}
}

func TestAuthorize_PublicAndHierarchy(t *testing.T) {
	if Authorize(nil, nil) != DecisionAllow {
		t.Error("empty role set should allow anonymous callers")
	}
	if Authorize(RoleSet{RoleUser}, &Identity{Role: RoleAdmin}) != DecisionAllow {
		t.Error("ADMIN should satisfy a USER route")
	}
	if Authorize(RoleSet{RoleManager}, &Identity{Role: RoleUser}) != DecisionForbidden {
		t.Error("USER should not satisfy a MANAGER route")
	}
}

func TestPolicy_Evaluate(t *testing.T) {
	p := defaultTestPolicy(t)
	admin := &Identity{UserID: "a", Role: RoleAdmin}
	manager := &Identity{UserID: "m", Role: RoleManager}
	user := &Identity{UserID: "u", Role: RoleUser}

	tests := []struct {
		path     string
		identity *Identity
		want     Decision
	}{
		{"/api/v1/health", nil, DecisionAllow},
		{"/api/v1/auth/login", nil, DecisionAllow},
		{"/api/v1/auth", nil, DecisionAllow},
		{"/api/admin/users/123/disable", manager, DecisionForbidden},
		{"/api/admin/users/123/disable", nil, DecisionUnauthenticated},
		{"/api/admin/users/123/disable", admin, DecisionAllow},
		{"/api/manager/users/123", manager, DecisionAllow},
		{"/api/manager/users/123", user, DecisionForbidden},
		{"/api/v1/me", user, DecisionAllow},
		{"/api/v1/me", nil, DecisionUnauthenticated},
		{"/api/v1/me/", user, DecisionAllow},
	}

	for _, tt := range tests {
		name := tt.path
		if tt.identity != nil {
			name += "_" + string(tt.identity.Role)
		}
		t.Run(name, func(t *testing.T) {
			if got := p.Evaluate(tt.path, tt.identity); got != tt.want {
				t.Errorf("Evaluate(%q) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}
}

func TestPolicy_FirstMatchWins(t *testing.T) {
	p := NewPolicy(
		mustRule(t, "/reports/public/*"),
		mustRule(t, "/reports/**", RoleManager),
	)

	if p.Evaluate("/reports/public/summary", nil) != DecisionAllow {
		t.Error("earlier public rule should win")
	}
	if p.Evaluate("/reports/public/a/b", nil) != DecisionUnauthenticated {
		t.Error("single * must not span segments")
	}
}

func TestPolicy_NoMatchRequiresAuthentication(t *testing.T) {
	p := NewPolicy(mustRule(t, "/api/v1/health"))

	if p.Evaluate("/elsewhere", nil) != DecisionUnauthenticated {
		t.Error("unmatched path should require authentication")
	}
	if p.Evaluate("/elsewhere", &Identity{Role: RoleUser}) != DecisionAllow {
		t.Error("unmatched path should allow any authenticated identity")
	}
}

func TestRule_Matches(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/**", "/", true},
		{"/**", "/a/b/c", true},
		{"/api/*/users", "/api/v1/users", true},
		{"/api/*/users", "/api/v1/v2/users", false},
		{"/api/**/users", "/api/users", true},
		{"/api/**/users", "/api/v1/v2/users", true},
		{"/api/**/users", "/api/v1/groups", false},
		{"/files/*.csv", "/files/report.csv", true},
		{"/files/*.csv", "/files/report.pdf", false},
		{"/exact", "/exact/more", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.path, func(t *testing.T) {
			r := mustRule(t, tt.pattern)
			if got := r.Matches(tt.path); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/api/v1/me", true},
		{"/api/v1/me/", true},
		{"/api/admin/users/7f3c/unlock", true},
		{"/api/%61dmin/users", true},
		{"", false},
		{"api/v1/me", false},
		{"/api/v1/auth/../../admin/users", false},
		{"/api/./admin/users", false},
		{"/api/admin/users/..", false},
		{"/api//admin/users", false},
		{"/api/admin/users/..%2F..%2Fv1%2Fauth%2Fx/unlock", false},
		{"/api/manager/users/..%2f..%2fv1", false},
		{"/api/v1/auth/%2e%2e/%2E%2E/admin", false},
		{"/api/v1/auth/x%5C..%5Cadmin", false},
		{`/api/v1/auth\..\admin`, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := CanonicalPath(tt.path); got != tt.want {
				t.Errorf("CanonicalPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestNewRule_Rejects(t *testing.T) {
	if _, err := NewRule("api/**", nil); err == nil {
		t.Error("pattern without leading slash should be rejected")
	}
	if _, err := NewRule("/api/[", nil); err == nil {
		t.Error("malformed glob should be rejected")
	}
	if _, err := NewRule("/api/../admin/**", nil); err == nil {
		t.Error("dot segment should be rejected")
	}
	if _, err := NewRule("/api/**", RoleSet{"ROOT"}); err == nil {
		t.Error("unknown role should be rejected")
	}
}
