package auth

import (
	"errors"
	"testing"
)

func TestRole_Satisfies(t *testing.T) {
	tests := []struct {
		holder   Role
		required Role
		want     bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleManager, true},
		{RoleAdmin, RoleUser, true},
		{RoleManager, RoleAdmin, false},
		{RoleManager, RoleManager, true},
		{RoleManager, RoleUser, true},
		{RoleUser, RoleAdmin, false},
		{RoleUser, RoleManager, false},
		{RoleUser, RoleUser, true},
		{Role("GUEST"), RoleUser, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.holder)+"_"+string(tt.required), func(t *testing.T) {
			if got := tt.holder.Satisfies(tt.required); got != tt.want {
				t.Errorf("%s.Satisfies(%s) = %v, want %v", tt.holder, tt.required, got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" manager ")
	if err != nil || r != RoleManager {
		t.Fatalf("ParseRole(manager) = %q, %v; want MANAGER", r, err)
	}

	if _, err := ParseRole("superuser"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("ParseRole(superuser) error = %v, want ErrUnknownRole", err)
	}
}

func TestRoleSet(t *testing.T) {
	set, err := ParseRoleSet([]string{"ADMIN", "MANAGER"})
	if err != nil {
		t.Fatalf("ParseRoleSet() error = %v", err)
	}
	if set.Public() {
		t.Error("non-empty set should not be public")
	}
	if !set.SatisfiedBy(RoleAdmin) || !set.SatisfiedBy(RoleManager) {
		t.Error("ADMIN and MANAGER should satisfy {ADMIN, MANAGER}")
	}
	if set.SatisfiedBy(RoleUser) {
		t.Error("USER should not satisfy {ADMIN, MANAGER}")
	}
	if !(RoleSet{}).Public() {
		t.Error("empty set should be public")
	}

	if _, err := ParseRoleSet([]string{"ADMIN", "root"}); err == nil {
		t.Error("ParseRoleSet() should reject unknown roles")
	}
}
