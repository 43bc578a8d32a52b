package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleReviewer   Role = "reviewer"
	RoleDataClerk  Role = "data_clerk"
	RoleOrgAdmin   Role = "org_admin"
	RoleOrgUser    Role = "org_user"
	RoleMLService  Role = "ml_service"
)

// UserType discriminates the two principal tables.
type UserType string

const (
	UserTypeStaff  UserType = "staff"
	UserTypeClient UserType = "client"
)

var (
	staffRoles  = []Role{RoleSuperAdmin, RoleReviewer, RoleDataClerk, RoleOrgAdmin, RoleOrgUser, RoleMLService}
	clientRoles = []Role{RoleOrgAdmin, RoleOrgUser, RoleReviewer, RoleDataClerk}
)

// RolesFor returns the closed role set for a principal kind.
func RolesFor(t UserType) []Role {
	switch t {
	case UserTypeStaff:
		return append([]Role(nil), staffRoles...)
	case UserTypeClient:
		return append([]Role(nil), clientRoles...)
	}
	return nil
}

func ParseUserType(s string) (UserType, error) {
	switch UserType(strings.TrimSpace(s)) {
	case UserTypeStaff:
		return UserTypeStaff, nil
	case UserTypeClient:
		return UserTypeClient, nil
	}
	return "", fmt.Errorf("invalid user_type %q", s)
}

// ParseRole validates that s names a role allowed for the given principal kind.
func ParseRole(t UserType, s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	for _, allowed := range RolesFor(t) {
		if allowed == r {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid role %q for %s users", s, t)
}

// TenantScoped reports whether a role is confined to client tenants.
func (r Role) TenantScoped() bool {
	return r == RoleOrgAdmin || r == RoleOrgUser
}
