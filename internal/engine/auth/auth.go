package auth

import (
	"github.com/samber/lo"

	"hamasa/internal/domain"
)

// UnauthenticatedError means the caller could not be identified.
type UnauthenticatedError struct {
	Message string
}

func (e UnauthenticatedError) Error() string {
	if e.Message == "" {
		return "Could not validate credentials"
	}
	return e.Message
}

// ForbiddenError means the caller is known but not allowed to act.
type ForbiddenError struct {
	Role   domain.Role
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return "You do not have permission to access this resource"
	}
	return e.Reason
}

// Principal is an authenticated caller, re-resolved from storage.
type Principal struct {
	ID       string
	Role     domain.Role
	UserType domain.UserType
	Email    string
	// ClientID is the owning tenant of a client principal.
	ClientID string
	// AssignedClients is the tenant set of a legacy staff org_admin or org_user.
	AssignedClients []string
	Source          string
}

func (p Principal) IsStaff() bool { return p.UserType == domain.UserTypeStaff }

func (p Principal) IsSuperAdmin() bool {
	return p.IsStaff() && p.Role == domain.RoleSuperAdmin
}

// Scoped reports whether the principal is confined to a tenant set.
func (p Principal) Scoped() bool {
	if p.UserType == domain.UserTypeClient {
		return true
	}
	return p.Role.TenantScoped()
}

// Tenants returns the clients a scoped principal may reach. It returns nil for
// unscoped principals, meaning every tenant.
func (p Principal) Tenants() []string {
	if !p.Scoped() {
		return nil
	}
	if p.UserType == domain.UserTypeClient {
		if p.ClientID == "" {
			return []string{}
		}
		return []string{p.ClientID}
	}
	if p.AssignedClients == nil {
		return []string{}
	}
	return p.AssignedClients
}

func (p Principal) CanReachClient(clientID string) bool {
	if !p.Scoped() {
		return true
	}
	return clientID != "" && lo.Contains(p.Tenants(), clientID)
}

// RequireRole passes when the principal's role is in allowed. A staff
// super_admin passes every gate.
func RequireRole(p Principal, allowed ...domain.Role) error {
	if p.ID == "" {
		return UnauthenticatedError{}
	}
	if p.IsSuperAdmin() || lo.Contains(allowed, p.Role) {
		return nil
	}
	return ForbiddenError{Role: p.Role}
}

// RequireTenant passes when the principal may act on data owned by clientID.
func RequireTenant(p Principal, clientID string) error {
	if p.CanReachClient(clientID) {
		return nil
	}
	return ForbiddenError{Role: p.Role, Reason: "You do not have access to this client"}
}

// RequireClientUserAccess applies the client-user record rules: tenant
// ownership first, then roles below org_admin may only touch their own record.
func RequireClientUserAccess(p Principal, clientID, targetID string) error {
	if err := RequireTenant(p, clientID); err != nil {
		return err
	}
	if p.UserType == domain.UserTypeClient && p.Role != domain.RoleOrgAdmin && p.ID != targetID {
		return ForbiddenError{Role: p.Role, Reason: "You can only manage your own account"}
	}
	return nil
}
