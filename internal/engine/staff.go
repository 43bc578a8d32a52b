package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hamasa/internal/domain"
	"hamasa/internal/engine/auth"
	"hamasa/internal/repo"
)

const generatedPasswordLength = 10

// StaffCreateOptions are parameters for creating a staff user. An empty
// Password is replaced by a generated one returned once to the caller.
type StaffCreateOptions struct {
	FirstName   string
	LastName    string
	PhoneNumber string
	Email       string
	Gender      string
	Role        string
	Password    string
	IsActive    bool
}

type StaffCreated struct {
	Account
	PlainPassword string `json:"plain_password,omitempty"`
}

func (e Engine) password(given string) (plain, hash string, err error) {
	plain = given
	if plain == "" {
		if plain, err = auth.GeneratePassword(generatedPasswordLength); err != nil {
			return "", "", err
		}
	} else if len(plain) < minPasswordLength {
		return "", "", invalid("password", "password must be at least %d characters", minPasswordLength)
	}
	hash, err = e.Hasher.Hash(plain)
	return plain, hash, err
}

func (e Engine) CreateStaffUser(ctx context.Context, actor auth.Principal, opts StaffCreateOptions) (StaffCreated, error) {
	if err := auth.RequireRole(actor, domain.RoleSuperAdmin); err != nil {
		return StaffCreated{}, err
	}
	if err := requireAll("first_name", opts.FirstName, "last_name", opts.LastName, "phone_number", opts.PhoneNumber); err != nil {
		return StaffCreated{}, err
	}
	role, err := domain.ParseRole(domain.UserTypeStaff, opts.Role)
	if err != nil {
		return StaffCreated{}, invalid("role", "%s", err.Error())
	}
	plain, hash, err := e.password(opts.Password)
	if err != nil {
		return StaffCreated{}, err
	}
	now := e.stamp()
	u := domain.StaffUser{
		ID:           newID(),
		FirstName:    strings.TrimSpace(opts.FirstName),
		LastName:     strings.TrimSpace(opts.LastName),
		PhoneNumber:  strings.TrimSpace(opts.PhoneNumber),
		Email:        strings.TrimSpace(opts.Email),
		Gender:       strings.TrimSpace(opts.Gender),
		Role:         role,
		IsActive:     opts.IsActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return StaffCreated{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.CheckStaffUnique(ctx, tx, u.PhoneNumber, u.Email, ""); err != nil {
		return StaffCreated{}, err
	}
	if err := e.Repo.InsertStaffUser(ctx, tx, u); err != nil {
		return StaffCreated{}, fmt.Errorf("insert staff user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return StaffCreated{}, err
	}
	out := StaffCreated{Account: staffAccount(u)}
	if opts.Password == "" {
		out.PlainPassword = plain
	}
	return out, nil
}

func (e Engine) ListStaffUsers(ctx context.Context, actor auth.Principal, f repo.StaffFilters, page repo.Page) (Paged[Account], error) {
	if err := auth.RequireRole(actor, domain.RoleSuperAdmin); err != nil {
		return Paged[Account]{}, err
	}
	if f.Role != "" {
		if _, err := domain.ParseRole(domain.UserTypeStaff, f.Role); err != nil {
			return Paged[Account]{}, invalid("role", "%s", err.Error())
		}
	}
	users, total, err := e.Repo.ListStaffUsers(ctx, f, page)
	if err != nil {
		return Paged[Account]{}, err
	}
	out := make([]Account, 0, len(users))
	for _, u := range users {
		out = append(out, staffAccount(u))
	}
	return paged(out, total, page), nil
}

func (e Engine) GetStaffUser(ctx context.Context, actor auth.Principal, id string) (Account, error) {
	if err := auth.RequireRole(actor, domain.RoleSuperAdmin); err != nil {
		return Account{}, err
	}
	u, err := e.Repo.GetStaffUser(ctx, id)
	if err != nil {
		return Account{}, err
	}
	a := staffAccount(u)
	if u.Role.TenantScoped() {
		if a.AssignedClients, err = e.Repo.ListStaffClientIDs(ctx, u.ID); err != nil {
			return Account{}, err
		}
	}
	return a, nil
}

// StaffUpdateOptions holds a partial update. Nil fields are left unchanged.
type StaffUpdateOptions struct {
	FirstName   *string
	LastName    *string
	PhoneNumber *string
	Email       *string
	Gender      *string
	Role        *string
	IsActive    *bool
}

// UpdateStaffUser applies a partial update. Setting IsActive to false is how
// a staff account is archived; DeleteStaffUser purges it.
func (e Engine) UpdateStaffUser(ctx context.Context, actor auth.Principal, id string, opts StaffUpdateOptions) (Account, error) {
	if err := auth.RequireRole(actor, domain.RoleSuperAdmin); err != nil {
		return Account{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()
	u, err := e.Repo.GetStaffUserTx(ctx, tx, id)
	if err != nil {
		return Account{}, err
	}
	if opts.FirstName != nil {
		u.FirstName = trimmed(opts.FirstName)
	}
	if opts.LastName != nil {
		u.LastName = trimmed(opts.LastName)
	}
	if opts.PhoneNumber != nil {
		u.PhoneNumber = trimmed(opts.PhoneNumber)
		if err := required("phone_number", u.PhoneNumber); err != nil {
			return Account{}, err
		}
	}
	if opts.Email != nil {
		u.Email = trimmed(opts.Email)
	}
	if opts.Gender != nil {
		u.Gender = trimmed(opts.Gender)
	}
	if opts.Role != nil {
		role, err := domain.ParseRole(domain.UserTypeStaff, *opts.Role)
		if err != nil {
			return Account{}, invalid("role", "%s", err.Error())
		}
		u.Role = role
	}
	if opts.IsActive != nil {
		u.IsActive = *opts.IsActive
	}
	if err := e.Repo.CheckStaffUnique(ctx, tx, u.PhoneNumber, u.Email, u.ID); err != nil {
		return Account{}, err
	}
	u.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateStaffUser(ctx, tx, u); err != nil {
		return Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return Account{}, err
	}
	return staffAccount(u), nil
}

// DeleteStaffUser purges a staff user. Progress rows keep the owner id.
func (e Engine) DeleteStaffUser(ctx context.Context, actor auth.Principal, id string) error {
	if err := auth.RequireRole(actor, domain.RoleSuperAdmin); err != nil {
		return err
	}
	if actor.IsStaff() && actor.ID == id {
		return invalid("id", "you cannot delete your own account")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.PurgeStaffUser(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("purged staff user", zap.String("user_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// AssignStaff adds clientID to a staff user's tenant set.
func (e Engine) AssignStaff(ctx context.Context, actor auth.Principal, staffID, clientID string) (domain.StaffClientAssignment, error) {
	if err := auth.RequireRole(actor, clientAdminRoles...); err != nil {
		return domain.StaffClientAssignment{}, err
	}
	if err := auth.RequireTenant(actor, clientID); err != nil {
		return domain.StaffClientAssignment{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StaffClientAssignment{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetStaffUserTx(ctx, tx, staffID); err != nil {
		return domain.StaffClientAssignment{}, err
	}
	if _, err := e.Repo.GetClientTx(ctx, tx, clientID); err != nil {
		return domain.StaffClientAssignment{}, err
	}
	a := domain.StaffClientAssignment{ID: newID(), StaffUserID: staffID, ClientID: clientID, CreatedAt: e.stamp()}
	if err := e.Repo.AssignStaffToClient(ctx, tx, a); err != nil {
		return domain.StaffClientAssignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StaffClientAssignment{}, err
	}
	return a, nil
}

func (e Engine) UnassignStaff(ctx context.Context, actor auth.Principal, staffID, clientID string) error {
	if err := auth.RequireRole(actor, clientAdminRoles...); err != nil {
		return err
	}
	if err := auth.RequireTenant(actor, clientID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UnassignStaffFromClient(ctx, tx, staffID, clientID); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListStaffAssignments(ctx context.Context, actor auth.Principal, staffID string) ([]domain.StaffClientAssignment, error) {
	if err := auth.RequireRole(actor, domain.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetStaffUser(ctx, staffID); err != nil {
		return nil, err
	}
	out, err := e.Repo.ListAssignments(ctx, staffID)
	if out == nil && err == nil {
		out = []domain.StaffClientAssignment{}
	}
	return out, err
}
