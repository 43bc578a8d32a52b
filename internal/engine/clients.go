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

// ClientCreateOptions describe a new tenant and the person who will administer it.
type ClientCreateOptions struct {
	Name        string
	Country     string
	FirstName   string
	LastName    string
	PhoneNumber string
	Email       string
}

// ClientCreated is returned once; PlainPassword is never stored.
type ClientCreated struct {
	Client        domain.Client `json:"client"`
	Admin         Account       `json:"admin"`
	PlainPassword string        `json:"plain_password"`
}

// CreateClient creates a tenant and its inactive org_admin in one transaction.
func (e Engine) CreateClient(ctx context.Context, actor auth.Principal, opts ClientCreateOptions) (ClientCreated, error) {
	if err := auth.RequireRole(actor, domain.RoleSuperAdmin); err != nil {
		return ClientCreated{}, err
	}
	if err := requireAll("name_of_organisation", opts.Name, "country", opts.Country, "first_name", opts.FirstName,
		"last_name", opts.LastName, "phone_number", opts.PhoneNumber, "email", opts.Email); err != nil {
		return ClientCreated{}, err
	}
	now := e.stamp()
	c := domain.Client{
		ID:            newID(),
		Name:          strings.TrimSpace(opts.Name),
		Country:       strings.TrimSpace(opts.Country),
		ContactPerson: strings.TrimSpace(opts.FirstName) + " " + strings.TrimSpace(opts.LastName),
		PhoneNumber:   strings.TrimSpace(opts.PhoneNumber),
		Email:         strings.TrimSpace(opts.Email),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	plain, hash, err := e.password("")
	if err != nil {
		return ClientCreated{}, err
	}
	admin := domain.ClientUser{
		ID:           newID(),
		ClientID:     c.ID,
		FirstName:    strings.TrimSpace(opts.FirstName),
		LastName:     strings.TrimSpace(opts.LastName),
		PhoneNumber:  c.PhoneNumber,
		Email:        c.Email,
		Role:         domain.RoleOrgAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ClientCreated{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.CheckClientUserUnique(ctx, tx, admin.PhoneNumber, admin.Email, ""); err != nil {
		return ClientCreated{}, err
	}
	if err := e.Repo.CheckClientUnique(ctx, tx, c); err != nil {
		return ClientCreated{}, err
	}
	if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
		return ClientCreated{}, fmt.Errorf("insert client: %w", err)
	}
	if err := e.Repo.InsertClientUser(ctx, tx, admin); err != nil {
		return ClientCreated{}, fmt.Errorf("insert client admin: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ClientCreated{}, err
	}
	e.log().Info("created client", zap.String("client_id", c.ID), zap.String("actor_id", actor.ID))
	return ClientCreated{Client: c, Admin: clientAccount(admin), PlainPassword: plain}, nil
}

func (e Engine) ListClients(ctx context.Context, actor auth.Principal, f repo.ClientFilters, page repo.Page) (Paged[domain.Client], error) {
	if err := auth.RequireRole(actor, clientAdminRoles...); err != nil {
		return Paged[domain.Client]{}, err
	}
	f.IDs = actor.Tenants()
	items, total, err := e.Repo.ListClients(ctx, f, page)
	if err != nil {
		return Paged[domain.Client]{}, err
	}
	return paged(items, total, page), nil
}

func (e Engine) GetClient(ctx context.Context, actor auth.Principal, id string) (domain.Client, error) {
	if err := auth.RequireRole(actor, clientAdminRoles...); err != nil {
		return domain.Client{}, err
	}
	if err := auth.RequireTenant(actor, id); err != nil {
		return domain.Client{}, err
	}
	return e.Repo.GetClient(ctx, id)
}

type ClientUpdateOptions struct {
	Name        *string
	Country     *string
	FirstName   *string
	LastName    *string
	PhoneNumber *string
	Email       *string
}

// splitContact splits "First Rest of Name" on the first space.
func splitContact(s string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(s), " ")
	return first, strings.TrimSpace(last)
}

func (e Engine) UpdateClient(ctx context.Context, actor auth.Principal, id string, opts ClientUpdateOptions) (domain.Client, error) {
	if err := auth.RequireRole(actor, clientAdminRoles...); err != nil {
		return domain.Client{}, err
	}
	if err := auth.RequireTenant(actor, id); err != nil {
		return domain.Client{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetClientTx(ctx, tx, id)
	if err != nil {
		return domain.Client{}, err
	}
	if opts.Name != nil {
		c.Name = trimmed(opts.Name)
	}
	if opts.Country != nil {
		c.Country = trimmed(opts.Country)
	}
	if opts.FirstName != nil || opts.LastName != nil {
		first, last := splitContact(c.ContactPerson)
		if opts.FirstName != nil {
			first = trimmed(opts.FirstName)
		}
		if opts.LastName != nil {
			last = trimmed(opts.LastName)
		}
		c.ContactPerson = strings.TrimSpace(first + " " + last)
	}
	if opts.PhoneNumber != nil {
		c.PhoneNumber = trimmed(opts.PhoneNumber)
	}
	if opts.Email != nil {
		c.Email = trimmed(opts.Email)
	}
	if err := requireAll("name_of_organisation", c.Name, "country", c.Country, "phone_number", c.PhoneNumber, "email", c.Email); err != nil {
		return domain.Client{}, err
	}
	if err := e.Repo.CheckClientUnique(ctx, tx, c); err != nil {
		return domain.Client{}, err
	}
	c.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateClient(ctx, tx, c); err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

// DeleteClient soft-deletes a client with its users and projects.
func (e Engine) DeleteClient(ctx context.Context, actor auth.Principal, id string) error {
	if err := auth.RequireRole(actor, clientAdminRoles...); err != nil {
		return err
	}
	if err := auth.RequireTenant(actor, id); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ArchiveClient(ctx, tx, id, e.stamp()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("deleted client", zap.String("client_id", id), zap.String("actor_id", actor.ID))
	return nil
}

type ClientUserCreateOptions struct {
	FirstName   string
	LastName    string
	PhoneNumber string
	Email       string
	Role        string
	Password    string
	IsActive    bool
}

type ClientUserCreated struct {
	Account
	PlainPassword string `json:"plain_password,omitempty"`
}

func (e Engine) CreateClientUser(ctx context.Context, actor auth.Principal, clientID string, opts ClientUserCreateOptions) (ClientUserCreated, error) {
	if err := auth.RequireRole(actor, clientAdminRoles...); err != nil {
		return ClientUserCreated{}, err
	}
	if err := auth.RequireTenant(actor, clientID); err != nil {
		return ClientUserCreated{}, err
	}
	if err := requireAll("first_name", opts.FirstName, "last_name", opts.LastName, "phone_number", opts.PhoneNumber); err != nil {
		return ClientUserCreated{}, err
	}
	if opts.Role == "" {
		opts.Role = string(domain.RoleOrgUser)
	}
	role, err := domain.ParseRole(domain.UserTypeClient, opts.Role)
	if err != nil {
		return ClientUserCreated{}, invalid("role", "%s", err.Error())
	}
	plain, hash, err := e.password(opts.Password)
	if err != nil {
		return ClientUserCreated{}, err
	}
	now := e.stamp()
	u := domain.ClientUser{
		ID:           newID(),
		ClientID:     clientID,
		FirstName:    strings.TrimSpace(opts.FirstName),
		LastName:     strings.TrimSpace(opts.LastName),
		PhoneNumber:  strings.TrimSpace(opts.PhoneNumber),
		Email:        strings.TrimSpace(opts.Email),
		Role:         role,
		IsActive:     opts.IsActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ClientUserCreated{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetClientTx(ctx, tx, clientID); err != nil {
		return ClientUserCreated{}, err
	}
	if err := e.Repo.CheckClientUserUnique(ctx, tx, u.PhoneNumber, u.Email, ""); err != nil {
		return ClientUserCreated{}, err
	}
	if err := e.Repo.InsertClientUser(ctx, tx, u); err != nil {
		return ClientUserCreated{}, fmt.Errorf("insert client user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ClientUserCreated{}, err
	}
	out := ClientUserCreated{Account: clientAccount(u)}
	if opts.Password == "" {
		out.PlainPassword = plain
	}
	return out, nil
}

// ListClientUsers returns a tenant's users. Client roles below org_admin see
// only themselves.
func (e Engine) ListClientUsers(ctx context.Context, actor auth.Principal, clientID string) ([]Account, error) {
	if err := auth.RequireRole(actor, clientUserRoles...); err != nil {
		return nil, err
	}
	if err := auth.RequireTenant(actor, clientID); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	users, err := e.Repo.ListClientUsers(ctx, clientID)
	if err != nil {
		return nil, err
	}
	out := []Account{}
	for _, u := range users {
		if auth.RequireClientUserAccess(actor, clientID, u.ID) != nil {
			continue
		}
		out = append(out, clientAccount(u))
	}
	return out, nil
}

// clientUserIn loads a live user and checks it belongs to clientID. A user
// of a tenant the actor cannot reach is Forbidden rather than missing.
func (e Engine) clientUserIn(ctx context.Context, actor auth.Principal, q clientUserGetter, clientID, id string) (domain.ClientUser, error) {
	u, err := q(ctx, id)
	if err != nil {
		return domain.ClientUser{}, err
	}
	if err := auth.RequireTenant(actor, u.ClientID); err != nil {
		return domain.ClientUser{}, err
	}
	if u.ClientID != clientID {
		return domain.ClientUser{}, repo.NotFoundError{Entity: "client user"}
	}
	return u, nil
}

type clientUserGetter func(ctx context.Context, id string) (domain.ClientUser, error)

func (e Engine) GetClientUser(ctx context.Context, actor auth.Principal, clientID, id string) (Account, error) {
	if err := auth.RequireRole(actor, clientUserRoles...); err != nil {
		return Account{}, err
	}
	if err := auth.RequireClientUserAccess(actor, clientID, id); err != nil {
		return Account{}, err
	}
	u, err := e.clientUserIn(ctx, actor, e.Repo.GetClientUser, clientID, id)
	if err != nil {
		return Account{}, err
	}
	return clientAccount(u), nil
}

type ClientUserUpdateOptions struct {
	FirstName   *string
	LastName    *string
	PhoneNumber *string
	Email       *string
	Role        *string
	IsActive    *bool
}

func (e Engine) UpdateClientUser(ctx context.Context, actor auth.Principal, clientID, id string, opts ClientUserUpdateOptions) (Account, error) {
	if err := auth.RequireRole(actor, clientUserRoles...); err != nil {
		return Account{}, err
	}
	if err := auth.RequireClientUserAccess(actor, clientID, id); err != nil {
		return Account{}, err
	}
	if opts.Role != nil && actor.UserType == domain.UserTypeClient && actor.Role != domain.RoleOrgAdmin {
		return Account{}, auth.ForbiddenError{Role: actor.Role, Reason: "You cannot change your own role"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()
	u, err := e.clientUserIn(ctx, actor, func(ctx context.Context, id string) (domain.ClientUser, error) {
		return e.Repo.GetClientUserTx(ctx, tx, id)
	}, clientID, id)
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
	}
	if opts.Email != nil {
		u.Email = trimmed(opts.Email)
	}
	if opts.Role != nil {
		role, err := domain.ParseRole(domain.UserTypeClient, *opts.Role)
		if err != nil {
			return Account{}, invalid("role", "%s", err.Error())
		}
		u.Role = role
	}
	if opts.IsActive != nil {
		u.IsActive = *opts.IsActive
	}
	if err := requireAll("first_name", u.FirstName, "last_name", u.LastName, "phone_number", u.PhoneNumber); err != nil {
		return Account{}, err
	}
	if err := e.Repo.CheckClientUserUnique(ctx, tx, u.PhoneNumber, u.Email, u.ID); err != nil {
		return Account{}, err
	}
	u.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateClientUser(ctx, tx, u); err != nil {
		return Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return Account{}, err
	}
	return clientAccount(u), nil
}

// DeleteClientUser soft-deletes a client user and drops its collaborations.
func (e Engine) DeleteClientUser(ctx context.Context, actor auth.Principal, clientID, id string) error {
	if err := auth.RequireRole(actor, clientAdminRoles...); err != nil {
		return err
	}
	if err := auth.RequireClientUserAccess(actor, clientID, id); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.clientUserIn(ctx, actor, func(ctx context.Context, id string) (domain.ClientUser, error) {
		return e.Repo.GetClientUserTx(ctx, tx, id)
	}, clientID, id); err != nil {
		return err
	}
	if err := e.Repo.ArchiveClientUser(ctx, tx, id, e.stamp()); err != nil {
		return err
	}
	return tx.Commit()
}
