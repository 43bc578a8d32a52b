package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hamasa/internal/domain"
	"hamasa/internal/engine/auth"
	"hamasa/internal/repo"
)

const minPasswordLength = 6

// Account is the public view of either kind of principal.
type Account struct {
	ID              string          `json:"id"`
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	PhoneNumber     string          `json:"phone_number"`
	Email           string          `json:"email,omitempty"`
	Gender          string          `json:"gender,omitempty"`
	Role            domain.Role     `json:"role"`
	UserType        domain.UserType `json:"user_type"`
	ClientID        string          `json:"client_id,omitempty"`
	IsActive        bool            `json:"is_active"`
	AssignedClients []string        `json:"assigned_clients,omitempty"`
}

func staffAccount(u domain.StaffUser) Account {
	return Account{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, PhoneNumber: u.PhoneNumber, Email: u.Email,
		Gender: u.Gender, Role: u.Role, UserType: domain.UserTypeStaff, IsActive: u.IsActive}
}

func clientAccount(u domain.ClientUser) Account {
	return Account{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, PhoneNumber: u.PhoneNumber, Email: u.Email,
		Role: u.Role, UserType: domain.UserTypeClient, ClientID: u.ClientID, IsActive: u.IsActive}
}

// identity is a principal row from either table together with its credential.
type identity struct {
	account Account
	hash    string
}

func (e Engine) findStaff(ctx context.Context, by repo.Identifier, value string) (identity, bool, error) {
	u, err := e.Repo.FindStaffUser(ctx, by, value)
	if errors.Is(err, repo.ErrNotFound) {
		return identity{}, false, nil
	}
	if err != nil {
		return identity{}, false, err
	}
	return identity{account: staffAccount(u), hash: u.PasswordHash}, true, nil
}

func (e Engine) findClient(ctx context.Context, by repo.Identifier, value string) (identity, bool, error) {
	u, err := e.Repo.FindClientUser(ctx, by, value)
	if errors.Is(err, repo.ErrNotFound) {
		return identity{}, false, nil
	}
	if err != nil {
		return identity{}, false, err
	}
	return identity{account: clientAccount(u), hash: u.PasswordHash}, true, nil
}

// lookup resolves an identifier against the staff table, then the client table.
func (e Engine) lookup(ctx context.Context, by repo.Identifier, value string) (identity, error) {
	if id, ok, err := e.findStaff(ctx, by, value); err != nil || ok {
		return id, err
	}
	if id, ok, err := e.findClient(ctx, by, value); err != nil || ok {
		return id, err
	}
	return identity{}, repo.NotFoundError{Entity: "user"}
}

type LoginResult struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	TokenType    string          `json:"token_type"`
	ExpiresAt    time.Time       `json:"expires_at"`
	UserType     domain.UserType `json:"user_type"`
	User         Account         `json:"user"`
}

// Login checks the staff table first and then the client table. The first
// row whose credential verifies wins.
func (e Engine) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	failed := auth.UnauthenticatedError{Message: "Invalid credentials"}
	if identifier == "" || password == "" {
		e.Metrics.ObserveLogin("", false)
		return LoginResult{}, failed
	}
	by := repo.ClassifyIdentifier(identifier)
	candidates := []func(context.Context, repo.Identifier, string) (identity, bool, error){e.findStaff, e.findClient}
	for _, find := range candidates {
		id, ok, err := find(ctx, by, identifier)
		if err != nil {
			return LoginResult{}, err
		}
		if !ok || !e.Hasher.Verify(id.hash, password) {
			continue
		}
		res, err := e.issuePair(ctx, id.account)
		if err != nil {
			return LoginResult{}, err
		}
		e.Metrics.ObserveLogin(string(id.account.UserType), true)
		e.log().Info("login", zap.String("user_id", id.account.ID), zap.String("user_type", string(id.account.UserType)))
		return res, nil
	}
	e.Metrics.ObserveLogin("", false)
	return LoginResult{}, failed
}

func principalOf(a Account) auth.Principal {
	return auth.Principal{ID: a.ID, Role: a.Role, UserType: a.UserType, Email: a.Email, ClientID: a.ClientID, AssignedClients: a.AssignedClients}
}

func (e Engine) issuePair(_ context.Context, a Account) (LoginResult, error) {
	p := principalOf(a)
	access, exp, err := e.Tokens.Issue(p, auth.AccessToken)
	if err != nil {
		return LoginResult{}, err
	}
	refresh, _, err := e.Tokens.Issue(p, auth.RefreshToken)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: access, RefreshToken: refresh, TokenType: "bearer", ExpiresAt: exp, UserType: a.UserType, User: a}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (e Engine) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	claims, err := e.Tokens.Decode(refreshToken)
	if err != nil {
		return LoginResult{}, auth.UnauthenticatedError{Message: "Invalid refresh token"}
	}
	if claims.Type != auth.RefreshToken {
		return LoginResult{}, auth.UnauthenticatedError{Message: "Invalid refresh token"}
	}
	a, err := e.resolve(ctx, claims)
	if err != nil {
		return LoginResult{}, err
	}
	access, exp, err := e.Tokens.Issue(principalOf(a), auth.AccessToken)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: access, TokenType: "bearer", ExpiresAt: exp, UserType: a.UserType, User: a}, nil
}

// Authenticate turns a bearer token into a principal re-resolved from storage.
// Refresh tokens are not access credentials.
func (e Engine) Authenticate(ctx context.Context, token string) (auth.Principal, error) {
	claims, err := e.Tokens.Decode(token)
	if err != nil {
		return auth.Principal{}, err
	}
	if claims.Type == auth.RefreshToken {
		return auth.Principal{}, auth.UnauthenticatedError{}
	}
	a, err := e.resolve(ctx, claims)
	if err != nil {
		return auth.Principal{}, err
	}
	p := principalOf(a)
	p.Source = string(claims.Type)
	return p, nil
}

// resolve loads the principal named by claims. A missing row, a deleted
// client user or a role that changed since issue all fail as Unauthenticated.
func (e Engine) resolve(ctx context.Context, claims auth.Claims) (Account, error) {
	p, err := claims.Principal()
	if err != nil {
		return Account{}, err
	}
	var a Account
	switch p.UserType {
	case domain.UserTypeStaff:
		u, err := e.Repo.GetStaffUser(ctx, p.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return Account{}, auth.UnauthenticatedError{}
		}
		if err != nil {
			return Account{}, err
		}
		a = staffAccount(u)
		if u.Role.TenantScoped() {
			if a.AssignedClients, err = e.Repo.ListStaffClientIDs(ctx, u.ID); err != nil {
				return Account{}, err
			}
		}
	case domain.UserTypeClient:
		u, err := e.Repo.GetClientUser(ctx, p.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return Account{}, auth.UnauthenticatedError{}
		}
		if err != nil {
			return Account{}, err
		}
		a = clientAccount(u)
	}
	if a.Role != p.Role {
		return Account{}, auth.UnauthenticatedError{}
	}
	return a, nil
}

// Me returns the stored view of the caller.
func (e Engine) Me(ctx context.Context, actor auth.Principal) (Account, error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return Account{}, err
	}
	if actor.IsStaff() {
		u, err := e.Repo.GetStaffUser(ctx, actor.ID)
		if err != nil {
			return Account{}, err
		}
		a := staffAccount(u)
		a.AssignedClients = actor.AssignedClients
		return a, nil
	}
	u, err := e.Repo.GetClientUser(ctx, actor.ID)
	if err != nil {
		return Account{}, err
	}
	return clientAccount(u), nil
}

const (
	serviceEmail = "ml-service@system.local"
	servicePhone = "0000000000"
)

type ServiceTokenResult struct {
	ServiceToken  string      `json:"service_token"`
	ExpiresInDays int         `json:"expires_in_days"`
	ExpiresAt     time.Time   `json:"expires_at"`
	Role          domain.Role `json:"role"`
	Note          string      `json:"note"`
}

// ServiceToken issues a long-lived token for the ml_service principal,
// creating that principal on first use.
func (e Engine) ServiceToken(ctx context.Context, actor auth.Principal) (ServiceTokenResult, error) {
	if err := auth.RequireRole(actor, domain.RoleSuperAdmin); err != nil {
		return ServiceTokenResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ServiceTokenResult{}, err
	}
	defer tx.Rollback()

	svc, err := e.Repo.FindStaffUserByRole(ctx, tx, domain.RoleMLService)
	if errors.Is(err, repo.ErrNotFound) {
		password, perr := auth.GeneratePassword(24)
		if perr != nil {
			return ServiceTokenResult{}, perr
		}
		hash, herr := e.Hasher.Hash(password)
		if herr != nil {
			return ServiceTokenResult{}, herr
		}
		now := e.stamp()
		svc = domain.StaffUser{
			ID: newID(), FirstName: "ml", LastName: "service", PhoneNumber: servicePhone, Email: serviceEmail,
			Gender: "other", Role: domain.RoleMLService, IsActive: true, PasswordHash: hash, CreatedAt: now, UpdatedAt: now,
		}
		if err := e.Repo.CheckStaffUnique(ctx, tx, svc.PhoneNumber, svc.Email, ""); err != nil {
			return ServiceTokenResult{}, err
		}
		if err := e.Repo.InsertStaffUser(ctx, tx, svc); err != nil {
			return ServiceTokenResult{}, fmt.Errorf("insert service user: %w", err)
		}
		e.log().Info("created ml service principal", zap.String("user_id", svc.ID))
	} else if err != nil {
		return ServiceTokenResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ServiceTokenResult{}, err
	}
	token, exp, err := e.Tokens.Issue(principalOf(staffAccount(svc)), auth.ServiceToken)
	if err != nil {
		return ServiceTokenResult{}, err
	}
	return ServiceTokenResult{
		ServiceToken:  token,
		ExpiresInDays: int(e.Tokens.ServiceTTL / (24 * time.Hour)),
		ExpiresAt:     exp,
		Role:          domain.RoleMLService,
		Note:          "Use this token in ML scripts. Does not require refresh.",
	}, nil
}

func (e Engine) otpMinutes() int {
	m := int(e.OTP.TTL / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// ForgotPassword sends a reset code to the phone of the matching principal.
func (e Engine) ForgotPassword(ctx context.Context, identifier string) error {
	id, err := e.lookup(ctx, repo.ClassifyIdentifier(strings.TrimSpace(identifier)), identifier)
	if err != nil {
		return err
	}
	code, err := e.OTP.Generate(ctx, id.account.PhoneNumber)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Your password reset OTP is %s. It expires in %d minutes.", code, e.otpMinutes())
	return e.send(ctx, msg, id.account.PhoneNumber)
}

// SendOTP sends a verification code to a known phone number.
func (e Engine) SendOTP(ctx context.Context, phone string) error {
	id, err := e.lookup(ctx, repo.ByPhone, phone)
	if err != nil {
		return err
	}
	code, err := e.OTP.Generate(ctx, id.account.PhoneNumber)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, e.otpMinutes())
	return e.send(ctx, msg, id.account.PhoneNumber)
}

func (e Engine) send(ctx context.Context, msg, phone string) error {
	if e.SMS == nil {
		return errors.New("sms sender not configured")
	}
	if err := e.SMS.Send(ctx, msg, phone); err != nil {
		e.log().Error("sms delivery failed", zap.Error(err))
		return fmt.Errorf("could not deliver OTP: %w", err)
	}
	return nil
}

var errBadOTP = ValidationError{Field: "otp", Message: "Invalid or expired OTP"}

func (e Engine) checkOTP(ctx context.Context, phone, code string) error {
	ok, err := e.OTP.Verify(ctx, phone, code)
	if err != nil {
		return err
	}
	if !ok {
		return errBadOTP
	}
	return nil
}

// VerifyOTP consumes a pending code for phone.
func (e Engine) VerifyOTP(ctx context.Context, phone, code string) error {
	return e.checkOTP(ctx, strings.TrimSpace(phone), code)
}

// ResetPassword sets a new password after checking the code sent by ForgotPassword.
func (e Engine) ResetPassword(ctx context.Context, identifier, code, newPassword string) error {
	id, err := e.lookup(ctx, repo.ClassifyIdentifier(strings.TrimSpace(identifier)), identifier)
	if err != nil {
		return err
	}
	return e.replacePassword(ctx, id, code, newPassword)
}

// ChangePassword is ResetPassword keyed by phone number.
func (e Engine) ChangePassword(ctx context.Context, phone, code, newPassword string) error {
	id, err := e.lookup(ctx, repo.ByPhone, phone)
	if err != nil {
		return err
	}
	return e.replacePassword(ctx, id, code, newPassword)
}

func (e Engine) replacePassword(ctx context.Context, id identity, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return invalid("new_password", "new_password must be at least %d characters", minPasswordLength)
	}
	if err := e.checkOTP(ctx, id.account.PhoneNumber, code); err != nil {
		return err
	}
	hash, err := e.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if id.account.UserType == domain.UserTypeStaff {
		err = e.Repo.SetStaffPassword(ctx, tx, id.account.ID, hash, e.stamp())
	} else {
		err = e.Repo.SetClientUserPassword(ctx, tx, id.account.ID, hash, e.stamp())
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// VerifyPhone checks the code and activates the principal owning phone.
func (e Engine) VerifyPhone(ctx context.Context, phone, code string) (Account, error) {
	id, err := e.lookup(ctx, repo.ByPhone, phone)
	if err != nil {
		return Account{}, err
	}
	if err := e.checkOTP(ctx, id.account.PhoneNumber, code); err != nil {
		return Account{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()
	now := e.stamp()
	if id.account.UserType == domain.UserTypeStaff {
		u, err := e.Repo.GetStaffUserTx(ctx, tx, id.account.ID)
		if err != nil {
			return Account{}, err
		}
		u.IsActive, u.UpdatedAt = true, now
		if err := e.Repo.UpdateStaffUser(ctx, tx, u); err != nil {
			return Account{}, err
		}
	} else {
		u, err := e.Repo.GetClientUserTx(ctx, tx, id.account.ID)
		if err != nil {
			return Account{}, err
		}
		u.IsActive, u.UpdatedAt = true, now
		if err := e.Repo.UpdateClientUser(ctx, tx, u); err != nil {
			return Account{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Account{}, err
	}
	id.account.IsActive = true
	return id.account, nil
}
