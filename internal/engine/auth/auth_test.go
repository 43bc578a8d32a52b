package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamasa/internal/domain"
)

func TestRequireRole(t *testing.T) {
	super := Principal{ID: "s", Role: domain.RoleSuperAdmin, UserType: domain.UserTypeStaff}
	reviewer := Principal{ID: "r", Role: domain.RoleReviewer, UserType: domain.UserTypeStaff}
	orgUser := Principal{ID: "u", Role: domain.RoleOrgUser, UserType: domain.UserTypeClient, ClientID: "c1"}

	assert.NoError(t, RequireRole(super, domain.RoleOrgAdmin), "super_admin passes every gate")
	assert.NoError(t, RequireRole(reviewer, domain.RoleReviewer, domain.RoleOrgAdmin))

	err := RequireRole(orgUser, domain.RoleOrgAdmin)
	var forbidden ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, domain.RoleOrgUser, forbidden.Role)

	var unauth UnauthenticatedError
	assert.True(t, errors.As(RequireRole(Principal{}, domain.RoleReviewer), &unauth))
}

func TestTenantScoping(t *testing.T) {
	orgAdmin := Principal{ID: "a", Role: domain.RoleOrgAdmin, UserType: domain.UserTypeClient, ClientID: "c1"}
	assert.NoError(t, RequireTenant(orgAdmin, "c1"))
	assert.Error(t, RequireTenant(orgAdmin, "c2"))

	reviewer := Principal{ID: "r", Role: domain.RoleReviewer, UserType: domain.UserTypeStaff}
	assert.False(t, reviewer.Scoped())
	assert.Nil(t, reviewer.Tenants())
	assert.NoError(t, RequireTenant(reviewer, "anything"))

	legacy := Principal{ID: "l", Role: domain.RoleOrgAdmin, UserType: domain.UserTypeStaff, AssignedClients: []string{"c2"}}
	assert.True(t, legacy.Scoped())
	assert.NoError(t, RequireTenant(legacy, "c2"))
	assert.Error(t, RequireTenant(legacy, "c1"))

	unassigned := Principal{ID: "l2", Role: domain.RoleOrgUser, UserType: domain.UserTypeStaff}
	assert.Equal(t, []string{}, unassigned.Tenants())
	assert.Error(t, RequireTenant(unassigned, "c1"))

	clientReviewer := Principal{ID: "cr", Role: domain.RoleReviewer, UserType: domain.UserTypeClient, ClientID: "c1"}
	assert.Error(t, RequireTenant(clientReviewer, "c2"), "client principals are always scoped")
}

func TestClientUserAccess(t *testing.T) {
	orgUser := Principal{ID: "u1", Role: domain.RoleOrgUser, UserType: domain.UserTypeClient, ClientID: "c1"}
	assert.NoError(t, RequireClientUserAccess(orgUser, "c1", "u1"))
	assert.Error(t, RequireClientUserAccess(orgUser, "c1", "u2"))
	assert.Error(t, RequireClientUserAccess(orgUser, "c2", "u1"))

	orgAdmin := Principal{ID: "a1", Role: domain.RoleOrgAdmin, UserType: domain.UserTypeClient, ClientID: "c1"}
	assert.NoError(t, RequireClientUserAccess(orgAdmin, "c1", "u2"))
}

func testTokens(now time.Time) Tokens {
	return Tokens{
		Secret:     "test-secret",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
		ServiceTTL: 365 * 24 * time.Hour,
		Now:        func() time.Time { return now },
	}
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens := testTokens(now)
	p := Principal{ID: "u1", Role: domain.RoleOrgAdmin, UserType: domain.UserTypeClient, ClientID: "c1", Email: "a@acme.test"}

	signed, exp, err := tokens.Issue(p, AccessToken)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), exp)

	claims, err := tokens.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, AccessToken, claims.Type)
	assert.Equal(t, "c1", claims.ClientID)

	got, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, domain.UserTypeClient, got.UserType)
	assert.Equal(t, domain.RoleOrgAdmin, got.Role)
}

func TestDecodeRejects(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens := testTokens(now)
	p := Principal{ID: "u1", Role: domain.RoleReviewer, UserType: domain.UserTypeStaff}

	signed, _, err := tokens.Issue(p, AccessToken)
	require.NoError(t, err)

	later := testTokens(now.Add(31 * time.Minute))
	_, err = later.Decode(signed)
	assert.ErrorAs(t, err, &UnauthenticatedError{}, "expired")

	other := testTokens(now)
	other.Secret = "different"
	_, err = other.Decode(signed)
	assert.ErrorAs(t, err, &UnauthenticatedError{}, "bad signature")

	_, err = tokens.Decode("not.a.token")
	assert.ErrorAs(t, err, &UnauthenticatedError{}, "malformed")

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	})
	raw, err := noRole.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = tokens.Decode(raw)
	assert.ErrorAs(t, err, &UnauthenticatedError{}, "missing role")
}

func TestClaimsPrincipalRejectsRoleOutsideKind(t *testing.T) {
	c := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}, Role: "super_admin", UserType: "client"}
	_, err := c.Principal()
	assert.ErrorAs(t, err, &UnauthenticatedError{})
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: 4}
	hash, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.True(t, h.Verify(hash, "s3cret"))
	assert.False(t, h.Verify(hash, "wrong"))
}

func TestGeneratePassword(t *testing.T) {
	for i := 0; i < 20; i++ {
		pw, err := GeneratePassword(10)
		require.NoError(t, err)
		require.Len(t, pw, 10)
		assert.True(t, strings.IndexFunc(pw, unicode.IsUpper) >= 0)
		assert.True(t, strings.IndexFunc(pw, unicode.IsLower) >= 0)
		assert.True(t, strings.IndexFunc(pw, unicode.IsDigit) >= 0)
	}
}
