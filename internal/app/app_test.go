package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hamasa/internal/config"
	"hamasa/internal/domain"
	"hamasa/internal/engine/auth"
	"hamasa/internal/repo"
)

func openTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "hamasa.db")
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = 4
	rt, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestCreateSuperAdminCanLogIn(t *testing.T) {
	rt := openTestRuntime(t)
	ctx := context.Background()

	created, err := CreateSuperAdmin(ctx, rt.Engine, AdminOptions{
		FirstName: "Root", LastName: "Admin", PhoneNumber: "255700000001", Email: "root@hamasa.test",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperAdmin, created.Role)
	assert.True(t, created.IsActive)
	require.Len(t, created.PlainPassword, 10)

	res, err := rt.Engine.Login(ctx, "root@hamasa.test", created.PlainPassword)
	require.NoError(t, err)
	assert.Equal(t, created.ID, res.User.ID)

	_, err = CreateSuperAdmin(ctx, rt.Engine, AdminOptions{
		FirstName: "Other", LastName: "Admin", PhoneNumber: "255700000001", Password: "secret123",
	})
	var ce repo.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "phone_number", ce.Field)
}

func TestSeedCatalogIsRepeatable(t *testing.T) {
	rt := openTestRuntime(t)
	ctx := context.Background()
	seed := config.Seed{
		Categories:      []string{"Politics", "Health"},
		MediaCategories: map[string][]string{"Radio": {"Clouds FM", "Radio One"}, "Social Media": {}},
		ReportAvenues:   []string{"Web"},
		ReportTimes:     []string{"Daily", "Weekly"},
	}

	first, err := SeedCatalog(ctx, rt.Engine, seed)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Created: 9}, first)

	second, err := SeedCatalog(ctx, rt.Engine, seed)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Skipped: 9}, second)

	admin := System
	sources, err := rt.Engine.ListMediaSources(ctx, admin, "", "", "", repo.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, sources.Count)

	times, err := rt.Engine.ListCatalog(ctx, admin, repo.ReportTimes, "", "", repo.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, times.Count)
}

func TestSeedDefaultConfig(t *testing.T) {
	rt := openTestRuntime(t)
	res, err := SeedCatalog(context.Background(), rt.Engine, rt.Config.Seed)
	require.NoError(t, err)
	assert.Positive(t, res.Created)
	assert.Zero(t, res.Skipped)
}

func TestSystemPrincipalIsUnscopedSuperAdmin(t *testing.T) {
	assert.True(t, System.IsSuperAdmin())
	assert.NoError(t, auth.RequireRole(System, domain.RoleDataClerk))
	assert.True(t, System.CanReachClient("any-client"))
}
