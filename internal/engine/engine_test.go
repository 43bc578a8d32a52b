package engine_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hamasa/internal/config"
	"hamasa/internal/db"
	"hamasa/internal/domain"
	"hamasa/internal/engine"
	"hamasa/internal/engine/auth"
	"hamasa/internal/ingest"
	"hamasa/internal/migrate"
	"hamasa/internal/repo"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(_ context.Context, message string, _ ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, message)
	return nil
}

func (s *recordingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1]
}

type stubFetcher struct {
	rows []map[string]string
	err  error
}

func (f stubFetcher) Fetch(context.Context, string) ([]map[string]string, error) {
	return f.rows, f.err
}

type testEnv struct {
	Engine engine.Engine
	DB     *sql.DB
	SMS    *recordingSender
	Ctx    context.Context
	Admin  auth.Principal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "hamasa.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = 4
	eng := engine.New(conn, cfg, zap.NewNop())
	eng.Now = func() time.Time { return testNow }
	sender := &recordingSender{}
	eng.SMS = sender

	env := &testEnv{Engine: eng, DB: conn, SMS: sender, Ctx: context.Background()}
	env.Admin = env.seedStaff(t, domain.RoleSuperAdmin, "255700000000", "admin@hamasa.test")
	return env
}

func (env *testEnv) seedStaff(t *testing.T, role domain.Role, phone, email string) auth.Principal {
	t.Helper()
	hash, err := env.Engine.Hasher.Hash("secret123")
	require.NoError(t, err)
	u := domain.StaffUser{
		ID: fmt.Sprintf("staff-%s", phone), FirstName: "Staff", LastName: string(role), PhoneNumber: phone, Email: email,
		Role: role, IsActive: true, PasswordHash: hash, CreatedAt: testNow.Format(time.RFC3339), UpdatedAt: testNow.Format(time.RFC3339),
	}
	tx, err := env.DB.BeginTx(env.Ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, env.Engine.Repo.InsertStaffUser(env.Ctx, tx, u))
	require.NoError(t, tx.Commit())
	return auth.Principal{ID: u.ID, Role: role, UserType: domain.UserTypeStaff, Email: email}
}

// createClient creates a tenant and returns it with its org_admin principal.
func (env *testEnv) createClient(t *testing.T, name, phone string) (engine.ClientCreated, auth.Principal) {
	t.Helper()
	created, err := env.Engine.CreateClient(env.Ctx, env.Admin, engine.ClientCreateOptions{
		Name: name, Country: "Tanzania", FirstName: "Asha", LastName: "Juma", PhoneNumber: phone, Email: phone + "@client.test",
	})
	require.NoError(t, err)
	admin := auth.Principal{ID: created.Admin.ID, Role: domain.RoleOrgAdmin, UserType: domain.UserTypeClient, ClientID: created.Client.ID}
	return created, admin
}

func (env *testEnv) createProject(t *testing.T, actor auth.Principal, title string) domain.ProjectDetail {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, actor, engine.ProjectCreateOptions{Title: title, ClientID: actor.ClientID})
	require.NoError(t, err)
	return p
}

var pathTo = map[domain.ProjectStatus][]domain.ProjectStatus{
	domain.ProjectDraft:      nil,
	domain.ProjectSubmitted:  {domain.ProjectSubmitted},
	domain.ProjectReview:     {domain.ProjectSubmitted, domain.ProjectReview},
	domain.ProjectInProgress: {domain.ProjectSubmitted, domain.ProjectReview, domain.ProjectInProgress},
	domain.ProjectActive:     {domain.ProjectSubmitted, domain.ProjectReview, domain.ProjectInProgress, domain.ProjectActive},
	domain.ProjectCompleted:  {domain.ProjectSubmitted, domain.ProjectReview, domain.ProjectInProgress, domain.ProjectActive, domain.ProjectCompleted},
	domain.ProjectArchived:   {domain.ProjectSubmitted, domain.ProjectReview, domain.ProjectInProgress, domain.ProjectActive, domain.ProjectCompleted, domain.ProjectArchived},
}

func (env *testEnv) advance(t *testing.T, actor auth.Principal, projectID string, steps ...domain.ProjectStatus) {
	t.Helper()
	for _, s := range steps {
		_, err := env.Engine.TransitionProject(env.Ctx, actor, projectID, engine.TransitionOptions{Status: string(s)})
		require.NoError(t, err, "to %s", s)
	}
}

func TestProjectTransitionTableThroughEngine(t *testing.T) {
	env := newTestEnv(t)
	_, orgAdmin := env.createClient(t, "Acme", "255711000001")

	cases := 0
	for _, from := range domain.ProjectStatuses {
		for _, to := range domain.ProjectStatuses {
			cases++
			p := env.createProject(t, orgAdmin, fmt.Sprintf("%s-%s", from, to))
			env.advance(t, env.Admin, p.ID, pathTo[from]...)
			before, err := env.Engine.ProjectProgress(env.Ctx, env.Admin, p.ID)
			require.NoError(t, err)

			_, err = env.Engine.TransitionProject(env.Ctx, env.Admin, p.ID, engine.TransitionOptions{Status: string(to)})
			got, gerr := env.Engine.GetProject(env.Ctx, env.Admin, p.ID)
			require.NoError(t, gerr)
			after, lerr := env.Engine.ProjectProgress(env.Ctx, env.Admin, p.ID)
			require.NoError(t, lerr)

			if domain.CanTransitionProject(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, got.Status)
				assert.Len(t, after, len(before)+1)
				continue
			}
			var ite engine.InvalidTransitionError
			require.ErrorAs(t, err, &ite, "%s -> %s", from, to)
			assert.Equal(t, string(from), ite.From)
			assert.Equal(t, string(to), ite.To)
			assert.Equal(t, from, got.Status, "rejected transition leaves status unchanged")
			assert.Len(t, after, len(before), "rejected transition appends nothing")
		}
	}
	assert.Equal(t, 49, cases)
}

func TestFullProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, orgAdmin := env.createClient(t, "Acme", "255711000001")
	p := env.createProject(t, orgAdmin, "Election watch")
	assert.Equal(t, domain.ProjectDraft, p.Status)

	log, err := env.Engine.ProjectProgress(env.Ctx, orgAdmin, p.ID)
	require.NoError(t, err)
	assert.Empty(t, log, "creation writes no progress row")

	env.advance(t, orgAdmin, p.ID, domain.ProjectSubmitted)

	_, err = env.Engine.TransitionProject(env.Ctx, orgAdmin, p.ID, engine.TransitionOptions{Status: "active"})
	var ite engine.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, []string{"review", "draft"}, ite.Allowed)
	assert.Equal(t, "Invalid status transition: submitted → active. Allowed transitions: review, draft", ite.Error())

	env.advance(t, env.Admin, p.ID, domain.ProjectReview, domain.ProjectInProgress, domain.ProjectActive, domain.ProjectCompleted)
	res, err := env.Engine.TransitionProject(env.Ctx, orgAdmin, p.ID, engine.TransitionOptions{Status: "archived", Action: "Close", Comment: "done"})
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectArchived, res.Project.Status)
	assert.Equal(t, "Close", res.Progress.Action)
	assert.Equal(t, "done", res.Progress.Comment)

	log, err = env.Engine.ProjectProgress(env.Ctx, orgAdmin, p.ID)
	require.NoError(t, err)
	require.Len(t, log, 6)
	prev := string(domain.ProjectDraft)
	for i, row := range log {
		assert.Equal(t, i+1, row.StageNo)
		assert.Equal(t, prev, row.PreviousStatus, "row %d chains to the previous one", i+1)
		prev = row.CurrentStatus
	}
	assert.Equal(t, "Status Update", log[0].Action)
	assert.Equal(t, domain.UserTypeClient, log[0].OwnerType)
	assert.Equal(t, domain.UserTypeStaff, log[1].OwnerType)

	_, err = env.Engine.TransitionProject(env.Ctx, orgAdmin, p.ID, engine.TransitionOptions{Status: "completed"})
	require.ErrorAs(t, err, &ite)
	assert.Empty(t, ite.Allowed)
	assert.Contains(t, ite.Error(), "Allowed transitions: none")
}

func TestTransitionRoleGate(t *testing.T) {
	env := newTestEnv(t)
	created, orgAdmin := env.createClient(t, "Acme", "255711000001")
	p := env.createProject(t, orgAdmin, "Watch")

	clerk, err := env.Engine.CreateClientUser(env.Ctx, orgAdmin, created.Client.ID, engine.ClientUserCreateOptions{
		FirstName: "Data", LastName: "Clerk", PhoneNumber: "255711000099", Role: "data_clerk",
	})
	require.NoError(t, err)
	actor := auth.Principal{ID: clerk.ID, Role: domain.RoleDataClerk, UserType: domain.UserTypeClient, ClientID: created.Client.ID}
	_, err = env.Engine.TransitionProject(env.Ctx, actor, p.ID, engine.TransitionOptions{Status: "submitted"})
	var forbidden auth.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	_, err = env.Engine.TransitionProject(env.Ctx, auth.Principal{}, p.ID, engine.TransitionOptions{Status: "submitted"})
	var unauth auth.UnauthenticatedError
	assert.ErrorAs(t, err, &unauth)

	_, err = env.Engine.TransitionProject(env.Ctx, env.Admin, "missing", engine.TransitionOptions{Status: "submitted"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.TransitionProject(env.Ctx, env.Admin, p.ID, engine.TransitionOptions{Status: "done"})
	var ve engine.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	a, adminA := env.createClient(t, "Acme", "255711000001")
	b, adminB := env.createClient(t, "Bema", "255711000002")
	projectB := env.createProject(t, adminB, "B watch")
	userB, err := env.Engine.CreateClientUser(env.Ctx, adminB, b.Client.ID, engine.ClientUserCreateOptions{
		FirstName: "B", LastName: "User", PhoneNumber: "255711000003",
	})
	require.NoError(t, err)

	var forbidden auth.ForbiddenError
	_, err = env.Engine.TransitionProject(env.Ctx, adminA, projectB.ID, engine.TransitionOptions{Status: "submitted"})
	assert.ErrorAs(t, err, &forbidden)
	_, err = env.Engine.GetProject(env.Ctx, adminA, projectB.ID)
	assert.ErrorAs(t, err, &forbidden)
	err = env.Engine.DeleteProject(env.Ctx, adminA, projectB.ID)
	assert.ErrorAs(t, err, &forbidden)

	name := "Hijacked"
	_, err = env.Engine.UpdateClientUser(env.Ctx, adminA, b.Client.ID, userB.ID, engine.ClientUserUpdateOptions{FirstName: &name})
	assert.ErrorAs(t, err, &forbidden)
	_, err = env.Engine.UpdateClientUser(env.Ctx, adminA, a.Client.ID, userB.ID, engine.ClientUserUpdateOptions{FirstName: &name})
	assert.ErrorAs(t, err, &forbidden, "routing through the actor's own client does not leak another tenant's user")
	err = env.Engine.DeleteClient(env.Ctx, adminA, b.Client.ID)
	assert.ErrorAs(t, err, &forbidden)

	list, err := env.Engine.ListProjects(env.Ctx, adminA, repo.ProjectFilters{}, repo.Page{})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Count)

	clients, err := env.Engine.ListClients(env.Ctx, adminA, repo.ClientFilters{}, repo.Page{})
	require.NoError(t, err)
	require.Len(t, clients.Results, 1)
	assert.Equal(t, a.Client.ID, clients.Results[0].ID)

	all, err := env.Engine.ListClients(env.Ctx, env.Admin, repo.ClientFilters{}, repo.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Count)
}

func TestLegacyStaffOrgAdminScopedByAssignments(t *testing.T) {
	env := newTestEnv(t)
	a, adminA := env.createClient(t, "Acme", "255711000001")
	_, adminB := env.createClient(t, "Bema", "255711000002")
	projectA := env.createProject(t, adminA, "A watch")
	projectB := env.createProject(t, adminB, "B watch")

	staff := env.seedStaff(t, domain.RoleOrgAdmin, "255722000001", "legacy@hamasa.test")
	_, err := env.Engine.AssignStaff(env.Ctx, env.Admin, staff.ID, a.Client.ID)
	require.NoError(t, err)
	_, err = env.Engine.AssignStaff(env.Ctx, env.Admin, staff.ID, a.Client.ID)
	var conflict repo.ConflictError
	assert.ErrorAs(t, err, &conflict)

	login, err := env.Engine.Login(env.Ctx, "legacy@hamasa.test", "secret123")
	require.NoError(t, err)
	principal, err := env.Engine.Authenticate(env.Ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{a.Client.ID}, principal.AssignedClients)

	_, err = env.Engine.TransitionProject(env.Ctx, principal, projectA.ID, engine.TransitionOptions{Status: "submitted"})
	assert.NoError(t, err)
	_, err = env.Engine.TransitionProject(env.Ctx, principal, projectB.ID, engine.TransitionOptions{Status: "submitted"})
	var forbidden auth.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	require.NoError(t, env.Engine.UnassignStaff(env.Ctx, env.Admin, staff.ID, a.Client.ID))
	principal, err = env.Engine.Authenticate(env.Ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, principal.AssignedClients)
	_, err = env.Engine.GetProject(env.Ctx, principal, projectA.ID)
	assert.ErrorAs(t, err, &forbidden)
}

func TestSoftDeletedClientCanBeRecreated(t *testing.T) {
	env := newTestEnv(t)
	created, orgAdmin := env.createClient(t, "Acme", "255711000001")
	p := env.createProject(t, orgAdmin, "Watch")

	require.NoError(t, env.Engine.DeleteClient(env.Ctx, env.Admin, created.Client.ID))
	err := env.Engine.DeleteClient(env.Ctx, env.Admin, created.Client.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound, "deleting twice is not found")

	list, err := env.Engine.ListClients(env.Ctx, env.Admin, repo.ClientFilters{}, repo.Page{})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Count)
	_, err = env.Engine.GetProject(env.Ctx, env.Admin, p.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound, "projects go with their client")

	again, _ := env.createClient(t, "Acme", "255711000001")
	assert.NotEqual(t, created.Client.ID, again.Client.ID)
}

func TestClientUniqueness(t *testing.T) {
	env := newTestEnv(t)
	created, orgAdmin := env.createClient(t, "Acme", "255711000001")

	_, err := env.Engine.CreateClient(env.Ctx, env.Admin, engine.ClientCreateOptions{
		Name: "acme", Country: "Kenya", FirstName: "X", LastName: "Y", PhoneNumber: "255711000050", Email: "other@client.test",
	})
	var conflict repo.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "name_of_organisation", conflict.Field)

	_, err = env.Engine.CreateClientUser(env.Ctx, orgAdmin, created.Client.ID, engine.ClientUserCreateOptions{
		FirstName: "Dup", LastName: "Phone", PhoneNumber: "255711000001",
	})
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "phone_number", conflict.Field)
}

func TestDeletedClientUserCannotLogIn(t *testing.T) {
	env := newTestEnv(t)
	created, orgAdmin := env.createClient(t, "Acme", "255711000001")

	login, err := env.Engine.Login(env.Ctx, "255711000001", created.PlainPassword)
	require.NoError(t, err)
	assert.Equal(t, domain.UserTypeClient, login.UserType)
	assert.Equal(t, "bearer", login.TokenType)
	assert.False(t, login.User.IsActive, "org admin starts inactive")

	user, err := env.Engine.CreateClientUser(env.Ctx, orgAdmin, created.Client.ID, engine.ClientUserCreateOptions{
		FirstName: "Temp", LastName: "User", PhoneNumber: "255711000007", Email: "temp@client.test", Password: "hunter22",
	})
	require.NoError(t, err)
	assert.Empty(t, user.PlainPassword)
	userLogin, err := env.Engine.Login(env.Ctx, "TEMP@client.test", "hunter22")
	require.NoError(t, err)

	require.NoError(t, env.Engine.DeleteClientUser(env.Ctx, orgAdmin, created.Client.ID, user.ID))

	var unauth auth.UnauthenticatedError
	_, err = env.Engine.Login(env.Ctx, "temp@client.test", "hunter22")
	require.ErrorAs(t, err, &unauth)
	assert.Equal(t, "Invalid credentials", err.Error())
	_, err = env.Engine.Authenticate(env.Ctx, userLogin.AccessToken)
	assert.ErrorAs(t, err, &unauth, "tokens of deleted users stop working")

	_, err = env.Engine.Login(env.Ctx, "255711000001", "wrong-password")
	assert.ErrorAs(t, err, &unauth)
}

func TestClientUserSelfRule(t *testing.T) {
	env := newTestEnv(t)
	created, orgAdmin := env.createClient(t, "Acme", "255711000001")
	clientID := created.Client.ID
	u1, err := env.Engine.CreateClientUser(env.Ctx, orgAdmin, clientID, engine.ClientUserCreateOptions{FirstName: "One", LastName: "U", PhoneNumber: "255711000011"})
	require.NoError(t, err)
	u2, err := env.Engine.CreateClientUser(env.Ctx, orgAdmin, clientID, engine.ClientUserCreateOptions{FirstName: "Two", LastName: "U", PhoneNumber: "255711000012"})
	require.NoError(t, err)
	self := auth.Principal{ID: u1.ID, Role: domain.RoleOrgUser, UserType: domain.UserTypeClient, ClientID: clientID}

	name := "Uno"
	got, err := env.Engine.UpdateClientUser(env.Ctx, self, clientID, u1.ID, engine.ClientUserUpdateOptions{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Uno", got.FirstName)

	var forbidden auth.ForbiddenError
	_, err = env.Engine.UpdateClientUser(env.Ctx, self, clientID, u2.ID, engine.ClientUserUpdateOptions{FirstName: &name})
	assert.ErrorAs(t, err, &forbidden)
	role := "org_admin"
	_, err = env.Engine.UpdateClientUser(env.Ctx, self, clientID, u1.ID, engine.ClientUserUpdateOptions{Role: &role})
	assert.ErrorAs(t, err, &forbidden)

	visible, err := env.Engine.ListClientUsers(env.Ctx, self, clientID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, u1.ID, visible[0].ID)

	all, err := env.Engine.ListClientUsers(env.Ctx, orgAdmin, clientID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	env := newTestEnv(t)
	login, err := env.Engine.Login(env.Ctx, "admin@hamasa.test", "secret123")
	require.NoError(t, err)

	var unauth auth.UnauthenticatedError
	_, err = env.Engine.Authenticate(env.Ctx, login.RefreshToken)
	assert.ErrorAs(t, err, &unauth)
	_, err = env.Engine.Refresh(env.Ctx, login.AccessToken)
	assert.ErrorAs(t, err, &unauth, "an access token cannot refresh")

	refreshed, err := env.Engine.Refresh(env.Ctx, login.RefreshToken)
	require.NoError(t, err)
	p, err := env.Engine.Authenticate(env.Ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, env.Admin.ID, p.ID)
	assert.Equal(t, domain.RoleSuperAdmin, p.Role)
}

func TestStaleRoleInvalidatesToken(t *testing.T) {
	env := newTestEnv(t)
	reviewer := env.seedStaff(t, domain.RoleReviewer, "255722000002", "reviewer@hamasa.test")
	login, err := env.Engine.Login(env.Ctx, "255722000002", "secret123")
	require.NoError(t, err)

	role := "data_clerk"
	_, err = env.Engine.UpdateStaffUser(env.Ctx, env.Admin, reviewer.ID, engine.StaffUpdateOptions{Role: &role})
	require.NoError(t, err)

	var unauth auth.UnauthenticatedError
	_, err = env.Engine.Authenticate(env.Ctx, login.AccessToken)
	assert.ErrorAs(t, err, &unauth)
}

func TestServiceToken(t *testing.T) {
	env := newTestEnv(t)
	reviewer := env.seedStaff(t, domain.RoleReviewer, "255722000002", "reviewer@hamasa.test")
	var forbidden auth.ForbiddenError
	_, err := env.Engine.ServiceToken(env.Ctx, reviewer)
	assert.ErrorAs(t, err, &forbidden)

	first, err := env.Engine.ServiceToken(env.Ctx, env.Admin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMLService, first.Role)
	assert.Equal(t, 365, first.ExpiresInDays)

	p, err := env.Engine.Authenticate(env.Ctx, first.ServiceToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMLService, p.Role)
	assert.Equal(t, "service", p.Source)

	second, err := env.Engine.ServiceToken(env.Ctx, env.Admin)
	require.NoError(t, err)
	p2, err := env.Engine.Authenticate(env.Ctx, second.ServiceToken)
	require.NoError(t, err)
	assert.Equal(t, p.ID, p2.ID, "the service principal is created once")

	staff, err := env.Engine.ListStaffUsers(env.Ctx, env.Admin, repo.StaffFilters{Role: "ml_service"}, repo.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, staff.Count)
}

func TestPurgeVersusArchive(t *testing.T) {
	env := newTestEnv(t)
	clerk, err := env.Engine.CreateStaffUser(env.Ctx, env.Admin, engine.StaffCreateOptions{
		FirstName: "Data", LastName: "Clerk", PhoneNumber: "255722000003", Role: "data_clerk",
	})
	require.NoError(t, err)
	assert.Len(t, clerk.PlainPassword, 10)

	require.NoError(t, env.Engine.DeleteStaffUser(env.Ctx, env.Admin, clerk.ID))
	var n int
	require.NoError(t, env.DB.QueryRow(`SELECT COUNT(*) FROM staff_users WHERE id=?`, clerk.ID).Scan(&n))
	assert.Equal(t, 0, n, "staff users are purged")

	var ve engine.ValidationError
	assert.ErrorAs(t, env.Engine.DeleteStaffUser(env.Ctx, env.Admin, env.Admin.ID), &ve)

	created, orgAdmin := env.createClient(t, "Acme", "255711000001")
	u, err := env.Engine.CreateClientUser(env.Ctx, orgAdmin, created.Client.ID, engine.ClientUserCreateOptions{FirstName: "A", LastName: "B", PhoneNumber: "255711000020"})
	require.NoError(t, err)
	require.NoError(t, env.Engine.DeleteClientUser(env.Ctx, orgAdmin, created.Client.ID, u.ID))
	var deleted int
	require.NoError(t, env.DB.QueryRow(`SELECT is_deleted FROM client_users WHERE id=?`, u.ID).Scan(&deleted))
	assert.Equal(t, 1, deleted, "client users are archived")
	_, err = env.Engine.GetClientUser(env.Ctx, orgAdmin, created.Client.ID, u.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestReportStatusMachine(t *testing.T) {
	env := newTestEnv(t)
	_, orgAdmin := env.createClient(t, "Acme", "255711000001")
	p := env.createProject(t, orgAdmin, "Watch")

	rep, err := env.Engine.CreateReport(env.Ctx, orgAdmin, p.ID, engine.ReportInput{
		Title: "Budget speech", PublicationDate: "2025-05-30", Link: "https://news.test/a", Objectives: []any{"transparency"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReportUnverified, rep.Status)
	assert.Equal(t, "2025-05-30T00:00:00Z", rep.PublicationDate)

	_, err = env.Engine.CreateReport(env.Ctx, orgAdmin, p.ID, engine.ReportInput{Title: "Copy", PublicationDate: "2025-05-30", Link: "https://news.test/a"})
	var conflict repo.ConflictError
	assert.ErrorAs(t, err, &conflict)

	res, err := env.Engine.SetReportStatus(env.Ctx, env.Admin, rep.ID, engine.TransitionOptions{Status: "Verified", Comment: "checked"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Progress.StageNo)
	res, err = env.Engine.SetReportStatus(env.Ctx, env.Admin, rep.ID, engine.TransitionOptions{Status: "Rejected"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Progress.StageNo)

	_, err = env.Engine.SetReportStatus(env.Ctx, env.Admin, rep.ID, engine.TransitionOptions{Status: "Verified"})
	var ite engine.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Empty(t, ite.Allowed)

	log, err := env.Engine.ReportProgress(env.Ctx, orgAdmin, rep.ID)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "Unverified", log[0].PreviousStatus)
	assert.Equal(t, "Rejected", log[1].CurrentStatus)

	require.NoError(t, env.Engine.DeleteReport(env.Ctx, orgAdmin, rep.ID))
	_, err = env.Engine.GetReport(env.Ctx, orgAdmin, rep.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.CreateReport(env.Ctx, orgAdmin, p.ID, engine.ReportInput{Title: "Again", PublicationDate: "2025-05-31", Link: "https://news.test/a"})
	assert.NoError(t, err, "a deleted report frees its link")
}

func TestImportMLCSV(t *testing.T) {
	env := newTestEnv(t)
	_, orgAdmin := env.createClient(t, "Acme", "255711000001")
	p := env.createProject(t, orgAdmin, "Watch")
	_, err := env.Engine.CreateReport(env.Ctx, orgAdmin, p.ID, engine.ReportInput{Title: "Existing", PublicationDate: "2025-05-01", Link: "https://news.test/old"})
	require.NoError(t, err)

	env.Engine.Fetcher = stubFetcher{rows: []map[string]string{
		{"title": "One", "link": "https://news.test/1", "publication_date": "2025-05-20", "sentiment": "positive"},
		{"title": "Dup", "link": "https://news.test/1", "publication_date": "2025-05-20"},
		{"title": "Old", "link": "https://news.test/old"},
		{"title": "", "link": "https://news.test/2"},
		{"title": "Two", "link": "", "objectives": "a;b"},
	}}
	mlService := env.seedStaff(t, domain.RoleMLService, "255722000009", "ml@hamasa.test")
	res, err := env.Engine.ImportMLCSV(env.Ctx, mlService, p.ID, "https://files.test/out.csv")
	require.NoError(t, err)
	assert.Equal(t, engine.MLImportResult{UID: p.ID, TotalRows: 5, ReportsCreated: 2, ReportsSkipped: 2}, res)

	stored, err := env.Engine.MLResults(env.Ctx, mlService, p.ID, repo.Page{})
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Count)
	assert.Equal(t, "positive", stored.Results[0].Data["sentiment"])

	reports, err := env.Engine.ListReports(env.Ctx, orgAdmin, p.ID, repo.ReportFilters{Search: "one"}, repo.Page{})
	require.NoError(t, err)
	require.Len(t, reports.Results, 1)
	assert.Equal(t, "positive", reports.Results[0].ExtraMetadata["sentiment"])

	env.Engine.Fetcher = stubFetcher{err: ingest.ErrEmpty}
	_, err = env.Engine.ImportMLCSV(env.Ctx, mlService, p.ID, "https://files.test/empty.csv")
	var ve engine.ValidationError
	assert.ErrorAs(t, err, &ve)

	var forbidden auth.ForbiddenError
	_, err = env.Engine.ImportMLCSV(env.Ctx, orgAdmin, p.ID, "https://files.test/out.csv")
	assert.ErrorAs(t, err, &forbidden)

	details, err := env.Engine.MLDetails(env.Ctx, env.Admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Watch", details.Title)
}

var otpPattern = regexp.MustCompile(`(?:OTP is|code is) (\d+)`)

func codeFrom(t *testing.T, msg string) string {
	t.Helper()
	m := otpPattern.FindStringSubmatch(msg)
	require.Len(t, m, 2, "no code in %q", msg)
	return m[1]
}

func TestPasswordResetAndPhoneVerification(t *testing.T) {
	env := newTestEnv(t)
	created, _ := env.createClient(t, "Acme", "255711000001")

	require.NoError(t, env.Engine.ForgotPassword(env.Ctx, "255711000001"))
	msg := env.SMS.last()
	assert.Contains(t, msg, "It expires in 5 minutes.")
	code := codeFrom(t, msg)

	var ve engine.ValidationError
	err := env.Engine.ResetPassword(env.Ctx, "255711000001", code, "short")
	assert.ErrorAs(t, err, &ve)
	require.NoError(t, env.Engine.ResetPassword(env.Ctx, "255711000001", code, "brand-new-pass"))
	err = env.Engine.ResetPassword(env.Ctx, "255711000001", code, "another-pass")
	assert.ErrorAs(t, err, &ve, "codes are single use")

	_, err = env.Engine.Login(env.Ctx, "255711000001", created.PlainPassword)
	assert.Error(t, err)
	_, err = env.Engine.Login(env.Ctx, "255711000001", "brand-new-pass")
	require.NoError(t, err)

	require.NoError(t, env.Engine.SendOTP(env.Ctx, "255711000001"))
	acct, err := env.Engine.VerifyPhone(env.Ctx, "255711000001", codeFrom(t, env.SMS.last()))
	require.NoError(t, err)
	assert.True(t, acct.IsActive)

	err = env.Engine.ForgotPassword(env.Ctx, "nobody@nowhere.test")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	_, orgAdmin := env.createClient(t, "Acme", "255711000001")

	radio, err := env.Engine.CreateCatalogItem(env.Ctx, env.Admin, repo.MediaCategories, engine.CatalogInput{Name: "Radio"})
	require.NoError(t, err)
	var sources []string
	for _, name := range []string{"Radio One", "Clouds FM", "TBC Taifa", "Wapo"} {
		s, err := env.Engine.CreateMediaSource(env.Ctx, env.Admin, engine.MediaSourceInput{Name: name, CategoryID: radio.ID})
		require.NoError(t, err)
		sources = append(sources, s.ID)
	}
	p, err := env.Engine.CreateProject(env.Ctx, orgAdmin, engine.ProjectCreateOptions{Title: "Watch", MediaSourceIDs: sources[:1]})
	require.NoError(t, err)
	env.advance(t, env.Admin, p.ID, pathTo[domain.ProjectActive]...)

	for i, date := range []string{"2025-06-01T06:00:00Z", "2025-05-28T00:00:00Z", "2025-05-10T00:00:00Z", "2025-01-01T00:00:00Z"} {
		_, err := env.Engine.CreateReport(env.Ctx, orgAdmin, p.ID, engine.ReportInput{
			Title: fmt.Sprintf("Story %d", i), PublicationDate: date, MediaCategory: "Radio",
		})
		require.NoError(t, err)
	}

	var forbidden auth.ForbiddenError
	_, err = env.Engine.Dashboard(env.Ctx, orgAdmin)
	assert.ErrorAs(t, err, &forbidden)

	d, err := env.Engine.Dashboard(env.Ctx, env.Admin)
	require.NoError(t, err)
	assert.Equal(t, domain.DashboardSummary{TotalClients: 1, TotalProjects: 1, ActiveProjects: 1, TotalMediaSources: 4}, d.Summary)
	require.Len(t, d.MediaCoverage, 1)
	assert.Equal(t, 25.0, d.MediaCoverage[0].CoveragePercent)
	assert.Len(t, d.RecentReports, 4)
	assert.Equal(t, "Story 0", d.RecentReports[0].Title)
	assert.Equal(t, domain.ReportStatusSummary{Unverified: 4}, d.ReportStatus)

	byCat := map[string]domain.MonitoringItem{}
	for _, m := range d.Monitoring {
		byCat[m.Category] = m
	}
	assert.Equal(t, domain.MonitoringItem{Category: "Radio", Daily: 1, Weekly: 2, Monthly: 3}, byCat["Radio"])
	assert.Equal(t, 0, byCat["TV"].Monthly)
}

func TestCatalogSoftDeleteFreesName(t *testing.T) {
	env := newTestEnv(t)
	item, err := env.Engine.CreateCatalogItem(env.Ctx, env.Admin, repo.ReportAvenues, engine.CatalogInput{Name: "Email"})
	require.NoError(t, err)
	_, err = env.Engine.CreateCatalogItem(env.Ctx, env.Admin, repo.ReportAvenues, engine.CatalogInput{Name: "email"})
	var conflict repo.ConflictError
	require.ErrorAs(t, err, &conflict)

	require.NoError(t, env.Engine.DeleteCatalogItem(env.Ctx, env.Admin, repo.ReportAvenues, item.ID))
	_, err = env.Engine.GetCatalogItem(env.Ctx, env.Admin, repo.ReportAvenues, item.ID)
	assert.True(t, errors.Is(err, repo.ErrNotFound))
	_, err = env.Engine.CreateCatalogItem(env.Ctx, env.Admin, repo.ReportAvenues, engine.CatalogInput{Name: "Email"})
	assert.NoError(t, err)
}

func TestProjectLinksAndCollaborators(t *testing.T) {
	env := newTestEnv(t)
	created, orgAdmin := env.createClient(t, "Acme", "255711000001")
	_, otherAdmin := env.createClient(t, "Bema", "255711000002")
	cat, err := env.Engine.CreateCatalogItem(env.Ctx, env.Admin, repo.ProjectCategories, engine.CatalogInput{Name: "Governance"})
	require.NoError(t, err)
	member, err := env.Engine.CreateClientUser(env.Ctx, orgAdmin, created.Client.ID, engine.ClientUserCreateOptions{FirstName: "M", LastName: "C", PhoneNumber: "255711000030"})
	require.NoError(t, err)

	p, err := env.Engine.CreateProject(env.Ctx, orgAdmin, engine.ProjectCreateOptions{
		Title:         "Watch",
		CategoryIDs:   []string{cat.ID, cat.ID},
		ThematicAreas: []engine.ThematicAreaInput{{Area: "Health", Title: "Maternal care", MonitoringObjectives: []string{" access ", ""}}},
	})
	require.NoError(t, err)
	require.Len(t, p.Categories, 1)
	require.Len(t, p.ThematicAreas, 1)
	assert.Equal(t, []string{"access"}, p.ThematicAreas[0].MonitoringObjectives)

	p, err = env.Engine.AddCollaborator(env.Ctx, orgAdmin, p.ID, member.ID)
	require.NoError(t, err)
	require.Len(t, p.Collaborators, 1)
	_, err = env.Engine.AddCollaborator(env.Ctx, orgAdmin, p.ID, member.ID)
	var conflict repo.ConflictError
	assert.ErrorAs(t, err, &conflict)

	otherProject := env.createProject(t, otherAdmin, "Other")
	var forbidden auth.ForbiddenError
	_, err = env.Engine.AddCollaborator(env.Ctx, otherAdmin, otherProject.ID, member.ID)
	assert.ErrorAs(t, err, &forbidden)

	p, err = env.Engine.UpdateProject(env.Ctx, orgAdmin, p.ID, engine.ProjectUpdateOptions{CategoryIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, p.Categories)
	assert.Len(t, p.ThematicAreas, 1, "nil link lists are left alone")

	_, err = env.Engine.UpdateProject(env.Ctx, orgAdmin, p.ID, engine.ProjectUpdateOptions{CategoryIDs: []string{"missing"}})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func (env *testEnv) clientReviewer(t *testing.T, orgAdmin auth.Principal, phone string) auth.Principal {
	t.Helper()
	u, err := env.Engine.CreateClientUser(env.Ctx, orgAdmin, orgAdmin.ClientID, engine.ClientUserCreateOptions{
		FirstName: "Rita", LastName: "Reviewer", PhoneNumber: phone, Role: string(domain.RoleReviewer),
	})
	require.NoError(t, err)
	return auth.Principal{ID: u.ID, Role: domain.RoleReviewer, UserType: domain.UserTypeClient, ClientID: orgAdmin.ClientID}
}

func TestMLOperationsAreTenantScoped(t *testing.T) {
	env := newTestEnv(t)
	_, adminA := env.createClient(t, "Acme", "255711000001")
	_, adminB := env.createClient(t, "Bema", "255711000002")
	ownProject := env.createProject(t, adminA, "A watch")
	foreign := env.createProject(t, adminB, "B secret watch")
	reviewerA := env.clientReviewer(t, adminA, "255711000010")
	env.Engine.Fetcher = stubFetcher{rows: []map[string]string{{"title": "Injected", "link": "https://news.test/x"}}}

	var forbidden auth.ForbiddenError
	_, err := env.Engine.MLDetails(env.Ctx, reviewerA, foreign.ID)
	assert.ErrorAs(t, err, &forbidden)
	_, err = env.Engine.MLResults(env.Ctx, reviewerA, foreign.ID, repo.Page{})
	assert.ErrorAs(t, err, &forbidden)
	_, err = env.Engine.ImportMLCSV(env.Ctx, reviewerA, foreign.ID, "https://files.test/out.csv")
	assert.ErrorAs(t, err, &forbidden)

	reports, err := env.Engine.ListReports(env.Ctx, adminB, foreign.ID, repo.ReportFilters{}, repo.Page{})
	require.NoError(t, err)
	assert.Equal(t, 0, reports.Count, "a refused import writes nothing")

	details, err := env.Engine.MLDetails(env.Ctx, reviewerA, ownProject.ID)
	require.NoError(t, err)
	assert.Equal(t, "A watch", details.Title)
	res, err := env.Engine.ImportMLCSV(env.Ctx, reviewerA, ownProject.ID, "https://files.test/out.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReportsCreated)
}

func TestDashboardIsStaffOnly(t *testing.T) {
	env := newTestEnv(t)
	_, adminA := env.createClient(t, "Acme", "255711000001")
	_, adminB := env.createClient(t, "Bema", "255711000002")
	p := env.createProject(t, adminB, "B watch")
	_, err := env.Engine.CreateReport(env.Ctx, adminB, p.ID, engine.ReportInput{Title: "B confidential report", PublicationDate: "2025-05-30"})
	require.NoError(t, err)

	var forbidden auth.ForbiddenError
	d, err := env.Engine.Dashboard(env.Ctx, env.clientReviewer(t, adminA, "255711000010"))
	assert.ErrorAs(t, err, &forbidden)
	assert.Empty(t, d.RecentReports)

	clerk, err := env.Engine.CreateClientUser(env.Ctx, adminA, adminA.ClientID, engine.ClientUserCreateOptions{
		FirstName: "Dan", LastName: "Clerk", PhoneNumber: "255711000011", Role: string(domain.RoleDataClerk),
	})
	require.NoError(t, err)
	_, err = env.Engine.Dashboard(env.Ctx, auth.Principal{ID: clerk.ID, Role: domain.RoleDataClerk, UserType: domain.UserTypeClient, ClientID: adminA.ClientID})
	assert.ErrorAs(t, err, &forbidden)

	staffReviewer := env.seedStaff(t, domain.RoleReviewer, "255722000001", "reviewer@hamasa.test")
	d, err = env.Engine.Dashboard(env.Ctx, staffReviewer)
	require.NoError(t, err)
	require.Len(t, d.RecentReports, 1)
	assert.Equal(t, 2, d.Summary.TotalClients)
}

func TestDeletingProjectKeepsSharedThematicAreas(t *testing.T) {
	env := newTestEnv(t)
	_, orgAdmin := env.createClient(t, "Acme", "255711000001")
	shared, err := env.Engine.CreateThematicArea(env.Ctx, env.Admin, engine.ThematicAreaInput{Area: "Health", Title: "Public health"})
	require.NoError(t, err)

	first, err := env.Engine.CreateProject(env.Ctx, orgAdmin, engine.ProjectCreateOptions{
		Title:         "First",
		ThematicAreas: []engine.ThematicAreaInput{{Area: "Water", Title: "Rural water"}},
	})
	require.NoError(t, err)
	require.Len(t, first.ThematicAreas, 1)
	inline := first.ThematicAreas[0]
	second := env.createProject(t, orgAdmin, "Second")
	for _, id := range []string{first.ID, second.ID} {
		_, err := env.Engine.UpdateProject(env.Ctx, orgAdmin, id, engine.ProjectUpdateOptions{ThematicAreaIDs: []string{shared.ID}})
		require.NoError(t, err)
	}

	require.NoError(t, env.Engine.DeleteProject(env.Ctx, orgAdmin, first.ID))

	_, err = env.Engine.GetThematicArea(env.Ctx, env.Admin, shared.ID)
	require.NoError(t, err, "catalog areas outlive the projects linking them")
	got, err := env.Engine.GetProject(env.Ctx, orgAdmin, second.ID)
	require.NoError(t, err)
	require.Len(t, got.ThematicAreas, 1)
	assert.Equal(t, shared.ID, got.ThematicAreas[0].ID)

	_, err = env.Engine.GetThematicArea(env.Ctx, env.Admin, inline.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound, "areas created with the project go with it")
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	env := newTestEnv(t)
	_, orgAdmin := env.createClient(t, "Acme", "255711000001")
	p := env.createProject(t, orgAdmin, "Watch")

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.TransitionProject(env.Ctx, orgAdmin, p.ID, engine.TransitionOptions{Status: string(domain.ProjectSubmitted)})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var invalidMove engine.InvalidTransitionError
		if !errors.As(err, &invalidMove) {
			assert.ErrorIs(t, err, engine.ErrConcurrentUpdate)
		}
	}
	assert.Equal(t, 1, successes)

	log, err := env.Engine.ProjectProgress(env.Ctx, orgAdmin, p.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, 1, log[0].StageNo)
	got, err := env.Engine.GetProject(env.Ctx, orgAdmin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectSubmitted, got.Status)
}
