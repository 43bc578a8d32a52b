package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectTransitionTableExhaustive(t *testing.T) {
	legal := map[ProjectStatus]map[ProjectStatus]bool{
		ProjectDraft:      {ProjectSubmitted: true},
		ProjectSubmitted:  {ProjectReview: true, ProjectDraft: true},
		ProjectReview:     {ProjectInProgress: true, ProjectDraft: true},
		ProjectInProgress: {ProjectActive: true, ProjectReview: true},
		ProjectActive:     {ProjectCompleted: true},
		ProjectCompleted:  {ProjectArchived: true},
		ProjectArchived:   {},
	}
	require.Len(t, ProjectStatuses, 7)
	cases := 0
	for _, from := range ProjectStatuses {
		for _, to := range ProjectStatuses {
			cases++
			assert.Equal(t, legal[from][to], CanTransitionProject(from, to), "%s -> %s", from, to)
		}
	}
	assert.Equal(t, 49, cases)
}

func TestAllowedProjectTransitionsOrderAndCopy(t *testing.T) {
	assert.Equal(t, []ProjectStatus{ProjectReview, ProjectDraft}, AllowedProjectTransitions(ProjectSubmitted))
	assert.Empty(t, AllowedProjectTransitions(ProjectArchived))

	got := AllowedProjectTransitions(ProjectDraft)
	got[0] = ProjectArchived
	assert.Equal(t, []ProjectStatus{ProjectSubmitted}, AllowedProjectTransitions(ProjectDraft))
}

func TestParseProjectStatus(t *testing.T) {
	st, err := ParseProjectStatus("in_progress")
	require.NoError(t, err)
	assert.Equal(t, ProjectInProgress, st)

	_, err = ParseProjectStatus("done")
	assert.Error(t, err)
}

func TestReportTransitions(t *testing.T) {
	assert.True(t, CanTransitionReport(ReportUnverified, ReportVerified))
	assert.True(t, CanTransitionReport(ReportUnverified, ReportRejected))
	assert.True(t, CanTransitionReport(ReportVerified, ReportRejected))
	assert.False(t, CanTransitionReport(ReportVerified, ReportUnverified))
	assert.False(t, CanTransitionReport(ReportUnverified, ReportUnverified))
	for _, to := range ReportStatuses {
		assert.False(t, CanTransitionReport(ReportRejected, to), "rejected is terminal")
	}
	_, err := ParseReportStatus("verified")
	assert.Error(t, err)
}

func TestParseRolePerPrincipalKind(t *testing.T) {
	r, err := ParseRole(UserTypeStaff, "ml_service")
	require.NoError(t, err)
	assert.Equal(t, RoleMLService, r)

	_, err = ParseRole(UserTypeClient, "super_admin")
	assert.Error(t, err)
	_, err = ParseRole(UserTypeClient, "ml_service")
	assert.Error(t, err)

	r, err = ParseRole(UserTypeClient, "org_user")
	require.NoError(t, err)
	assert.True(t, r.TenantScoped())
	assert.False(t, RoleReviewer.TenantScoped())

	_, err = ParseUserType("hamasa")
	assert.Error(t, err)
}
