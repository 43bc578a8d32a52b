package domain

import "fmt"

type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectSubmitted  ProjectStatus = "submitted"
	ProjectReview     ProjectStatus = "review"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectActive     ProjectStatus = "active"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectArchived   ProjectStatus = "archived"
)

// ProjectStatuses lists every project state in lifecycle order.
var ProjectStatuses = []ProjectStatus{
	ProjectDraft,
	ProjectSubmitted,
	ProjectReview,
	ProjectInProgress,
	ProjectActive,
	ProjectCompleted,
	ProjectArchived,
}

// Any pair missing from this table is illegal.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectDraft:      {ProjectSubmitted},
	ProjectSubmitted:  {ProjectReview, ProjectDraft},
	ProjectReview:     {ProjectInProgress, ProjectDraft},
	ProjectInProgress: {ProjectActive, ProjectReview},
	ProjectActive:     {ProjectCompleted},
	ProjectCompleted:  {ProjectArchived},
	ProjectArchived:   {},
}

func ParseProjectStatus(s string) (ProjectStatus, error) {
	st := ProjectStatus(s)
	if _, ok := projectTransitions[st]; !ok {
		return "", fmt.Errorf("invalid project status %q", s)
	}
	return st, nil
}

// AllowedProjectTransitions returns the ordered set of states reachable from s.
func AllowedProjectTransitions(s ProjectStatus) []ProjectStatus {
	return append([]ProjectStatus{}, projectTransitions[s]...)
}

func CanTransitionProject(from, to ProjectStatus) bool {
	for _, next := range projectTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ReportStatus string

const (
	ReportUnverified ReportStatus = "Unverified"
	ReportVerified   ReportStatus = "Verified"
	ReportRejected   ReportStatus = "Rejected"
)

var ReportStatuses = []ReportStatus{ReportUnverified, ReportVerified, ReportRejected}

var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportUnverified: {ReportVerified, ReportRejected},
	ReportVerified:   {ReportRejected},
	ReportRejected:   {},
}

func ParseReportStatus(s string) (ReportStatus, error) {
	st := ReportStatus(s)
	if _, ok := reportTransitions[st]; !ok {
		return "", fmt.Errorf("invalid report status %q", s)
	}
	return st, nil
}

func AllowedReportTransitions(s ReportStatus) []ReportStatus {
	return append([]ReportStatus{}, reportTransitions[s]...)
}

func CanTransitionReport(from, to ReportStatus) bool {
	for _, next := range reportTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MonitoringCategories drive the dashboard monitoring counters.
var MonitoringCategories = []string{"Print Media", "TV", "Radio", "Social Media"}
