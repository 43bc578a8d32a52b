package engine

import (
	"context"
	"time"

	"hamasa/internal/domain"
	"hamasa/internal/engine/auth"
)

const recentReportLimit = 5

var monitoringWindows = struct{ daily, weekly, monthly time.Duration }{
	daily:   24 * time.Hour,
	weekly:  7 * 24 * time.Hour,
	monthly: 30 * 24 * time.Hour,
}

// Dashboard aggregates the overview counters across every tenant, so only
// unscoped staff may read it. Monitoring windows are rolling and measured on
// publication_date.
func (e Engine) Dashboard(ctx context.Context, actor auth.Principal) (domain.Dashboard, error) {
	if err := auth.RequireRole(actor, dashboardRoles...); err != nil {
		return domain.Dashboard{}, err
	}
	if !actor.IsStaff() || actor.Scoped() {
		return domain.Dashboard{}, auth.ForbiddenError{Role: actor.Role, Reason: "The dashboard is only available to staff"}
	}
	var d domain.Dashboard
	var err error
	if d.Summary.TotalClients, err = e.Repo.CountClients(ctx); err != nil {
		return d, err
	}
	if d.Summary.TotalProjects, err = e.Repo.CountProjects(ctx, ""); err != nil {
		return d, err
	}
	if d.Summary.ActiveProjects, err = e.Repo.CountProjects(ctx, domain.ProjectActive); err != nil {
		return d, err
	}
	if d.Summary.TotalMediaSources, err = e.Repo.CountMediaSources(ctx); err != nil {
		return d, err
	}
	if d.MediaCoverage, err = e.Repo.MediaCoverage(ctx); err != nil {
		return d, err
	}
	if d.RecentReports, err = e.Repo.RecentReports(ctx, recentReportLimit); err != nil {
		return d, err
	}
	now := e.now().UTC()
	since := func(window time.Duration) string { return now.Add(-window).Format(time.RFC3339) }
	d.Monitoring = make([]domain.MonitoringItem, 0, len(domain.MonitoringCategories))
	for _, cat := range domain.MonitoringCategories {
		item := domain.MonitoringItem{Category: cat}
		for _, w := range []struct {
			window time.Duration
			dst    *int
		}{
			{monitoringWindows.daily, &item.Daily},
			{monitoringWindows.weekly, &item.Weekly},
			{monitoringWindows.monthly, &item.Monthly},
		} {
			if *w.dst, err = e.Repo.CountReportsSince(ctx, cat, since(w.window)); err != nil {
				return d, err
			}
		}
		d.Monitoring = append(d.Monitoring, item)
	}
	if d.ReportStatus, err = e.Repo.ReportStatusCounts(ctx); err != nil {
		return d, err
	}
	return d, nil
}
