package repo

import (
	"context"
	"math"

	"hamasa/internal/domain"
)

// MediaCoverage reports, per live media category, how many of its sources
// are linked to live projects.
func (r Repo) MediaCoverage(ctx context.Context) ([]domain.MediaCoverage, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT mc.name,
  (SELECT COUNT(*) FROM media_sources ms WHERE ms.category_id=mc.id AND ms.is_deleted=0),
  (SELECT COUNT(DISTINCT pms.media_source_id) FROM project_media_sources pms
     JOIN media_sources ms ON ms.id=pms.media_source_id
     JOIN projects p ON p.id=pms.project_id
   WHERE ms.category_id=mc.id AND ms.is_deleted=0 AND pms.is_deleted=0 AND p.is_deleted=0)
FROM media_categories mc
WHERE mc.is_deleted=0
ORDER BY lower(mc.name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.MediaCoverage{}
	for rows.Next() {
		var name string
		var total, used int
		if err := rows.Scan(&name, &total, &used); err != nil {
			return nil, err
		}
		pct := 0.0
		if total > 0 {
			pct = math.Round(float64(used)/float64(total)*10000) / 100
		}
		res = append(res, domain.MediaCoverage{Name: name, CoveragePercent: pct, SourceCount: used})
	}
	return res, rows.Err()
}

func (r Repo) RecentReports(ctx context.Context, limit int) ([]domain.RecentReport, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT c.name_of_organisation, rp.title, rp.publication_date, rp.status
FROM project_reports rp
JOIN projects p ON p.id=rp.project_id
JOIN clients c ON c.id=p.client_id
WHERE rp.is_deleted=0 AND p.is_deleted=0
ORDER BY rp.publication_date DESC, rp.created_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.RecentReport{}
	for rows.Next() {
		var rr domain.RecentReport
		if err := rows.Scan(&rr.ClientName, &rr.Title, &rr.Date, &rr.Status); err != nil {
			return nil, err
		}
		res = append(res, rr)
	}
	return res, rows.Err()
}

// CountReportsSince counts live reports of a media category published at or after since.
func (r Repo) CountReportsSince(ctx context.Context, category, since string) (int, error) {
	return count(ctx, r.DB, `
SELECT COUNT(*) FROM project_reports rp JOIN projects p ON p.id=rp.project_id
WHERE rp.is_deleted=0 AND p.is_deleted=0 AND rp.media_category=? AND rp.publication_date>=?`, category, since)
}

func (r Repo) ReportStatusCounts(ctx context.Context) (domain.ReportStatusSummary, error) {
	var s domain.ReportStatusSummary
	rows, err := r.DB.QueryContext(ctx, `
SELECT rp.status, COUNT(*) FROM project_reports rp JOIN projects p ON p.id=rp.project_id
WHERE rp.is_deleted=0 AND p.is_deleted=0
GROUP BY rp.status`)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var status domain.ReportStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return s, err
		}
		switch status {
		case domain.ReportVerified:
			s.Verified = n
		case domain.ReportUnverified:
			s.Unverified = n
		case domain.ReportRejected:
			s.Rejected = n
		}
	}
	return s, rows.Err()
}
