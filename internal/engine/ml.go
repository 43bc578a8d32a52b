package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"hamasa/internal/domain"
	"hamasa/internal/engine/auth"
	"hamasa/internal/ingest"
	"hamasa/internal/repo"
)

// MLDetails is what an analysis job needs to know about a project.
type MLDetails struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	ThematicAreas []string `json:"thematic_areas"`
	MediaSources  []string `json:"media_sources"`
}

func (e Engine) MLDetails(ctx context.Context, actor auth.Principal, projectID string) (MLDetails, error) {
	if err := auth.RequireRole(actor, mlRoles...); err != nil {
		return MLDetails{}, err
	}
	p, err := e.reachableProject(ctx, nil, actor, projectID)
	if err != nil {
		return MLDetails{}, err
	}
	d, err := e.Repo.LoadProjectDetail(ctx, p)
	if err != nil {
		return MLDetails{}, err
	}
	return MLDetails{
		ID:            p.ID,
		Title:         p.Title,
		ThematicAreas: lo.Map(d.ThematicAreas, func(t domain.ThematicArea, _ int) string { return t.Area }),
		MediaSources:  lo.Map(d.MediaSources, func(m domain.MediaSource, _ int) string { return m.Name }),
	}, nil
}

type MLImportResult struct {
	UID            string `json:"uid"`
	TotalRows      int    `json:"total_rows"`
	ReportsCreated int    `json:"reports_created"`
	ReportsSkipped int    `json:"reports_skipped"`
}

// ImportMLCSV downloads an analysis CSV, replaces the project's stored rows
// with it and files every titled row as an Unverified report. Rows whose link
// already belongs to a live report of the project are skipped.
func (e Engine) ImportMLCSV(ctx context.Context, actor auth.Principal, projectID, csvURL string) (MLImportResult, error) {
	if err := auth.RequireRole(actor, mlRoles...); err != nil {
		return MLImportResult{}, err
	}
	if err := requireAll("uid", projectID, "csv_url", csvURL); err != nil {
		return MLImportResult{}, err
	}
	if _, err := e.reachableProject(ctx, nil, actor, projectID); err != nil {
		return MLImportResult{}, err
	}
	if e.Fetcher == nil {
		return MLImportResult{}, errors.New("csv fetcher not configured")
	}
	rows, err := e.Fetcher.Fetch(ctx, strings.TrimSpace(csvURL))
	if errors.Is(err, ingest.ErrEmpty) {
		return MLImportResult{}, invalid("csv_url", "CSV is empty")
	}
	if err != nil {
		return MLImportResult{}, invalid("csv_url", "%s", err.Error())
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MLImportResult{}, err
	}
	defer tx.Rollback()
	if _, err := e.reachableProject(ctx, tx, actor, projectID); err != nil {
		return MLImportResult{}, err
	}
	now := e.stamp()
	if err := e.Repo.ReplaceMLResults(ctx, tx, projectID, rows, newID, now); err != nil {
		return MLImportResult{}, err
	}
	res := MLImportResult{UID: projectID, TotalRows: len(rows)}
	seen := map[string]bool{}
	for _, row := range rows {
		r, ok := ingest.ToReport(row)
		if !ok {
			continue
		}
		if r.Link != "" {
			taken, err := e.Repo.ReportLinkExists(ctx, tx, projectID, r.Link, "")
			if err != nil {
				return MLImportResult{}, err
			}
			if taken || seen[r.Link] {
				res.ReportsSkipped++
				continue
			}
			seen[r.Link] = true
		}
		published := now
		if r.PublicationDate != "" {
			if published, err = normalizeDate("publication_date", r.PublicationDate); err != nil {
				res.ReportsSkipped++
				continue
			}
		}
		rep := domain.Report{
			ID:                  newID(),
			ProjectID:           projectID,
			PublicationDate:     published,
			Title:               r.Title,
			Content:             r.Content,
			Source:              r.Source,
			MediaCategory:       r.MediaCategory,
			MediaFormat:         r.MediaFormat,
			ThematicArea:        r.ThematicArea,
			ThematicDescription: r.ThematicDescription,
			Objectives:          r.Objectives,
			Link:                r.Link,
			Status:              domain.ReportUnverified,
			ExtraMetadata:       r.Extra,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := e.Repo.InsertReport(ctx, tx, rep); err != nil {
			return MLImportResult{}, err
		}
		res.ReportsCreated++
	}
	if err := tx.Commit(); err != nil {
		return MLImportResult{}, err
	}
	e.log().Info("imported ml csv", zap.String("project_id", projectID), zap.Int("rows", res.TotalRows),
		zap.Int("reports_created", res.ReportsCreated), zap.Int("reports_skipped", res.ReportsSkipped))
	return res, nil
}

func (e Engine) MLResults(ctx context.Context, actor auth.Principal, projectID string, page repo.Page) (Paged[domain.MLResult], error) {
	if err := auth.RequireRole(actor, mlRoles...); err != nil {
		return Paged[domain.MLResult]{}, err
	}
	if _, err := e.reachableProject(ctx, nil, actor, projectID); err != nil {
		return Paged[domain.MLResult]{}, err
	}
	items, total, err := e.Repo.ListMLResults(ctx, projectID, page)
	if err != nil {
		return Paged[domain.MLResult]{}, err
	}
	return paged(items, total, page), nil
}
