package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"hamasa/internal/domain"
	"hamasa/internal/engine/auth"
	"hamasa/internal/repo"
)

// ReportInput carries report fields. PublicationDate accepts a date or an
// RFC 3339 timestamp.
type ReportInput struct {
	PublicationDate     string
	Title               string
	Content             string
	Source              string
	MediaCategory       string
	MediaFormat         string
	ThematicArea        string
	ThematicDescription string
	Objectives          []any
	Link                string
	ExtraMetadata       map[string]any
}

func (e Engine) CreateReport(ctx context.Context, actor auth.Principal, projectID string, in ReportInput) (domain.Report, error) {
	if err := auth.RequireRole(actor, reportWriteRoles...); err != nil {
		return domain.Report{}, err
	}
	if err := requireAll("title", in.Title, "publication_date", in.PublicationDate); err != nil {
		return domain.Report{}, err
	}
	published, err := normalizeDate("publication_date", in.PublicationDate)
	if err != nil {
		return domain.Report{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Report{}, err
	}
	defer tx.Rollback()
	p, err := e.reachableProject(ctx, tx, actor, projectID)
	if err != nil {
		return domain.Report{}, err
	}
	now := e.stamp()
	rep := domain.Report{
		ID:                  newID(),
		ProjectID:           p.ID,
		PublicationDate:     published,
		Title:               strings.TrimSpace(in.Title),
		Content:             in.Content,
		Source:              strings.TrimSpace(in.Source),
		MediaCategory:       strings.TrimSpace(in.MediaCategory),
		MediaFormat:         strings.TrimSpace(in.MediaFormat),
		ThematicArea:        strings.TrimSpace(in.ThematicArea),
		ThematicDescription: strings.TrimSpace(in.ThematicDescription),
		Objectives:          in.Objectives,
		Link:                strings.TrimSpace(in.Link),
		Status:              domain.ReportUnverified,
		ExtraMetadata:       in.ExtraMetadata,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := e.checkReportLink(ctx, tx, rep); err != nil {
		return domain.Report{}, err
	}
	if err := e.Repo.InsertReport(ctx, tx, rep); err != nil {
		return domain.Report{}, fmt.Errorf("insert report: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Report{}, err
	}
	return e.Repo.GetReport(ctx, rep.ID)
}

func (e Engine) checkReportLink(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	taken, err := e.Repo.ReportLinkExists(ctx, tx, rep.ProjectID, rep.Link, rep.ID)
	if err != nil {
		return err
	}
	if taken {
		return repo.ConflictError{Entity: "report", Field: "link"}
	}
	return nil
}

func (e Engine) ListReports(ctx context.Context, actor auth.Principal, projectID string, f repo.ReportFilters, page repo.Page) (Paged[domain.Report], error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return Paged[domain.Report]{}, err
	}
	if f.Status != "" {
		if _, err := domain.ParseReportStatus(f.Status); err != nil {
			return Paged[domain.Report]{}, invalid("status", "%s", err.Error())
		}
	}
	p, err := e.reachableProject(ctx, nil, actor, projectID)
	if err != nil {
		return Paged[domain.Report]{}, err
	}
	items, total, err := e.Repo.ListReports(ctx, p.ID, f, page)
	if err != nil {
		return Paged[domain.Report]{}, err
	}
	return paged(items, total, page), nil
}

// reachableReport loads a live report and applies the tenant rule through its project.
func (e Engine) reachableReport(ctx context.Context, tx *sql.Tx, actor auth.Principal, id string) (domain.Report, error) {
	rep, err := e.Repo.GetReportTx(ctx, tx, id)
	if err != nil {
		return domain.Report{}, err
	}
	if _, err := e.reachableProject(ctx, tx, actor, rep.ProjectID); err != nil {
		return domain.Report{}, err
	}
	return rep, nil
}

func (e Engine) GetReport(ctx context.Context, actor auth.Principal, id string) (domain.Report, error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return domain.Report{}, err
	}
	return e.reachableReport(ctx, nil, actor, id)
}

// ReportUpdateOptions holds a partial update; status moves only through SetReportStatus.
type ReportUpdateOptions struct {
	PublicationDate     *string
	Title               *string
	Content             *string
	Source              *string
	MediaCategory       *string
	MediaFormat         *string
	ThematicArea        *string
	ThematicDescription *string
	Objectives          []any
	Link                *string
	ExtraMetadata       map[string]any
}

func (e Engine) UpdateReport(ctx context.Context, actor auth.Principal, id string, opts ReportUpdateOptions) (domain.Report, error) {
	if err := auth.RequireRole(actor, reportWriteRoles...); err != nil {
		return domain.Report{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Report{}, err
	}
	defer tx.Rollback()
	rep, err := e.reachableReport(ctx, tx, actor, id)
	if err != nil {
		return domain.Report{}, err
	}
	if opts.PublicationDate != nil {
		if rep.PublicationDate, err = normalizeDate("publication_date", *opts.PublicationDate); err != nil {
			return domain.Report{}, err
		}
	}
	if opts.Title != nil {
		rep.Title = trimmed(opts.Title)
		if err := required("title", rep.Title); err != nil {
			return domain.Report{}, err
		}
	}
	if opts.Content != nil {
		rep.Content = *opts.Content
	}
	for _, f := range []struct {
		src *string
		dst *string
	}{
		{opts.Source, &rep.Source},
		{opts.MediaCategory, &rep.MediaCategory},
		{opts.MediaFormat, &rep.MediaFormat},
		{opts.ThematicArea, &rep.ThematicArea},
		{opts.ThematicDescription, &rep.ThematicDescription},
		{opts.Link, &rep.Link},
	} {
		if f.src != nil {
			*f.dst = trimmed(f.src)
		}
	}
	if opts.Objectives != nil {
		rep.Objectives = opts.Objectives
	}
	if opts.ExtraMetadata != nil {
		rep.ExtraMetadata = opts.ExtraMetadata
	}
	if err := e.checkReportLink(ctx, tx, rep); err != nil {
		return domain.Report{}, err
	}
	rep.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateReport(ctx, tx, rep); err != nil {
		return domain.Report{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Report{}, err
	}
	return rep, nil
}

func (e Engine) DeleteReport(ctx context.Context, actor auth.Principal, id string) error {
	if err := auth.RequireRole(actor, reportDropRoles...); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.reachableReport(ctx, tx, actor, id); err != nil {
		return err
	}
	if err := e.Repo.ArchiveReport(ctx, tx, id, e.stamp()); err != nil {
		return err
	}
	return tx.Commit()
}

type ReportTransition struct {
	Report   domain.Report        `json:"report"`
	Progress domain.ProgressEntry `json:"progress"`
}

// SetReportStatus moves a report along its status machine and logs the move.
func (e Engine) SetReportStatus(ctx context.Context, actor auth.Principal, id string, opts TransitionOptions) (ReportTransition, error) {
	if err := auth.RequireRole(actor, ReportStatusRoles...); err != nil {
		return ReportTransition{}, err
	}
	to, err := domain.ParseReportStatus(strings.TrimSpace(opts.Status))
	if err != nil {
		return ReportTransition{}, invalid("status", "%s", err.Error())
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ReportTransition{}, err
	}
	defer tx.Rollback()
	rep, err := e.reachableReport(ctx, tx, actor, id)
	if err != nil {
		return ReportTransition{}, err
	}
	from := rep.Status
	if !domain.CanTransitionReport(from, to) {
		e.Metrics.ObserveTransition("report", string(from), string(to), false)
		allowed := lo.Map(domain.AllowedReportTransitions(from), func(s domain.ReportStatus, _ int) string { return string(s) })
		return ReportTransition{}, InvalidTransitionError{Entity: "report", From: string(from), To: string(to), Allowed: allowed}
	}
	now := e.stamp()
	ok, err := e.Repo.UpdateReportStatus(ctx, tx, rep.ID, from, to, now)
	if err != nil {
		return ReportTransition{}, err
	}
	if !ok {
		return ReportTransition{}, ErrConcurrentUpdate
	}
	entry, err := e.progressWriter().Append(ctx, tx, domain.ProgressEntry{
		ProjectID:      rep.ProjectID,
		ReportID:       rep.ID,
		OwnerID:        actor.ID,
		OwnerType:      actor.UserType,
		PreviousStatus: string(from),
		CurrentStatus:  string(to),
		Action:         strings.TrimSpace(opts.Action),
		Comment:        strings.TrimSpace(opts.Comment),
	})
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return ReportTransition{}, ErrConcurrentUpdate
		}
		return ReportTransition{}, err
	}
	if err := tx.Commit(); err != nil {
		return ReportTransition{}, err
	}
	e.Metrics.ObserveTransition("report", string(from), string(to), true)
	e.log().Info("report status changed", zap.String("report_id", rep.ID), zap.String("from", string(from)), zap.String("to", string(to)), zap.String("actor_id", actor.ID))
	rep.Status, rep.UpdatedAt = to, now
	return ReportTransition{Report: rep, Progress: entry}, nil
}

func (e Engine) ReportProgress(ctx context.Context, actor auth.Principal, id string) ([]domain.ProgressEntry, error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return nil, err
	}
	rep, err := e.reachableReport(ctx, nil, actor, id)
	if err != nil {
		return nil, err
	}
	return e.Progress.ReportLog(ctx, rep.ID)
}
