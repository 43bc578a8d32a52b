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
	"hamasa/internal/progress"
	"hamasa/internal/repo"
)

// ThematicAreaInput describes a thematic area created inline or through the catalog.
type ThematicAreaInput struct {
	Area                 string
	Title                string
	Description          string
	MonitoringObjectives []string
}

func (in ThematicAreaInput) validate() error {
	return requireAll("area", in.Area, "title", in.Title)
}

func (e Engine) newThematicArea(in ThematicAreaInput, now string) domain.ThematicArea {
	objectives := lo.Filter(lo.Map(in.MonitoringObjectives, func(o string, _ int) string { return strings.TrimSpace(o) }),
		func(o string, _ int) bool { return o != "" })
	return domain.ThematicArea{
		ID:                   newID(),
		Area:                 strings.TrimSpace(in.Area),
		Title:                strings.TrimSpace(in.Title),
		Description:          strings.TrimSpace(in.Description),
		MonitoringObjectives: objectives,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// ProjectCreateOptions are parameters for creating a project. ThematicAreas
// are created alongside the project and linked to it.
type ProjectCreateOptions struct {
	Title           string
	Description     string
	ClientID        string
	CategoryIDs     []string
	ThematicAreas   []ThematicAreaInput
	CollaboratorIDs []string
	MediaSourceIDs  []string
	AvenueIDs       []string
	TimeIDs         []string
	ConsultationIDs []string
}

// defaultTenant picks the client a scoped actor creates data for when none is named.
func defaultTenant(actor auth.Principal) string {
	if actor.UserType == domain.UserTypeClient {
		return actor.ClientID
	}
	if t := actor.Tenants(); len(t) == 1 {
		return t[0]
	}
	return ""
}

func (e Engine) CreateProject(ctx context.Context, actor auth.Principal, opts ProjectCreateOptions) (domain.ProjectDetail, error) {
	if err := auth.RequireRole(actor, projectWriteRoles...); err != nil {
		return domain.ProjectDetail{}, err
	}
	if err := required("title", opts.Title); err != nil {
		return domain.ProjectDetail{}, err
	}
	clientID := strings.TrimSpace(opts.ClientID)
	if clientID == "" {
		clientID = defaultTenant(actor)
	}
	if err := required("client_id", clientID); err != nil {
		return domain.ProjectDetail{}, err
	}
	if err := auth.RequireTenant(actor, clientID); err != nil {
		return domain.ProjectDetail{}, err
	}
	for _, ta := range opts.ThematicAreas {
		if err := ta.validate(); err != nil {
			return domain.ProjectDetail{}, err
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectDetail{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetClientTx(ctx, tx, clientID); err != nil {
		return domain.ProjectDetail{}, err
	}
	now := e.stamp()
	p := domain.Project{
		ID:          newID(),
		Title:       strings.TrimSpace(opts.Title),
		Description: strings.TrimSpace(opts.Description),
		ClientID:    clientID,
		Status:      domain.ProjectDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.ProjectDetail{}, fmt.Errorf("insert project: %w", err)
	}
	areaIDs := make([]string, 0, len(opts.ThematicAreas))
	for _, in := range opts.ThematicAreas {
		ta := e.newThematicArea(in, now)
		ta.OwnerProjectID = p.ID
		if err := e.Repo.InsertThematicArea(ctx, tx, ta); err != nil {
			return domain.ProjectDetail{}, fmt.Errorf("insert thematic area: %w", err)
		}
		areaIDs = append(areaIDs, ta.ID)
	}
	links := repo.ProjectLinks{
		CategoryIDs:     lo.Uniq(opts.CategoryIDs),
		ThematicAreaIDs: areaIDs,
		MediaSourceIDs:  lo.Uniq(opts.MediaSourceIDs),
		AvenueIDs:       lo.Uniq(opts.AvenueIDs),
		TimeIDs:         lo.Uniq(opts.TimeIDs),
		ConsultationIDs: lo.Uniq(opts.ConsultationIDs),
	}
	if err := e.Repo.ReplaceProjectLinks(ctx, tx, p.ID, links, newID, now); err != nil {
		return domain.ProjectDetail{}, err
	}
	if err := e.setCollaborators(ctx, tx, actor, p, opts.CollaboratorIDs); err != nil {
		return domain.ProjectDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectDetail{}, err
	}
	e.log().Info("created project", zap.String("project_id", p.ID), zap.String("client_id", p.ClientID), zap.String("actor_id", actor.ID))
	return e.Repo.LoadProjectDetail(ctx, p)
}

// collaboratorFor loads a client user that may collaborate on p.
func (e Engine) collaboratorFor(ctx context.Context, tx *sql.Tx, actor auth.Principal, p domain.Project, userID string) (domain.ClientUser, error) {
	u, err := e.Repo.GetClientUserTx(ctx, tx, userID)
	if err != nil {
		return domain.ClientUser{}, err
	}
	if actor.Scoped() && u.ClientID != p.ClientID {
		return domain.ClientUser{}, auth.ForbiddenError{Role: actor.Role, Reason: "Collaborator does not belong to your organisation"}
	}
	return u, nil
}

// setCollaborators replaces the collaborator set. Nil leaves it untouched.
func (e Engine) setCollaborators(ctx context.Context, tx *sql.Tx, actor auth.Principal, p domain.Project, ids []string) error {
	if ids == nil {
		return nil
	}
	if err := e.Repo.ClearCollaborators(ctx, tx, p.ID); err != nil {
		return err
	}
	now := e.stamp()
	for _, id := range lo.Uniq(ids) {
		if _, err := e.collaboratorFor(ctx, tx, actor, p, id); err != nil {
			return err
		}
		if err := e.Repo.AddCollaborator(ctx, tx, p.ID, id, now); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) ListProjects(ctx context.Context, actor auth.Principal, f repo.ProjectFilters, page repo.Page) (Paged[domain.Project], error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return Paged[domain.Project]{}, err
	}
	if f.Status != "" {
		if _, err := domain.ParseProjectStatus(f.Status); err != nil {
			return Paged[domain.Project]{}, invalid("status", "%s", err.Error())
		}
	}
	f.ClientIDs = actor.Tenants()
	items, total, err := e.Repo.ListProjects(ctx, f, page)
	if err != nil {
		return Paged[domain.Project]{}, err
	}
	return paged(items, total, page), nil
}

// reachableProject loads a live project and applies the tenant rule to it.
func (e Engine) reachableProject(ctx context.Context, tx *sql.Tx, actor auth.Principal, id string) (domain.Project, error) {
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := auth.RequireTenant(actor, p.ClientID); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, actor auth.Principal, id string) (domain.ProjectDetail, error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return domain.ProjectDetail{}, err
	}
	p, err := e.reachableProject(ctx, nil, actor, id)
	if err != nil {
		return domain.ProjectDetail{}, err
	}
	return e.Repo.LoadProjectDetail(ctx, p)
}

// ProjectUpdateOptions holds a partial update. Nil slices leave links unchanged;
// empty slices clear them.
type ProjectUpdateOptions struct {
	Title           *string
	Description     *string
	CategoryIDs     []string
	ThematicAreaIDs []string
	CollaboratorIDs []string
	MediaSourceIDs  []string
	AvenueIDs       []string
	TimeIDs         []string
	ConsultationIDs []string
}

func uniqOrNil(ids []string) []string {
	if ids == nil {
		return nil
	}
	return lo.Uniq(ids)
}

func (e Engine) UpdateProject(ctx context.Context, actor auth.Principal, id string, opts ProjectUpdateOptions) (domain.ProjectDetail, error) {
	if err := auth.RequireRole(actor, projectWriteRoles...); err != nil {
		return domain.ProjectDetail{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectDetail{}, err
	}
	defer tx.Rollback()
	p, err := e.reachableProject(ctx, tx, actor, id)
	if err != nil {
		return domain.ProjectDetail{}, err
	}
	if opts.Title != nil {
		p.Title = trimmed(opts.Title)
		if err := required("title", p.Title); err != nil {
			return domain.ProjectDetail{}, err
		}
	}
	if opts.Description != nil {
		p.Description = trimmed(opts.Description)
	}
	now := e.stamp()
	p.UpdatedAt = now
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.ProjectDetail{}, err
	}
	links := repo.ProjectLinks{
		CategoryIDs:     uniqOrNil(opts.CategoryIDs),
		ThematicAreaIDs: uniqOrNil(opts.ThematicAreaIDs),
		MediaSourceIDs:  uniqOrNil(opts.MediaSourceIDs),
		AvenueIDs:       uniqOrNil(opts.AvenueIDs),
		TimeIDs:         uniqOrNil(opts.TimeIDs),
		ConsultationIDs: uniqOrNil(opts.ConsultationIDs),
	}
	if err := e.Repo.ReplaceProjectLinks(ctx, tx, p.ID, links, newID, now); err != nil {
		return domain.ProjectDetail{}, err
	}
	if err := e.setCollaborators(ctx, tx, actor, p, opts.CollaboratorIDs); err != nil {
		return domain.ProjectDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectDetail{}, err
	}
	return e.Repo.LoadProjectDetail(ctx, p)
}

// DeleteProject soft-deletes a project with its reports and owned links.
func (e Engine) DeleteProject(ctx context.Context, actor auth.Principal, id string) error {
	if err := auth.RequireRole(actor, projectWriteRoles...); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.reachableProject(ctx, tx, actor, id); err != nil {
		return err
	}
	if err := e.Repo.ArchiveProject(ctx, tx, id, e.stamp()); err != nil {
		return err
	}
	return tx.Commit()
}

// TransitionOptions name the requested status and the log annotation.
type TransitionOptions struct {
	Status  string
	Action  string
	Comment string
}

type ProjectTransition struct {
	Project  domain.Project       `json:"project"`
	Progress domain.ProgressEntry `json:"progress"`
}

func (e Engine) progressWriter() progress.Writer {
	w := e.Progress
	w.Now = e.now
	return w
}

// TransitionProject moves a project along its status machine and appends the
// matching progress row in the same transaction.
func (e Engine) TransitionProject(ctx context.Context, actor auth.Principal, id string, opts TransitionOptions) (ProjectTransition, error) {
	if err := auth.RequireRole(actor, ProjectStatusRoles...); err != nil {
		return ProjectTransition{}, err
	}
	to, err := domain.ParseProjectStatus(strings.TrimSpace(opts.Status))
	if err != nil {
		return ProjectTransition{}, invalid("status", "%s", err.Error())
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ProjectTransition{}, err
	}
	defer tx.Rollback()
	p, err := e.reachableProject(ctx, tx, actor, id)
	if err != nil {
		return ProjectTransition{}, err
	}
	from := p.Status
	if !domain.CanTransitionProject(from, to) {
		e.Metrics.ObserveTransition("project", string(from), string(to), false)
		allowed := lo.Map(domain.AllowedProjectTransitions(from), func(s domain.ProjectStatus, _ int) string { return string(s) })
		return ProjectTransition{}, InvalidTransitionError{Entity: "project", From: string(from), To: string(to), Allowed: allowed}
	}
	now := e.stamp()
	ok, err := e.Repo.UpdateProjectStatus(ctx, tx, p.ID, from, to, now)
	if err != nil {
		return ProjectTransition{}, err
	}
	if !ok {
		return ProjectTransition{}, ErrConcurrentUpdate
	}
	entry, err := e.progressWriter().Append(ctx, tx, domain.ProgressEntry{
		ProjectID:      p.ID,
		OwnerID:        actor.ID,
		OwnerType:      actor.UserType,
		PreviousStatus: string(from),
		CurrentStatus:  string(to),
		Action:         strings.TrimSpace(opts.Action),
		Comment:        strings.TrimSpace(opts.Comment),
	})
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return ProjectTransition{}, ErrConcurrentUpdate
		}
		return ProjectTransition{}, err
	}
	if err := tx.Commit(); err != nil {
		return ProjectTransition{}, err
	}
	e.Metrics.ObserveTransition("project", string(from), string(to), true)
	e.log().Info("project status changed", zap.String("project_id", p.ID), zap.String("from", string(from)), zap.String("to", string(to)), zap.String("actor_id", actor.ID))
	p.Status, p.UpdatedAt = to, now
	return ProjectTransition{Project: p, Progress: entry}, nil
}

func (e Engine) ProjectProgress(ctx context.Context, actor auth.Principal, id string) ([]domain.ProgressEntry, error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return nil, err
	}
	p, err := e.reachableProject(ctx, nil, actor, id)
	if err != nil {
		return nil, err
	}
	return e.Progress.ProjectLog(ctx, p.ID)
}

func (e Engine) AddCollaborator(ctx context.Context, actor auth.Principal, projectID, userID string) (domain.ProjectDetail, error) {
	if err := auth.RequireRole(actor, projectWriteRoles...); err != nil {
		return domain.ProjectDetail{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectDetail{}, err
	}
	defer tx.Rollback()
	p, err := e.reachableProject(ctx, tx, actor, projectID)
	if err != nil {
		return domain.ProjectDetail{}, err
	}
	if _, err := e.collaboratorFor(ctx, tx, actor, p, userID); err != nil {
		return domain.ProjectDetail{}, err
	}
	if err := e.Repo.AddCollaborator(ctx, tx, p.ID, userID, e.stamp()); err != nil {
		return domain.ProjectDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectDetail{}, err
	}
	return e.Repo.LoadProjectDetail(ctx, p)
}

func (e Engine) RemoveCollaborator(ctx context.Context, actor auth.Principal, projectID, userID string) (domain.ProjectDetail, error) {
	if err := auth.RequireRole(actor, projectWriteRoles...); err != nil {
		return domain.ProjectDetail{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectDetail{}, err
	}
	defer tx.Rollback()
	p, err := e.reachableProject(ctx, tx, actor, projectID)
	if err != nil {
		return domain.ProjectDetail{}, err
	}
	if _, err := e.collaboratorFor(ctx, tx, actor, p, userID); err != nil {
		return domain.ProjectDetail{}, err
	}
	if err := e.Repo.RemoveCollaborator(ctx, tx, p.ID, userID); err != nil {
		return domain.ProjectDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectDetail{}, err
	}
	return e.Repo.LoadProjectDetail(ctx, p)
}
