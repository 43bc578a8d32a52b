package repo

import (
	"context"
	"database/sql"
	"strings"

	"hamasa/internal/domain"
)

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.ClientID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, notFound("project")
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,title,description,client_id,status,is_deleted,created_at,updated_at) VALUES (?,?,?,?,?,0,?,?)`,
		p.ID, p.Title, p.Description, p.ClientID, string(p.Status), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, id)
}

// GetProjectTx reads a live project, joined to a live client.
func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.conn(tx).QueryRowContext(ctx, `
SELECT p.id,p.title,p.description,p.client_id,p.status,p.created_at,p.updated_at
FROM projects p JOIN clients c ON c.id=p.client_id
WHERE p.id=? AND p.is_deleted=0 AND c.is_deleted=0`, id))
}

type ProjectFilters struct {
	Title    string
	ClientID string
	Status   string
	// ClientIDs restricts results to these tenants when non-nil.
	ClientIDs []string
	Sort      string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters, page Page) ([]domain.Project, int, error) {
	where := []string{"p.is_deleted=0", "c.is_deleted=0"}
	var args []any
	if f.Title != "" {
		where = append(where, "lower(p.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Title)+"%")
	}
	if f.ClientID != "" {
		where = append(where, "p.client_id=?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		where = append(where, "p.status=?")
		args = append(args, f.Status)
	}
	if f.ClientIDs != nil {
		if len(f.ClientIDs) == 0 {
			return nil, 0, nil
		}
		where = append(where, "p.client_id IN ("+placeholders(len(f.ClientIDs))+")")
		for _, id := range f.ClientIDs {
			args = append(args, id)
		}
	}
	clause := strings.Join(where, " AND ")
	from := ` FROM projects p JOIN clients c ON c.id=p.client_id WHERE ` + clause
	total, err := count(ctx, r.DB, `SELECT COUNT(*)`+from, args...)
	if err != nil {
		return nil, 0, err
	}
	order := "p.created_at DESC"
	if f.Sort != "" {
		order = "lower(p.title) " + sortDirection(f.Sort)
	}
	limit, offset := page.limitOffset()
	rows, err := r.DB.QueryContext(ctx, `SELECT p.id,p.title,p.description,p.client_id,p.status,p.created_at,p.updated_at`+from+` ORDER BY `+order+`, p.id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, p)
	}
	return res, total, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET title=?,description=?,updated_at=? WHERE id=? AND is_deleted=0`,
		p.Title, p.Description, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "project")
}

// UpdateProjectStatus moves a project from one status to another and reports
// false when the stored status no longer matches from.
func (r Repo) UpdateProjectStatus(ctx context.Context, tx *sql.Tx, id string, from, to domain.ProjectStatus, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET status=?,updated_at=? WHERE id=? AND status=? AND is_deleted=0`,
		string(to), updatedAt, id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) ArchiveProject(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	ok, err := exists(ctx, tx, `SELECT 1 FROM projects WHERE id=? AND is_deleted=0`, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("project")
	}
	return r.archiveProjects(ctx, tx, `id=?`, updatedAt, id)
}

// archiveProjects soft-deletes the projects matching cond along with their
// media source links, owned thematic areas and reports.
func (r Repo) archiveProjects(ctx context.Context, tx *sql.Tx, cond, updatedAt string, args ...any) error {
	sel := `SELECT id FROM projects WHERE is_deleted=0 AND ` + cond
	stmts := []string{
		`UPDATE project_media_sources SET is_deleted=1,updated_at=? WHERE is_deleted=0 AND project_id IN (` + sel + `)`,
		`UPDATE thematic_areas SET is_deleted=1,updated_at=? WHERE is_deleted=0 AND owner_project_id IN (` + sel + `)`,
		`UPDATE project_reports SET is_deleted=1,updated_at=? WHERE is_deleted=0 AND project_id IN (` + sel + `)`,
		`UPDATE projects SET is_deleted=1,updated_at=? WHERE is_deleted=0 AND ` + cond,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, append([]any{updatedAt}, args...)...); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) CountProjects(ctx context.Context, status domain.ProjectStatus) (int, error) {
	if status == "" {
		return count(ctx, r.DB, `SELECT COUNT(*) FROM projects WHERE is_deleted=0`)
	}
	return count(ctx, r.DB, `SELECT COUNT(*) FROM projects WHERE is_deleted=0 AND status=?`, string(status))
}

// ProjectLinks holds the catalog ids a project references.
type ProjectLinks struct {
	CategoryIDs     []string
	ThematicAreaIDs []string
	MediaSourceIDs  []string
	AvenueIDs       []string
	TimeIDs         []string
	ConsultationIDs []string
}

type junction struct {
	table  string
	column string
	kind   CatalogKind
}

var projectJunctions = []junction{
	{"project_category", "category_id", ProjectCategories},
	{"project_report_avenues", "report_avenue_id", ReportAvenues},
	{"project_report_times", "report_time_id", ReportTimes},
	{"project_report_consultations", "report_consultation_id", ReportConsultations},
}

func (l ProjectLinks) idsFor(kind CatalogKind) []string {
	switch kind {
	case ProjectCategories:
		return l.CategoryIDs
	case ReportAvenues:
		return l.AvenueIDs
	case ReportTimes:
		return l.TimeIDs
	case ReportConsultations:
		return l.ConsultationIDs
	}
	return nil
}

// ReplaceProjectLinks rewrites every junction of a project. Nil slices leave
// the matching junction untouched.
func (r Repo) ReplaceProjectLinks(ctx context.Context, tx *sql.Tx, projectID string, l ProjectLinks, newID func() string, now string) error {
	for _, j := range projectJunctions {
		ids := l.idsFor(j.kind)
		if ids == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+j.table+` WHERE project_id=?`, projectID); err != nil {
			return err
		}
		for _, id := range ids {
			if err := r.requireCatalog(ctx, tx, j.kind, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO `+j.table+`(project_id,`+j.column+`) VALUES (?,?)`, projectID, id); err != nil {
				return err
			}
		}
	}
	if l.ThematicAreaIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM project_thematic_area WHERE project_id=?`, projectID); err != nil {
			return err
		}
		for _, id := range l.ThematicAreaIDs {
			if _, err := r.GetThematicAreaTx(ctx, tx, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_thematic_area(project_id,thematic_area_id) VALUES (?,?)`, projectID, id); err != nil {
				return err
			}
		}
	}
	if l.MediaSourceIDs != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE project_media_sources SET is_deleted=1,updated_at=? WHERE project_id=? AND is_deleted=0`, now, projectID); err != nil {
			return err
		}
		for _, id := range l.MediaSourceIDs {
			if _, err := r.GetMediaSourceTx(ctx, tx, id); err != nil {
				return err
			}
			linked, err := exists(ctx, tx, `SELECT 1 FROM project_media_sources WHERE project_id=? AND media_source_id=? AND is_deleted=0`, projectID, id)
			if err != nil {
				return err
			}
			if linked {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO project_media_sources(id,project_id,media_source_id,is_deleted,created_at,updated_at) VALUES (?,?,?,0,?,?)`,
				newID(), projectID, id, now, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadProjectDetail expands a project with its live links.
func (r Repo) LoadProjectDetail(ctx context.Context, p domain.Project) (domain.ProjectDetail, error) {
	d := domain.ProjectDetail{Project: p}
	var err error
	for _, j := range projectJunctions {
		items, lerr := r.listCatalogWhere(ctx, j.kind, `id IN (SELECT `+j.column+` FROM `+j.table+` WHERE project_id=?)`, "", p.ID)
		if lerr != nil {
			return d, lerr
		}
		switch j.kind {
		case ProjectCategories:
			d.Categories = items
		case ReportAvenues:
			d.ReportAvenues = items
		case ReportTimes:
			d.ReportTimes = items
		case ReportConsultations:
			d.ReportConsultations = items
		}
	}
	if d.ThematicAreas, err = r.listThematicAreasWhere(ctx, `id IN (SELECT thematic_area_id FROM project_thematic_area WHERE project_id=?)`, "", p.ID); err != nil {
		return d, err
	}
	if d.MediaSources, err = r.listMediaSourcesWhere(ctx, `id IN (SELECT media_source_id FROM project_media_sources WHERE project_id=? AND is_deleted=0)`, "", p.ID); err != nil {
		return d, err
	}
	if d.Collaborators, err = r.ListCollaborators(ctx, p.ID); err != nil {
		return d, err
	}
	return d, nil
}

func (r Repo) AddCollaborator(ctx context.Context, tx *sql.Tx, projectID, clientUserID, createdAt string) error {
	linked, err := exists(ctx, tx, `SELECT 1 FROM project_collaborators WHERE project_id=? AND client_user_id=?`, projectID, clientUserID)
	if err != nil {
		return err
	}
	if linked {
		return ConflictError{Entity: "collaborator", Field: "client_user_id"}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO project_collaborators(project_id,client_user_id,created_at) VALUES (?,?,?)`, projectID, clientUserID, createdAt)
	return err
}

func (r Repo) RemoveCollaborator(ctx context.Context, tx *sql.Tx, projectID, clientUserID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_collaborators WHERE project_id=? AND client_user_id=?`, projectID, clientUserID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "collaborator")
}

func (r Repo) ListCollaborators(ctx context.Context, projectID string) ([]domain.ClientUser, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT u.id,u.client_id,u.first_name,u.last_name,u.phone_number,COALESCE(u.email,''),u.hashed_password,u.role,u.is_active,u.created_at,u.updated_at
FROM project_collaborators pc JOIN client_users u ON u.id=pc.client_user_id
WHERE pc.project_id=? AND u.is_deleted=0
ORDER BY pc.created_at, u.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ClientUser{}
	for rows.Next() {
		u, err := scanClientUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// ClearCollaborators drops every collaborator link of a project.
func (r Repo) ClearCollaborators(ctx context.Context, tx *sql.Tx, projectID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM project_collaborators WHERE project_id=?`, projectID)
	return err
}
