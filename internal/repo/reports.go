package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"hamasa/internal/domain"
)

const reportColumns = `id,project_id,publication_date,title,COALESCE(content,''),COALESCE(source,''),COALESCE(media_category,''),COALESCE(media_format,''),COALESCE(thematic_area,''),COALESCE(thematic_description,''),objectives,COALESCE(link,''),status,extra_metadata,created_at,updated_at`

func scanReport(row rowScanner) (domain.Report, error) {
	var rep domain.Report
	var objectives, extra string
	err := row.Scan(&rep.ID, &rep.ProjectID, &rep.PublicationDate, &rep.Title, &rep.Content, &rep.Source, &rep.MediaCategory,
		&rep.MediaFormat, &rep.ThematicArea, &rep.ThematicDescription, &objectives, &rep.Link, &rep.Status, &extra, &rep.CreatedAt, &rep.UpdatedAt)
	if err == sql.ErrNoRows {
		return rep, notFound("report")
	}
	if err != nil {
		return rep, err
	}
	rep.Objectives = []any{}
	rep.ExtraMetadata = map[string]any{}
	if err := unmarshalJSON(objectives, &rep.Objectives); err != nil {
		return rep, fmt.Errorf("decode objectives: %w", err)
	}
	if err := unmarshalJSON(extra, &rep.ExtraMetadata); err != nil {
		return rep, fmt.Errorf("decode extra metadata: %w", err)
	}
	return rep, nil
}

func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	objectives, err := marshalJSON(rep.Objectives, "[]")
	if err != nil {
		return err
	}
	extra, err := marshalJSON(rep.ExtraMetadata, "{}")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO project_reports(id,project_id,publication_date,title,content,source,media_category,media_format,thematic_area,thematic_description,objectives,link,status,extra_metadata,is_deleted,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,0,?,?)`,
		rep.ID, rep.ProjectID, rep.PublicationDate, rep.Title, nullable(rep.Content), nullable(rep.Source), nullable(rep.MediaCategory),
		nullable(rep.MediaFormat), nullable(rep.ThematicArea), nullable(rep.ThematicDescription), objectives, nullable(rep.Link),
		string(rep.Status), extra, rep.CreatedAt, rep.UpdatedAt)
	return err
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.Report, error) {
	return r.GetReportTx(ctx, nil, id)
}

// GetReportTx reads a live report whose project is also live.
func (r Repo) GetReportTx(ctx context.Context, tx *sql.Tx, id string) (domain.Report, error) {
	return scanReport(r.conn(tx).QueryRowContext(ctx, `SELECT `+reportColumns+` FROM project_reports
WHERE id=? AND is_deleted=0 AND project_id IN (SELECT id FROM projects WHERE is_deleted=0)`, id))
}

type ReportFilters struct {
	Status string
	Search string
}

// ListReports pages through a project's reports, newest publication first.
func (r Repo) ListReports(ctx context.Context, projectID string, f ReportFilters, page Page) ([]domain.Report, int, error) {
	where := []string{"project_id=?", "is_deleted=0"}
	args := []any{projectID}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		where = append(where, "(lower(title) LIKE ? OR lower(COALESCE(source,'')) LIKE ?)")
		like := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, like, like)
	}
	clause := strings.Join(where, " AND ")
	total, err := count(ctx, r.DB, `SELECT COUNT(*) FROM project_reports WHERE `+clause, args...)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := page.limitOffset()
	rows, err := r.DB.QueryContext(ctx, `SELECT `+reportColumns+` FROM project_reports WHERE `+clause+` ORDER BY publication_date DESC, created_at DESC, id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, rep)
	}
	return res, total, rows.Err()
}

func (r Repo) UpdateReport(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	objectives, err := marshalJSON(rep.Objectives, "[]")
	if err != nil {
		return err
	}
	extra, err := marshalJSON(rep.ExtraMetadata, "{}")
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE project_reports SET publication_date=?,title=?,content=?,source=?,media_category=?,media_format=?,thematic_area=?,thematic_description=?,objectives=?,link=?,extra_metadata=?,updated_at=? WHERE id=? AND is_deleted=0`,
		rep.PublicationDate, rep.Title, nullable(rep.Content), nullable(rep.Source), nullable(rep.MediaCategory), nullable(rep.MediaFormat),
		nullable(rep.ThematicArea), nullable(rep.ThematicDescription), objectives, nullable(rep.Link), extra, rep.UpdatedAt, rep.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "report")
}

// UpdateReportStatus is the report counterpart of UpdateProjectStatus.
func (r Repo) UpdateReportStatus(ctx context.Context, tx *sql.Tx, id string, from, to domain.ReportStatus, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE project_reports SET status=?,updated_at=? WHERE id=? AND status=? AND is_deleted=0`,
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

func (r Repo) ArchiveReport(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE project_reports SET is_deleted=1,updated_at=? WHERE id=? AND is_deleted=0`, updatedAt, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "report")
}

// ReportLinkExists reports whether a live report of the project already uses link.
func (r Repo) ReportLinkExists(ctx context.Context, tx *sql.Tx, projectID, link, excludeID string) (bool, error) {
	if link == "" {
		return false, nil
	}
	return exists(ctx, r.conn(tx), `SELECT 1 FROM project_reports WHERE project_id=? AND link=? AND is_deleted=0 AND id<>? LIMIT 1`, projectID, link, excludeID)
}

// ReplaceMLResults drops a project's previous analysis rows and stores rows in order.
func (r Repo) ReplaceMLResults(ctx context.Context, tx *sql.Tx, projectID string, rows []map[string]string, newID func() string, now string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM ml_analysis_results WHERE project_id=?`, projectID); err != nil {
		return err
	}
	for i, row := range rows {
		data, err := marshalJSON(row, "{}")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO ml_analysis_results(id,project_id,row_no,data,created_at) VALUES (?,?,?,?,?)`,
			newID(), projectID, i+1, data, now); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListMLResults(ctx context.Context, projectID string, page Page) ([]domain.MLResult, int, error) {
	total, err := count(ctx, r.DB, `SELECT COUNT(*) FROM ml_analysis_results WHERE project_id=?`, projectID)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := page.limitOffset()
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,row_no,data FROM ml_analysis_results WHERE project_id=? ORDER BY row_no LIMIT ? OFFSET ?`, projectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.MLResult
	for rows.Next() {
		var m domain.MLResult
		var data string
		if err := rows.Scan(&m.ProjectID, &m.RowNumber, &data); err != nil {
			return nil, 0, err
		}
		m.Data = map[string]string{}
		if err := unmarshalJSON(data, &m.Data); err != nil {
			return nil, 0, fmt.Errorf("decode ml row: %w", err)
		}
		res = append(res, m)
	}
	return res, total, rows.Err()
}
