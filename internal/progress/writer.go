package progress

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hamasa/internal/domain"
)

// DefaultAction is recorded when a transition carries no action.
const DefaultAction = "Status Update"

// Writer appends rows to the project and report progress logs. Rows are never
// updated or deleted.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append records e inside tx. A non-empty ReportID targets the report log;
// the stage number is the next one in that log.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e domain.ProgressEntry) (domain.ProgressEntry, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Action == "" {
		e.Action = DefaultAction
	}
	e.CreatedAt = w.Now().UTC().Format(time.RFC3339)

	table, key, keyVal := "project_progress", "project_id", e.ProjectID
	if e.ReportID != "" {
		table, key, keyVal = "report_progress", "report_id", e.ReportID
	}
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(stage_no),0)+1 FROM `+table+` WHERE `+key+`=?`, keyVal).Scan(&e.StageNo); err != nil {
		return e, fmt.Errorf("next stage: %w", err)
	}

	var err error
	if e.ReportID != "" {
		_, err = tx.ExecContext(ctx, `INSERT INTO report_progress(id,report_id,project_id,stage_no,owner_id,owner_type,previous_status,current_status,action,comment,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			e.ID, e.ReportID, e.ProjectID, e.StageNo, e.OwnerID, string(e.OwnerType), nullable(e.PreviousStatus), e.CurrentStatus, e.Action, nullable(e.Comment), e.CreatedAt)
	} else {
		_, err = tx.ExecContext(ctx, `INSERT INTO project_progress(id,project_id,stage_no,owner_id,owner_type,previous_status,current_status,action,comment,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			e.ID, e.ProjectID, e.StageNo, e.OwnerID, string(e.OwnerType), nullable(e.PreviousStatus), e.CurrentStatus, e.Action, nullable(e.Comment), e.CreatedAt)
	}
	if err != nil {
		return e, fmt.Errorf("append progress: %w", err)
	}
	return e, nil
}

// ProjectLog returns a project's log ordered by stage.
func (w Writer) ProjectLog(ctx context.Context, projectID string) ([]domain.ProgressEntry, error) {
	return w.list(ctx, `SELECT id,project_id,'',stage_no,owner_id,owner_type,COALESCE(previous_status,''),current_status,COALESCE(action,''),COALESCE(comment,''),created_at
FROM project_progress WHERE project_id=? ORDER BY stage_no`, projectID)
}

// ReportLog returns a report's log ordered by stage.
func (w Writer) ReportLog(ctx context.Context, reportID string) ([]domain.ProgressEntry, error) {
	return w.list(ctx, `SELECT id,project_id,report_id,stage_no,owner_id,owner_type,COALESCE(previous_status,''),current_status,COALESCE(action,''),COALESCE(comment,''),created_at
FROM report_progress WHERE report_id=? ORDER BY stage_no`, reportID)
}

func (w Writer) list(ctx context.Context, query, id string) ([]domain.ProgressEntry, error) {
	rows, err := w.DB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.ProgressEntry{}
	for rows.Next() {
		var e domain.ProgressEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ReportID, &e.StageNo, &e.OwnerID, &e.OwnerType, &e.PreviousStatus, &e.CurrentStatus, &e.Action, &e.Comment, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
