package repo

import (
	"context"
	"database/sql"

	"hamasa/internal/domain"
)

func (r Repo) AssignStaffToClient(ctx context.Context, tx *sql.Tx, a domain.StaffClientAssignment) error {
	taken, err := exists(ctx, tx, `SELECT 1 FROM staff_client_assignments WHERE staff_user_id=? AND client_id=? LIMIT 1`, a.StaffUserID, a.ClientID)
	if err != nil {
		return err
	}
	if taken {
		return ConflictError{Entity: "assignment", Field: "staff_user_id and client_id"}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO staff_client_assignments(id,staff_user_id,client_id,created_at) VALUES (?,?,?,?)`,
		a.ID, a.StaffUserID, a.ClientID, a.CreatedAt)
	return err
}

func (r Repo) UnassignStaffFromClient(ctx context.Context, tx *sql.Tx, staffUserID, clientID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM staff_client_assignments WHERE staff_user_id=? AND client_id=?`, staffUserID, clientID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "assignment")
}

// ListStaffClientIDs returns the live clients a staff user is assigned to.
func (r Repo) ListStaffClientIDs(ctx context.Context, staffUserID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT a.client_id FROM staff_client_assignments a
JOIN clients c ON c.id=a.client_id
WHERE a.staff_user_id=? AND c.is_deleted=0
ORDER BY a.created_at, a.client_id`, staffUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) ListAssignments(ctx context.Context, staffUserID string) ([]domain.StaffClientAssignment, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT a.id,a.staff_user_id,a.client_id,a.created_at FROM staff_client_assignments a
JOIN clients c ON c.id=a.client_id
WHERE a.staff_user_id=? AND c.is_deleted=0
ORDER BY a.created_at, a.client_id`, staffUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StaffClientAssignment
	for rows.Next() {
		var a domain.StaffClientAssignment
		if err := rows.Scan(&a.ID, &a.StaffUserID, &a.ClientID, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
