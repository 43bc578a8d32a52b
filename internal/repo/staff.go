package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"hamasa/internal/domain"
)

// Identifier selects the column a principal lookup matches on.
type Identifier int

const (
	ByEmail Identifier = iota
	ByPhone
)

// ClassifyIdentifier treats anything containing "@" as an email.
func ClassifyIdentifier(v string) Identifier {
	if strings.Contains(v, "@") {
		return ByEmail
	}
	return ByPhone
}

const staffColumns = `id,first_name,last_name,phone_number,COALESCE(email,''),COALESCE(gender,''),hashed_password,role,is_active,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStaffUser(row rowScanner) (domain.StaffUser, error) {
	var u domain.StaffUser
	var active int
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.Email, &u.Gender, &u.PasswordHash, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, notFound("user")
	}
	u.IsActive = active == 1
	return u, err
}

func (r Repo) InsertStaffUser(ctx context.Context, tx *sql.Tx, u domain.StaffUser) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO staff_users(id,first_name,last_name,phone_number,email,gender,hashed_password,role,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.FirstName, u.LastName, u.PhoneNumber, nullable(u.Email), nullable(u.Gender), u.PasswordHash, string(u.Role), boolInt(u.IsActive), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetStaffUser(ctx context.Context, id string) (domain.StaffUser, error) {
	return r.GetStaffUserTx(ctx, nil, id)
}

func (r Repo) GetStaffUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.StaffUser, error) {
	return scanStaffUser(r.conn(tx).QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff_users WHERE id=?`, id))
}

// FindStaffUser looks a staff user up by email (case-insensitive) or phone.
func (r Repo) FindStaffUser(ctx context.Context, by Identifier, value string) (domain.StaffUser, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_users WHERE phone_number=?`
	if by == ByEmail {
		query = `SELECT ` + staffColumns + ` FROM staff_users WHERE lower(email)=lower(?)`
	}
	return scanStaffUser(r.DB.QueryRowContext(ctx, query, strings.TrimSpace(value)))
}

func (r Repo) FindStaffUserByRole(ctx context.Context, tx *sql.Tx, role domain.Role) (domain.StaffUser, error) {
	return scanStaffUser(r.conn(tx).QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff_users WHERE role=? ORDER BY created_at LIMIT 1`, string(role)))
}

type StaffFilters struct {
	Role   string
	Search string
}

func (r Repo) ListStaffUsers(ctx context.Context, f StaffFilters, page Page) ([]domain.StaffUser, int, error) {
	where := []string{"1=1"}
	var args []any
	if f.Role != "" {
		where = append(where, "role=?")
		args = append(args, f.Role)
	}
	if f.Search != "" {
		where = append(where, "(lower(first_name) LIKE ? OR lower(last_name) LIKE ? OR lower(COALESCE(email,'')) LIKE ? OR phone_number LIKE ?)")
		like := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, like, like, like, like)
	}
	clause := strings.Join(where, " AND ")
	total, err := count(ctx, r.DB, `SELECT COUNT(*) FROM staff_users WHERE `+clause, args...)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := page.limitOffset()
	rows, err := r.DB.QueryContext(ctx, `SELECT `+staffColumns+` FROM staff_users WHERE `+clause+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.StaffUser
	for rows.Next() {
		u, err := scanStaffUser(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, u)
	}
	return res, total, rows.Err()
}

func (r Repo) UpdateStaffUser(ctx context.Context, tx *sql.Tx, u domain.StaffUser) error {
	res, err := tx.ExecContext(ctx, `UPDATE staff_users SET first_name=?,last_name=?,phone_number=?,email=?,gender=?,role=?,is_active=?,updated_at=? WHERE id=?`,
		u.FirstName, u.LastName, u.PhoneNumber, nullable(u.Email), nullable(u.Gender), string(u.Role), boolInt(u.IsActive), u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "user")
}

func (r Repo) SetStaffPassword(ctx context.Context, tx *sql.Tx, id, hash, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE staff_users SET hashed_password=?,updated_at=? WHERE id=?`, hash, updatedAt, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "user")
}

// PurgeStaffUser physically removes a staff user. Progress rows keep the owner id.
func (r Repo) PurgeStaffUser(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM staff_users WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "user")
}

// CheckStaffUnique fails with ConflictError when phone or email belongs to another staff user.
func (r Repo) CheckStaffUnique(ctx context.Context, tx *sql.Tx, phone, email, excludeID string) error {
	q := r.conn(tx)
	if phone != "" {
		taken, err := exists(ctx, q, `SELECT 1 FROM staff_users WHERE phone_number=? AND id<>? LIMIT 1`, phone, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return ConflictError{Entity: "user", Field: "phone_number"}
		}
	}
	if email != "" {
		taken, err := exists(ctx, q, `SELECT 1 FROM staff_users WHERE lower(email)=lower(?) AND id<>? LIMIT 1`, email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return ConflictError{Entity: "user", Field: "email"}
		}
	}
	return nil
}

func (r Repo) CountStaffUsers(ctx context.Context) (int, error) {
	n, err := count(ctx, r.DB, `SELECT COUNT(*) FROM staff_users`)
	if err != nil {
		return 0, fmt.Errorf("count staff users: %w", err)
	}
	return n, nil
}
