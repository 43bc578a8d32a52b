package repo

import (
	"context"
	"database/sql"
	"strings"

	"hamasa/internal/domain"
)

const clientColumns = `id,name_of_organisation,country,contact_person,phone_number,email,created_at,updated_at`

func scanClient(row rowScanner) (domain.Client, error) {
	var c domain.Client
	err := row.Scan(&c.ID, &c.Name, &c.Country, &c.ContactPerson, &c.PhoneNumber, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, notFound("client")
	}
	return c, err
}

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO clients(id,name_of_organisation,country,contact_person,phone_number,email,is_deleted,created_at,updated_at) VALUES (?,?,?,?,?,?,0,?,?)`,
		c.ID, c.Name, c.Country, c.ContactPerson, c.PhoneNumber, c.Email, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	return r.GetClientTx(ctx, nil, id)
}

func (r Repo) GetClientTx(ctx context.Context, tx *sql.Tx, id string) (domain.Client, error) {
	return scanClient(r.conn(tx).QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=? AND is_deleted=0`, id))
}

type ClientFilters struct {
	Name    string
	Country string
	// IDs restricts results to these clients when non-nil.
	IDs  []string
	Sort string
}

func (r Repo) ListClients(ctx context.Context, f ClientFilters, page Page) ([]domain.Client, int, error) {
	where := []string{"is_deleted=0"}
	var args []any
	if f.Name != "" {
		where = append(where, "lower(name_of_organisation) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Name)+"%")
	}
	if f.Country != "" {
		where = append(where, "lower(country) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Country)+"%")
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return nil, 0, nil
		}
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	clause := strings.Join(where, " AND ")
	total, err := count(ctx, r.DB, `SELECT COUNT(*) FROM clients WHERE `+clause, args...)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := page.limitOffset()
	rows, err := r.DB.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE `+clause+` ORDER BY lower(name_of_organisation) `+sortDirection(f.Sort)+`, id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, c)
	}
	return res, total, rows.Err()
}

func (r Repo) UpdateClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	res, err := tx.ExecContext(ctx, `UPDATE clients SET name_of_organisation=?,country=?,contact_person=?,phone_number=?,email=?,updated_at=? WHERE id=? AND is_deleted=0`,
		c.Name, c.Country, c.ContactPerson, c.PhoneNumber, c.Email, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "client")
}

// ArchiveClient soft-deletes a client together with its users and projects.
func (r Repo) ArchiveClient(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE clients SET is_deleted=1,updated_at=? WHERE id=? AND is_deleted=0`, updatedAt, id)
	if err != nil {
		return err
	}
	if err := affectedOrNotFound(res, "client"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE client_users SET is_deleted=1,updated_at=? WHERE client_id=? AND is_deleted=0`, updatedAt, id); err != nil {
		return err
	}
	return r.archiveProjects(ctx, tx, `client_id=?`, updatedAt, id)
}

// CheckClientUnique fails with ConflictError when name, phone or email belongs to another live client.
func (r Repo) CheckClientUnique(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	q := r.conn(tx)
	checks := []struct {
		field string
		query string
		value string
	}{
		{"name_of_organisation", `SELECT 1 FROM clients WHERE lower(name_of_organisation)=lower(?) AND is_deleted=0 AND id<>? LIMIT 1`, c.Name},
		{"phone_number", `SELECT 1 FROM clients WHERE phone_number=? AND is_deleted=0 AND id<>? LIMIT 1`, c.PhoneNumber},
		{"email", `SELECT 1 FROM clients WHERE lower(email)=lower(?) AND is_deleted=0 AND id<>? LIMIT 1`, c.Email},
	}
	for _, chk := range checks {
		if chk.value == "" {
			continue
		}
		taken, err := exists(ctx, q, chk.query, chk.value, c.ID)
		if err != nil {
			return err
		}
		if taken {
			return ConflictError{Entity: "client", Field: chk.field}
		}
	}
	return nil
}

func (r Repo) CountClients(ctx context.Context) (int, error) {
	return count(ctx, r.DB, `SELECT COUNT(*) FROM clients WHERE is_deleted=0`)
}

const clientUserColumns = `id,client_id,first_name,last_name,phone_number,COALESCE(email,''),hashed_password,role,is_active,created_at,updated_at`

func scanClientUser(row rowScanner) (domain.ClientUser, error) {
	var u domain.ClientUser
	var active int
	err := row.Scan(&u.ID, &u.ClientID, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.Email, &u.PasswordHash, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, notFound("client user")
	}
	u.IsActive = active == 1
	return u, err
}

func (r Repo) InsertClientUser(ctx context.Context, tx *sql.Tx, u domain.ClientUser) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO client_users(id,client_id,first_name,last_name,phone_number,email,hashed_password,role,is_active,is_deleted,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,0,?,?)`,
		u.ID, u.ClientID, u.FirstName, u.LastName, u.PhoneNumber, nullable(u.Email), u.PasswordHash, string(u.Role), boolInt(u.IsActive), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetClientUser(ctx context.Context, id string) (domain.ClientUser, error) {
	return r.GetClientUserTx(ctx, nil, id)
}

func (r Repo) GetClientUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.ClientUser, error) {
	return scanClientUser(r.conn(tx).QueryRowContext(ctx, `SELECT `+clientUserColumns+` FROM client_users WHERE id=? AND is_deleted=0`, id))
}

// FindClientUser looks a live client user up by email (case-insensitive) or phone.
func (r Repo) FindClientUser(ctx context.Context, by Identifier, value string) (domain.ClientUser, error) {
	query := `SELECT ` + clientUserColumns + ` FROM client_users WHERE phone_number=? AND is_deleted=0`
	if by == ByEmail {
		query = `SELECT ` + clientUserColumns + ` FROM client_users WHERE lower(email)=lower(?) AND is_deleted=0`
	}
	return scanClientUser(r.DB.QueryRowContext(ctx, query, strings.TrimSpace(value)))
}

func (r Repo) ListClientUsers(ctx context.Context, clientID string) ([]domain.ClientUser, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+clientUserColumns+` FROM client_users WHERE client_id=? AND is_deleted=0 ORDER BY created_at, id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ClientUser
	for rows.Next() {
		u, err := scanClientUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateClientUser(ctx context.Context, tx *sql.Tx, u domain.ClientUser) error {
	res, err := tx.ExecContext(ctx, `UPDATE client_users SET first_name=?,last_name=?,phone_number=?,email=?,role=?,is_active=?,updated_at=? WHERE id=? AND is_deleted=0`,
		u.FirstName, u.LastName, u.PhoneNumber, nullable(u.Email), string(u.Role), boolInt(u.IsActive), u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "client user")
}

func (r Repo) SetClientUserPassword(ctx context.Context, tx *sql.Tx, id, hash, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE client_users SET hashed_password=?,updated_at=? WHERE id=? AND is_deleted=0`, hash, updatedAt, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "client user")
}

func (r Repo) ArchiveClientUser(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE client_users SET is_deleted=1,updated_at=? WHERE id=? AND is_deleted=0`, updatedAt, id)
	if err != nil {
		return err
	}
	if err := affectedOrNotFound(res, "client user"); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM project_collaborators WHERE client_user_id=?`, id)
	return err
}

// CheckClientUserUnique fails with ConflictError when phone or email belongs to another live client user.
func (r Repo) CheckClientUserUnique(ctx context.Context, tx *sql.Tx, phone, email, excludeID string) error {
	q := r.conn(tx)
	if phone != "" {
		taken, err := exists(ctx, q, `SELECT 1 FROM client_users WHERE phone_number=? AND is_deleted=0 AND id<>? LIMIT 1`, phone, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return ConflictError{Entity: "client user", Field: "phone_number"}
		}
	}
	if email != "" {
		taken, err := exists(ctx, q, `SELECT 1 FROM client_users WHERE lower(email)=lower(?) AND is_deleted=0 AND id<>? LIMIT 1`, email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return ConflictError{Entity: "client user", Field: "email"}
		}
	}
	return nil
}
