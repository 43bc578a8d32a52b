package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"hamasa/internal/domain"
)

// CatalogKind names a flat name/description lookup collection.
type CatalogKind string

const (
	ProjectCategories   CatalogKind = "categories"
	MediaCategories     CatalogKind = "media-categories"
	ReportAvenues       CatalogKind = "report-avenues"
	ReportTimes         CatalogKind = "report-times"
	ReportConsultations CatalogKind = "report-consultations"
)

// CatalogKinds lists the flat collections in route order.
var CatalogKinds = []CatalogKind{ProjectCategories, MediaCategories, ReportAvenues, ReportTimes, ReportConsultations}

type catalogTable struct {
	table  string
	entity string
}

var catalogTables = map[CatalogKind]catalogTable{
	ProjectCategories:   {"project_categories", "category"},
	MediaCategories:     {"media_categories", "media category"},
	ReportAvenues:       {"report_avenues", "report avenue"},
	ReportTimes:         {"report_times", "report time"},
	ReportConsultations: {"report_consultations", "report consultation"},
}

func (k CatalogKind) lookup() (catalogTable, error) {
	t, ok := catalogTables[k]
	if !ok {
		return t, fmt.Errorf("unknown catalog %q", string(k))
	}
	return t, nil
}

// Entity is the human name of one item of the collection.
func (k CatalogKind) Entity() string {
	return catalogTables[k].entity
}

func scanCatalogItem(row rowScanner, entity string) (domain.CatalogItem, error) {
	var c domain.CatalogItem
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, notFound(entity)
	}
	return c, err
}

const catalogColumns = `id,name,COALESCE(description,''),created_at,updated_at`

func (r Repo) InsertCatalogItem(ctx context.Context, tx *sql.Tx, kind CatalogKind, c domain.CatalogItem) error {
	t, err := kind.lookup()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO `+t.table+`(id,name,description,is_deleted,created_at,updated_at) VALUES (?,?,?,0,?,?)`,
		c.ID, c.Name, nullable(c.Description), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetCatalogItem(ctx context.Context, kind CatalogKind, id string) (domain.CatalogItem, error) {
	return r.GetCatalogItemTx(ctx, nil, kind, id)
}

func (r Repo) GetCatalogItemTx(ctx context.Context, tx *sql.Tx, kind CatalogKind, id string) (domain.CatalogItem, error) {
	t, err := kind.lookup()
	if err != nil {
		return domain.CatalogItem{}, err
	}
	return scanCatalogItem(r.conn(tx).QueryRowContext(ctx, `SELECT `+catalogColumns+` FROM `+t.table+` WHERE id=? AND is_deleted=0`, id), t.entity)
}

func (r Repo) requireCatalog(ctx context.Context, tx *sql.Tx, kind CatalogKind, id string) error {
	_, err := r.GetCatalogItemTx(ctx, tx, kind, id)
	return err
}

// ListCatalog pages through a collection, matching search against the name.
func (r Repo) ListCatalog(ctx context.Context, kind CatalogKind, search, sort string, page Page) ([]domain.CatalogItem, int, error) {
	t, err := kind.lookup()
	if err != nil {
		return nil, 0, err
	}
	cond := "1=1"
	var args []any
	if search != "" {
		cond = "lower(name) LIKE ?"
		args = append(args, "%"+strings.ToLower(search)+"%")
	}
	total, err := count(ctx, r.DB, `SELECT COUNT(*) FROM `+t.table+` WHERE is_deleted=0 AND `+cond, args...)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := page.limitOffset()
	items, err := r.listCatalogWhere(ctx, kind, cond, `lower(name) `+sortDirection(sort)+`, id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	return items, total, err
}

// listCatalogWhere returns live rows matching cond. An empty order sorts by name.
func (r Repo) listCatalogWhere(ctx context.Context, kind CatalogKind, cond, order string, args ...any) ([]domain.CatalogItem, error) {
	t, err := kind.lookup()
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + catalogColumns + ` FROM ` + t.table + ` WHERE is_deleted=0 AND ` + cond
	if order == "" {
		order = `lower(name), id`
	}
	query += ` ORDER BY ` + order
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.CatalogItem{}
	for rows.Next() {
		c, err := scanCatalogItem(rows, t.entity)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateCatalogItem(ctx context.Context, tx *sql.Tx, kind CatalogKind, c domain.CatalogItem) error {
	t, err := kind.lookup()
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE `+t.table+` SET name=?,description=?,updated_at=? WHERE id=? AND is_deleted=0`,
		c.Name, nullable(c.Description), c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, t.entity)
}

func (r Repo) ArchiveCatalogItem(ctx context.Context, tx *sql.Tx, kind CatalogKind, id, updatedAt string) error {
	t, err := kind.lookup()
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE `+t.table+` SET is_deleted=1,updated_at=? WHERE id=? AND is_deleted=0`, updatedAt, id)
	if err != nil {
		return err
	}
	if err := affectedOrNotFound(res, t.entity); err != nil {
		return err
	}
	if kind == MediaCategories {
		_, err = tx.ExecContext(ctx, `UPDATE media_sources SET is_deleted=1,updated_at=? WHERE category_id=? AND is_deleted=0`, updatedAt, id)
	}
	return err
}

// CheckCatalogName fails with ConflictError when another live item has the same name.
func (r Repo) CheckCatalogName(ctx context.Context, tx *sql.Tx, kind CatalogKind, name, excludeID string) error {
	t, err := kind.lookup()
	if err != nil {
		return err
	}
	taken, err := exists(ctx, r.conn(tx), `SELECT 1 FROM `+t.table+` WHERE lower(name)=lower(?) AND is_deleted=0 AND id<>? LIMIT 1`, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return ConflictError{Entity: t.entity, Field: "name"}
	}
	return nil
}

// FindCatalogItemByName returns the live item with the given name, ignoring case.
func (r Repo) FindCatalogItemByName(ctx context.Context, tx *sql.Tx, kind CatalogKind, name string) (domain.CatalogItem, error) {
	t, err := kind.lookup()
	if err != nil {
		return domain.CatalogItem{}, err
	}
	return scanCatalogItem(r.conn(tx).QueryRowContext(ctx, `SELECT `+catalogColumns+` FROM `+t.table+` WHERE lower(name)=lower(?) AND is_deleted=0`, name), t.entity)
}

const thematicColumns = `id,area,title,COALESCE(description,''),monitoring_objectives,created_at,updated_at`

func scanThematicArea(row rowScanner) (domain.ThematicArea, error) {
	var a domain.ThematicArea
	var objectives string
	err := row.Scan(&a.ID, &a.Area, &a.Title, &a.Description, &objectives, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, notFound("thematic area")
	}
	if err != nil {
		return a, err
	}
	a.MonitoringObjectives = []string{}
	if err := unmarshalJSON(objectives, &a.MonitoringObjectives); err != nil {
		return a, fmt.Errorf("decode monitoring objectives: %w", err)
	}
	return a, nil
}

func (r Repo) InsertThematicArea(ctx context.Context, tx *sql.Tx, a domain.ThematicArea) error {
	objectives, err := marshalJSON(a.MonitoringObjectives, "[]")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO thematic_areas(id,area,title,description,monitoring_objectives,owner_project_id,is_deleted,created_at,updated_at) VALUES (?,?,?,?,?,?,0,?,?)`,
		a.ID, a.Area, a.Title, nullable(a.Description), objectives, nullable(a.OwnerProjectID), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetThematicArea(ctx context.Context, id string) (domain.ThematicArea, error) {
	return r.GetThematicAreaTx(ctx, nil, id)
}

func (r Repo) GetThematicAreaTx(ctx context.Context, tx *sql.Tx, id string) (domain.ThematicArea, error) {
	return scanThematicArea(r.conn(tx).QueryRowContext(ctx, `SELECT `+thematicColumns+` FROM thematic_areas WHERE id=? AND is_deleted=0`, id))
}

func (r Repo) ListThematicAreas(ctx context.Context, search, sort string, page Page) ([]domain.ThematicArea, int, error) {
	cond := "1=1"
	var args []any
	if search != "" {
		cond = "(lower(title) LIKE ? OR lower(area) LIKE ?)"
		like := "%" + strings.ToLower(search) + "%"
		args = append(args, like, like)
	}
	total, err := count(ctx, r.DB, `SELECT COUNT(*) FROM thematic_areas WHERE is_deleted=0 AND `+cond, args...)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := page.limitOffset()
	items, err := r.listThematicAreasWhere(ctx, cond, `lower(title) `+sortDirection(sort)+`, id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	return items, total, err
}

func (r Repo) listThematicAreasWhere(ctx context.Context, cond, order string, args ...any) ([]domain.ThematicArea, error) {
	query := `SELECT ` + thematicColumns + ` FROM thematic_areas WHERE is_deleted=0 AND ` + cond
	if order == "" {
		order = `lower(title), id`
	}
	query += ` ORDER BY ` + order
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ThematicArea{}
	for rows.Next() {
		a, err := scanThematicArea(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateThematicArea(ctx context.Context, tx *sql.Tx, a domain.ThematicArea) error {
	objectives, err := marshalJSON(a.MonitoringObjectives, "[]")
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE thematic_areas SET area=?,title=?,description=?,monitoring_objectives=?,updated_at=? WHERE id=? AND is_deleted=0`,
		a.Area, a.Title, nullable(a.Description), objectives, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "thematic area")
}

func (r Repo) ArchiveThematicArea(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE thematic_areas SET is_deleted=1,updated_at=? WHERE id=? AND is_deleted=0`, updatedAt, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "thematic area")
}

const mediaSourceColumns = `id,name,category_id,created_at,updated_at`

func scanMediaSource(row rowScanner) (domain.MediaSource, error) {
	var m domain.MediaSource
	err := row.Scan(&m.ID, &m.Name, &m.CategoryID, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, notFound("media source")
	}
	return m, err
}

func (r Repo) InsertMediaSource(ctx context.Context, tx *sql.Tx, m domain.MediaSource) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO media_sources(id,name,category_id,is_deleted,created_at,updated_at) VALUES (?,?,?,0,?,?)`,
		m.ID, m.Name, m.CategoryID, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetMediaSource(ctx context.Context, id string) (domain.MediaSource, error) {
	return r.GetMediaSourceTx(ctx, nil, id)
}

func (r Repo) GetMediaSourceTx(ctx context.Context, tx *sql.Tx, id string) (domain.MediaSource, error) {
	return scanMediaSource(r.conn(tx).QueryRowContext(ctx, `SELECT `+mediaSourceColumns+` FROM media_sources WHERE id=? AND is_deleted=0`, id))
}

func (r Repo) ListMediaSources(ctx context.Context, categoryID, search, sort string, page Page) ([]domain.MediaSource, int, error) {
	where := []string{"1=1"}
	var args []any
	if categoryID != "" {
		where = append(where, "category_id=?")
		args = append(args, categoryID)
	}
	if search != "" {
		where = append(where, "lower(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(search)+"%")
	}
	cond := strings.Join(where, " AND ")
	total, err := count(ctx, r.DB, `SELECT COUNT(*) FROM media_sources WHERE is_deleted=0 AND `+cond, args...)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := page.limitOffset()
	items, err := r.listMediaSourcesWhere(ctx, cond, `lower(name) `+sortDirection(sort)+`, id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	return items, total, err
}

func (r Repo) listMediaSourcesWhere(ctx context.Context, cond, order string, args ...any) ([]domain.MediaSource, error) {
	query := `SELECT ` + mediaSourceColumns + ` FROM media_sources WHERE is_deleted=0 AND ` + cond
	if order == "" {
		order = `lower(name), id`
	}
	query += ` ORDER BY ` + order
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.MediaSource{}
	for rows.Next() {
		m, err := scanMediaSource(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMediaSource(ctx context.Context, tx *sql.Tx, m domain.MediaSource) error {
	res, err := tx.ExecContext(ctx, `UPDATE media_sources SET name=?,category_id=?,updated_at=? WHERE id=? AND is_deleted=0`,
		m.Name, m.CategoryID, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "media source")
}

func (r Repo) ArchiveMediaSource(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE media_sources SET is_deleted=1,updated_at=? WHERE id=? AND is_deleted=0`, updatedAt, id)
	if err != nil {
		return err
	}
	if err := affectedOrNotFound(res, "media source"); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE project_media_sources SET is_deleted=1,updated_at=? WHERE media_source_id=? AND is_deleted=0`, updatedAt, id)
	return err
}

// CheckMediaSourceName fails with ConflictError when the category already has a live source with this name.
func (r Repo) CheckMediaSourceName(ctx context.Context, tx *sql.Tx, categoryID, name, excludeID string) error {
	taken, err := exists(ctx, r.conn(tx), `SELECT 1 FROM media_sources WHERE category_id=? AND lower(name)=lower(?) AND is_deleted=0 AND id<>? LIMIT 1`, categoryID, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return ConflictError{Entity: "media source", Field: "name"}
	}
	return nil
}

func (r Repo) CountMediaSources(ctx context.Context) (int, error) {
	return count(ctx, r.DB, `SELECT COUNT(*) FROM media_sources WHERE is_deleted=0`)
}
