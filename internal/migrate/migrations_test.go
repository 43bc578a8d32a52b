package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamasa/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer conn.Close()

	before, err := Current(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 0, before)

	latest, err := Latest()
	require.NoError(t, err)
	require.Greater(t, latest, 0)

	v, err := Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	v, err = Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	for _, table := range []string{"staff_users", "clients", "client_users", "projects", "project_progress", "project_reports", "report_progress"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestSoftDeletedRowsFreeUniqueIndexes(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer conn.Close()
	_, err = Migrate(ctx, conn)
	require.NoError(t, err)

	insert := `INSERT INTO clients(id,name_of_organisation,country,contact_person,phone_number,email,is_deleted,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`
	_, err = conn.ExecContext(ctx, insert, "c1", "Acme", "TZ", "A B", "255700000001", "ops@acme.test", 0, "t", "t")
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, insert, "c2", "ACME", "TZ", "A B", "255700000002", "other@acme.test", 0, "t", "t")
	require.Error(t, err, "case-insensitive name collision must fail")

	_, err = conn.ExecContext(ctx, `UPDATE clients SET is_deleted=1 WHERE id='c1'`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, insert, "c3", "Acme", "TZ", "A B", "255700000001", "ops@acme.test", 0, "t", "t")
	require.NoError(t, err)
}
