package progress

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamasa/internal/db"
	"hamasa/internal/domain"
	"hamasa/internal/migrate"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "progress.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	stmts := []string{
		`INSERT INTO clients(id,name_of_organisation,country,contact_person,phone_number,email,created_at,updated_at) VALUES ('c1','Acme','TZ','A','255700000001','a@acme.test','t','t')`,
		`INSERT INTO projects(id,title,client_id,created_at,updated_at) VALUES ('p1','Watch','c1','t','t')`,
		`INSERT INTO project_reports(id,project_id,publication_date,title,created_at,updated_at) VALUES ('r1','p1','2024-01-01T00:00:00Z','Story','t','t')`,
	}
	for _, s := range stmts {
		_, err := conn.Exec(s)
		require.NoError(t, err)
	}
	return conn
}

func appendIn(t *testing.T, conn *sql.DB, w Writer, e domain.ProgressEntry) domain.ProgressEntry {
	t.Helper()
	tx, err := conn.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	defer tx.Rollback()
	out, err := w.Append(context.Background(), tx, e)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return out
}

func TestAppendNumbersStagesPerLog(t *testing.T) {
	conn := openTestDB(t)
	w := Writer{DB: conn, Now: func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }}

	first := appendIn(t, conn, w, domain.ProgressEntry{ProjectID: "p1", OwnerID: "u1", OwnerType: domain.UserTypeStaff, PreviousStatus: "draft", CurrentStatus: "submitted"})
	second := appendIn(t, conn, w, domain.ProgressEntry{ProjectID: "p1", OwnerID: "u1", OwnerType: domain.UserTypeStaff, PreviousStatus: "submitted", CurrentStatus: "review", Action: "Review"})
	report := appendIn(t, conn, w, domain.ProgressEntry{ProjectID: "p1", ReportID: "r1", OwnerID: "u2", OwnerType: domain.UserTypeClient, PreviousStatus: "Unverified", CurrentStatus: "Verified"})

	assert.Equal(t, 1, first.StageNo)
	assert.Equal(t, DefaultAction, first.Action)
	assert.Equal(t, 2, second.StageNo)
	assert.Equal(t, 1, report.StageNo, "report log numbers independently")

	log, err := w.ProjectLog(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "submitted", log[1].PreviousStatus)
	assert.Equal(t, "Review", log[1].Action)

	rlog, err := w.ReportLog(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, rlog, 1)
	assert.Equal(t, "r1", rlog[0].ReportID)
	assert.Equal(t, domain.UserTypeClient, rlog[0].OwnerType)
}

func TestRolledBackAppendLeavesNoRow(t *testing.T) {
	conn := openTestDB(t)
	w := Writer{DB: conn}
	tx, err := conn.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	_, err = w.Append(context.Background(), tx, domain.ProgressEntry{ProjectID: "p1", OwnerID: "u1", OwnerType: domain.UserTypeStaff, CurrentStatus: "submitted"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	log, err := w.ProjectLog(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, log)
}
