package driver

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlguard/internal/db"
)

func newTestDriver(t *testing.T) *SQLDriver {
	t.Helper()
	writeDB, _ := db.OpenTest(t)

	_, err := writeDB.Exec(`CREATE TABLE fixtures (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = writeDB.Exec(`INSERT INTO fixtures (id, name) VALUES (1, 'a'), (2, 'b')`)
	require.NoError(t, err)

	return NewSQLDriver(writeDB, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSQLDriver_Select(t *testing.T) {
	d := newTestDriver(t)

	rs, err := d.Execute(context.Background(), "SELECT id, name FROM fixtures", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	require.Equal(t, 2, rs.RowCount())
	assert.Equal(t, "a", rs.Rows[0][1], "TEXT values come back as strings")
}

func TestSQLDriver_SelectWithArgs(t *testing.T) {
	d := newTestDriver(t)

	rs, err := d.Execute(context.Background(),
		"SELECT name FROM fixtures WHERE id = ?", []interface{}{int64(2)})
	require.NoError(t, err)
	require.Equal(t, 1, rs.RowCount())
	assert.Equal(t, "b", rs.Rows[0][0])
}

func TestSQLDriver_WriteReturnsRowsAffected(t *testing.T) {
	d := newTestDriver(t)

	rs, err := d.Execute(context.Background(),
		"UPDATE fixtures SET name = 'z' WHERE id = 1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"rows_affected"}, rs.Columns)
	require.Equal(t, 1, rs.RowCount())
	assert.Equal(t, int64(1), rs.Rows[0][0])
}

func TestSQLDriver_ContextTimeoutCancels(t *testing.T) {
	d := newTestDriver(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	// Give the deadline a moment to pass before the call.
	time.Sleep(time.Millisecond)

	_, err := d.Execute(ctx, "SELECT id FROM fixtures", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSQLDriver_MalformedStatementRejected(t *testing.T) {
	d := newTestDriver(t)

	_, err := d.Execute(context.Background(), "SELECT (", nil)
	require.Error(t, err)
}
