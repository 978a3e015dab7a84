package orm_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowmap/rowmap/orm"
)

func setupZerolog() (*orm.ZerologLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return orm.NewZerologLogger(zerolog.New(&buf)), &buf
}

func TestZerologLoggerLogsQuery(t *testing.T) {
	t.Parallel()

	l, buf := setupZerolog()
	l.LogQuery(t.Context(), "SELECT 1", []any{42}, time.Millisecond, nil)

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"sql":"SELECT 1"`)
	assert.Contains(t, out, `"args":[42]`)
}

func TestZerologLoggerLogsErrorLevel(t *testing.T) {
	t.Parallel()

	l, buf := setupZerolog()
	l.LogQuery(t.Context(), "SELECT 1", nil, time.Millisecond, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestZerologLoggerWarnsOnSlowQuery(t *testing.T) {
	t.Parallel()

	l, buf := setupZerolog()
	l.SlowThreshold = 10 * time.Millisecond
	l.LogQuery(t.Context(), "SELECT 1", nil, 50*time.Millisecond, nil)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"slow_threshold"`)
}

func TestDebugLogsThroughQuerier(t *testing.T) {
	t.Parallel()

	users, _ := testModels(t)
	db, mock := newMockDB(t, orm.MySQL)

	mock.ExpectQuery("SELECT id,email,name FROM users WHERE id=?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(1, "alice@example.com", "Alice"))

	l, buf := setupZerolog()
	_, err := users.Find(t.Context(), db.Debug(l), 1)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"sql":"SELECT id,email,name FROM users WHERE id=?"`)
}

func TestDebugDoesNotModifyOriginal(t *testing.T) {
	t.Parallel()

	users, _ := testModels(t)
	db, mock := newMockDB(t, orm.MySQL)

	mock.ExpectQuery("SELECT id,email,name FROM users WHERE id=?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(1, "alice@example.com", "Alice"))

	l, buf := setupZerolog()
	_ = db.Debug(l) // derived handle unused

	_, err := users.Find(t.Context(), db, 1)
	require.NoError(t, err)
	assert.Empty(t, buf.String(), "original handle stays silent")
}
