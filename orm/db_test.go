package orm_test

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowmap/rowmap/orm"
)

func TestNewRequiresHandle(t *testing.T) {
	t.Parallel()

	_, err := orm.New(nil, orm.MySQL)
	assert.ErrorIs(t, err, orm.ErrMissingDB)
}

func TestTransactionCommits(t *testing.T) {
	t.Parallel()

	users, _ := testModels(t)
	db, mock := newMockDB(t, orm.MySQL)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users (email,name) VALUES (?,?)").
		WithArgs("alice@example.com", "Alice").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := db.Transaction(t.Context(), func(tx *orm.Tx) error {
		rec := users.New(map[string]any{"email": "alice@example.com", "name": "Alice"})
		return rec.Insert(t.Context(), tx)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t, orm.MySQL)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := db.Transaction(t.Context(), func(_ *orm.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t, orm.MySQL)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = db.Transaction(t.Context(), func(_ *orm.Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
