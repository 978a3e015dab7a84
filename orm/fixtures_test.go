package orm_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rowmap/rowmap/orm"
)

// testModels builds the registry used across tests: users with posts,
// posts belonging to their author.
func testModels(t *testing.T) (users, posts *orm.Schema) {
	t.Helper()

	reg := orm.NewRegistry()
	users = reg.MustDefine("User",
		orm.PrimaryKey("id"),
		orm.Columns("email", "name"),
		orm.HasMany("posts", "Post", "user_id"),
		orm.HasMany("published", "Post", "user_id", orm.Suffix("AND published=? ORDER BY id")),
		orm.HasMany("orphaned", "Missing", "user_id"),
	)
	posts = reg.MustDefine("Post",
		orm.PrimaryKey("id"),
		orm.Columns("user_id", "title", "published"),
		orm.BelongsTo("author", "User", "user_id"),
	)
	return users, posts
}

// newMockDB wraps a sqlmock connection for the given dialect. Expected
// SQL is matched for string equality, not as a regexp.
func newMockDB(t *testing.T, d orm.Dialect) (*orm.DB, sqlmock.Sqlmock) {
	t.Helper()

	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	db, err := orm.New(sqlx.NewDb(raw, "sqlmock"), d)
	require.NoError(t, err)
	return db, mock
}
