package orm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rowmap/rowmap/orm"
)

func keyedSchema(t *testing.T) *orm.Schema {
	t.Helper()
	return orm.NewRegistry().MustDefine("User",
		orm.PrimaryKey("id"),
		orm.Columns("email", "name"),
	)
}

func keylessSchema(t *testing.T) *orm.Schema {
	t.Helper()
	return orm.NewRegistry().MustDefine("User",
		orm.Columns("email", "name"),
	)
}

func TestExpandTokens(t *testing.T) {
	t.Parallel()

	s := keyedSchema(t)

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"table", "%t", "users"},
		{"table alias", "%t.x", "users x"},
		{"columns", "%c", "email,name"},
		{"columns alias", "%c.u", "u.email,u.name"},
		{"assignments", "%c=", "email=?,name=?"},
		{"assignments alias", "%c.u=", "u.email=?,u.name=?"},
		{"placeholders", "%c?", "?,?"},
		{"keyed columns", "%pc", "id,email,name"},
		{"keyed columns alias", "%pc.u", "u.id,u.email,u.name"},
		{"escaped token", `\%c`, "%c"},
		{"escaped among real", `%c \%c`, `email,name %c`},
		{"bare percent", "50% off", "50% off"},
		{"select by key", "SELECT %pc FROM %t WHERE id=?", "SELECT id,email,name FROM users WHERE id=?"},
		{"insert", "INSERT INTO %t (%c) VALUES (%c?)", "INSERT INTO users (email,name) VALUES (?,?)"},
		{"update", "UPDATE %t SET %c= WHERE id=?", "UPDATE users SET email=?,name=? WHERE id=?"},
		{"aliased join", "SELECT %pc.u FROM %t.u", "SELECT u.id,u.email,u.name FROM users u"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, _ := s.Expand(tt.template)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandWithoutPrimaryKey(t *testing.T) {
	t.Parallel()

	s := keylessSchema(t)

	got, _ := s.Expand("SELECT %pc FROM %t")
	assert.Equal(t, "SELECT email,name FROM users", got)
}

func TestExpandPassesArgsThrough(t *testing.T) {
	t.Parallel()

	s := keyedSchema(t)

	query, args := s.Expand("SELECT %pc FROM %t WHERE id=?", 5)
	assert.Equal(t, "SELECT id,email,name FROM users WHERE id=?", query)
	assert.Equal(t, []any{5}, args)
}

func TestExpandUnknownToken(t *testing.T) {
	t.Parallel()

	s := keyedSchema(t)

	// %x is not a token; the percent sign passes through untouched.
	got, _ := s.Expand("100%x")
	assert.Equal(t, "100%x", got)
}
