package orm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Record is one row of a mapped model: a dynamically typed column→value
// map plus persistence state. Records are built in memory via Schema.New
// or hydrated from query results; deleting a record from the database
// only flips its storage flag, the in-memory value stays usable.
//
// A Record is not safe for concurrent use. The relation cache is owned
// exclusively by its record; two overlapping loads for the same cache
// key are last-write-wins.
type Record struct {
	schema    *Schema
	fields    map[string]any
	inStorage bool
	relCache  map[string][]*Record
	fresh     bool
}

// New builds an in-memory record for this schema. It is not persisted
// and not marked in storage until Insert (or Save) succeeds.
func (s *Schema) New(fields map[string]any) *Record {
	r := &Record{schema: s, fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		r.fields[k] = v
	}
	return r
}

// hydrate builds a record from a result row, marked in storage.
func (s *Schema) hydrate(row map[string]any) *Record {
	r := s.New(row)
	r.inStorage = true
	return r
}

// Schema returns the record's schema descriptor.
func (r *Record) Schema() *Schema { return r.schema }

// Get returns the value of a field and whether it is set.
func (r *Record) Get(column string) (any, bool) {
	v, ok := r.fields[column]
	return v, ok
}

// Set stores a field value and returns the record for chaining. Fields
// are an open map: only declared columns are persisted, but query results
// may carry extra computed columns.
func (r *Record) Set(column string, value any) *Record {
	r.fields[column] = value
	return r
}

// Fields returns a copy of the record's field map.
func (r *Record) Fields() map[string]any {
	m := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		m[k] = v
	}
	return m
}

// InStorage reports whether a database row is known to exist for this
// record: true after a successful insert or load, false after a
// successful delete.
func (r *Record) InStorage() bool { return r.inStorage }

// Key returns the value of the record's key column.
func (r *Record) Key() (any, error) {
	v, ok := r.fields[r.schema.KeyColumn()]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoKeyValue, r.schema.model, r.schema.KeyColumn())
	}
	return v, nil
}

// Refresh marks the record so that its next relation access bypasses and
// repopulates the cache. The marker is consumed by that one access.
func (r *Record) Refresh() *Record {
	r.fresh = true
	return r
}

// Find loads the row whose key column equals key and returns it as a new
// record. Returns ErrNotFound when no row matches.
func (s *Schema) Find(ctx context.Context, db Querier, key any) (*Record, error) {
	row, err := s.findRow(ctx, db, key)
	if err != nil {
		return nil, err
	}
	return s.hydrate(row), nil
}

// Load re-reads this record's row by its current key value, overwriting
// all fields. On ErrNotFound the record is left unchanged.
func (r *Record) Load(ctx context.Context, db Querier) error {
	key, err := r.Key()
	if err != nil {
		return err
	}
	row, err := r.schema.findRow(ctx, db, key)
	if err != nil {
		return err
	}
	r.fields = row
	r.inStorage = true
	return nil
}

func (s *Schema) findRow(ctx context.Context, db Querier, key any) (map[string]any, error) {
	query, args := s.Expand("SELECT %pc FROM %t WHERE "+s.KeyColumn()+"=?", key)
	query = rewritePlaceholders(db.dialect(), query)

	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		return nil, ErrNotFound
	}
	row := make(map[string]any)
	if err := rows.MapScan(row); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return row, rows.Err() //nolint:wrapcheck // pass through
}

// Insert writes the record as a new row. When the schema declares a
// primary key the driver-generated value is copied back into the record,
// via RETURNING on dialects that support it and LastInsertId otherwise.
// On success the record is marked in storage.
func (r *Record) Insert(ctx context.Context, db Querier) error {
	s := r.schema
	r.touchTimestamps(ctx, true)

	query, args := s.Expand("INSERT INTO %t (%c) VALUES (%c?)", r.columnValues()...)
	d := db.dialect()

	if s.pk != "" && d.UseReturning() {
		query += d.ReturningClause(s.pk)
		query = rewritePlaceholders(d, query)

		rows, err := db.QueryxContext(ctx, query, args...)
		if err != nil {
			return err //nolint:wrapcheck // pass through
		}
		defer func() { _ = rows.Close() }()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err //nolint:wrapcheck // pass through
			}
			return errors.New("orm: INSERT RETURNING returned no rows")
		}
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		if err := rows.Err(); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		r.fields[s.pk] = id
		r.inStorage = true
		return nil
	}

	query = rewritePlaceholders(d, query)
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}
	if s.pk != "" {
		id, err := res.LastInsertId()
		if err != nil {
			return err //nolint:wrapcheck // pass through
		}
		r.fields[s.pk] = id
	}
	r.inStorage = true
	return nil
}

// Update rewrites all declared columns of the row targeted by the
// record's key value. The storage flag is unchanged.
func (r *Record) Update(ctx context.Context, db Querier) error {
	s := r.schema
	key, err := r.Key()
	if err != nil {
		return err
	}
	r.touchTimestamps(ctx, false)

	query, args := s.Expand(
		"UPDATE %t SET %c= WHERE "+s.KeyColumn()+"=?",
		append(r.columnValues(), key)...,
	)
	query = rewritePlaceholders(db.dialect(), query)

	_, err = db.ExecContext(ctx, query, args...)
	return err //nolint:wrapcheck // pass through
}

// Delete removes the row targeted by the record's key value. On success
// the record is marked out of storage; a failed delete leaves the flag
// unchanged. The in-memory record stays usable either way.
func (r *Record) Delete(ctx context.Context, db Querier) error {
	s := r.schema
	key, err := r.Key()
	if err != nil {
		return err
	}

	query, args := s.Expand("DELETE FROM %t WHERE "+s.KeyColumn()+"=?", key)
	query = rewritePlaceholders(db.dialect(), query)

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return err //nolint:wrapcheck // pass through
	}
	r.inStorage = false
	return nil
}

// Save inserts the record when it is not in storage, updates it otherwise.
func (r *Record) Save(ctx context.Context, db Querier) error {
	if r.inStorage {
		return r.Update(ctx, db)
	}
	return r.Insert(ctx, db)
}

// Upsert inserts the row or updates it on primary key conflict. All
// declared columns are written on conflict. The schema must declare a
// primary key and the record must carry its value.
func (r *Record) Upsert(ctx context.Context, db Querier) error {
	s := r.schema
	if s.pk == "" {
		return fmt.Errorf("%w: model %q has no primary key", ErrNoKeyValue, s.model)
	}
	key, err := r.Key()
	if err != nil {
		return err
	}
	r.touchTimestamps(ctx, !r.inStorage)

	d := db.dialect()
	qi := d.QuoteIdent

	cols := append([]string{s.pk}, s.columns...)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = qi(c)
		placeholders[i] = "?"
	}
	args := append([]any{key}, r.columnValues()...)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		qi(s.table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	sets := make([]string, len(s.columns))
	if _, ok := d.(mysqlDialect); ok {
		for i, c := range s.columns {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", qi(c), qi(c))
		}
		fmt.Fprintf(&b, " ON DUPLICATE KEY UPDATE %s", strings.Join(sets, ", "))
	} else {
		for i, c := range s.columns {
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", qi(c), qi(c))
		}
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", qi(s.pk), strings.Join(sets, ", "))
	}

	query := rewritePlaceholders(d, b.String())
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return err //nolint:wrapcheck // pass through
	}
	r.inStorage = true
	return nil
}

// columnValues returns the declared column values in declaration order,
// nil for unset fields.
func (r *Record) columnValues() []any {
	args := make([]any, len(r.schema.columns))
	for i, c := range r.schema.columns {
		args[i] = r.fields[c]
	}
	return args
}

// touchTimestamps maintains declared timestamp columns. Insert sets the
// created column when unset and always refreshes the updated column;
// update only refreshes the updated column.
func (r *Record) touchTimestamps(ctx context.Context, insert bool) {
	s := r.schema
	if s.createdCol == "" && s.updatedCol == "" {
		return
	}
	t := now(ctx)
	if insert && s.createdCol != "" {
		if v, ok := r.fields[s.createdCol]; !ok || v == nil {
			r.fields[s.createdCol] = t
		}
	}
	if s.updatedCol != "" {
		r.fields[s.updatedCol] = t
	}
}
