package orm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rowmap/rowmap/scope"
)

// Query represents a pending query against a single model's table.
// All builder methods return a new Query; the receiver is never modified.
type Query struct {
	db     Querier
	schema *Schema

	wheres   []whereClause
	orderBys []string
	joins    []string
	selects  *string
	limit    *int
	offset   *int
	preloads []string
}

type whereClause struct {
	clause string
	args   []any
}

// NewQuery builds a query for the given schema.
func NewQuery(db Querier, s *Schema) *Query {
	return &Query{db: db, schema: s}
}

// Query is shorthand for NewQuery against this schema.
func (s *Schema) Query(db Querier) *Query {
	return NewQuery(db, s)
}

// clone returns a shallow copy with slices copied to avoid aliasing.
func (q *Query) clone() *Query {
	q2 := *q
	q2.wheres = append([]whereClause(nil), q.wheres...)
	q2.orderBys = append([]string(nil), q.orderBys...)
	q2.joins = append([]string(nil), q.joins...)
	q2.preloads = append([]string(nil), q.preloads...)
	return &q2
}

// --- Builder methods ---

func (q *Query) Where(clause string, args ...any) *Query {
	q2 := q.clone()
	q2.wheres = append(q2.wheres, whereClause{clause, args})
	return q2
}

func (q *Query) OrderBy(clause string) *Query {
	q2 := q.clone()
	q2.orderBys = append(q2.orderBys, clause)
	return q2
}

func (q *Query) Limit(n int) *Query {
	q2 := q.clone()
	q2.limit = &n
	return q2
}

func (q *Query) Offset(n int) *Query {
	q2 := q.clone()
	q2.offset = &n
	return q2
}

func (q *Query) Select(columns string) *Query {
	q2 := q.clone()
	q2.selects = &columns
	return q2
}

// Join adds an INNER JOIN for the named relation. Unknown relation names
// are ignored.
func (q *Query) Join(name string) *Query {
	return q.addJoin("INNER JOIN", name)
}

// LeftJoin adds a LEFT JOIN for the named relation.
func (q *Query) LeftJoin(name string) *Query {
	return q.addJoin("LEFT JOIN", name)
}

func (q *Query) addJoin(joinType, name string) *Query {
	rel, ok := q.schema.relations[name]
	if !ok {
		return q
	}
	target, err := q.schema.registry.Schema(rel.target)
	if err != nil {
		return q
	}

	var targetCol, sourceCol string
	switch rel.kind {
	case relHasMany:
		targetCol, sourceCol = rel.foreignKey, q.schema.KeyColumn()
	case relBelongsTo:
		targetCol, sourceCol = target.KeyColumn(), rel.foreignKey
	}

	clause := fmt.Sprintf(
		"%s %s ON %s.%s = %s.%s",
		joinType,
		q.qi(target.table),
		q.qi(target.table), q.qi(targetCol),
		q.qi(q.schema.table), q.qi(sourceCol),
	)
	q2 := q.clone()
	q2.joins = append(q2.joins, clause)
	return q2
}

// Preload registers a has-many relation to be eagerly loaded after the
// main query, planting the results in each record's relation cache.
func (q *Query) Preload(name string) *Query {
	q2 := q.clone()
	q2.preloads = append(q2.preloads, name)
	return q2
}

// Scopes applies the given scope.Scope values to the query.
func (q *Query) Scopes(scopes ...scope.Scope) *Query {
	q2 := q.clone()
	for _, s := range scopes {
		s.Apply(q2)
	}
	return q2
}

// --- scope.Applier implementation ---

func (q *Query) ApplyWhere(clause string, args []any) {
	q.wheres = append(q.wheres, whereClause{clause, args})
}

func (q *Query) ApplyOrderBy(clause string) {
	q.orderBys = append(q.orderBys, clause)
}

func (q *Query) ApplyLimit(n int)  { q.limit = &n }
func (q *Query) ApplyOffset(n int) { q.offset = &n }

func (q *Query) ApplySelect(columns string) {
	q.selects = &columns
}

var _ scope.Applier = (*Query)(nil)

// --- Terminal methods ---

// All executes a SELECT and returns all matching records, hydrated and
// marked in storage, in driver order.
func (q *Query) All(ctx context.Context) ([]*Record, error) {
	query, args := q.buildSelect()
	query = rewritePlaceholders(q.db.dialect(), query)

	rows, err := q.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		records = append(records, q.schema.hydrate(row))
	}
	if err := rows.Err(); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}

	for _, name := range q.preloads {
		if err := q.preload(ctx, name, records); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// First executes a SELECT with LIMIT 1 and returns the first record.
// Returns ErrNotFound if no rows match.
func (q *Query) First(ctx context.Context) (*Record, error) {
	records, err := q.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Count returns the number of rows matching the current query conditions.
func (q *Query) Count(ctx context.Context) (int64, error) {
	query, args := q.buildCount()
	query = rewritePlaceholders(q.db.dialect(), query)

	rows, err := q.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return 0, errors.New("orm: COUNT returned no rows")
	}
	var count int64
	if err := rows.Scan(&count); err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return count, rows.Err() //nolint:wrapcheck // pass through
}

// Exists returns true if at least one row matches the current query
// conditions.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	count, err := q.Limit(1).Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete deletes rows matching the accumulated WHERE clauses.
// Returns an error if no WHERE clauses are set (safety guard).
func (q *Query) Delete(ctx context.Context) error {
	if len(q.wheres) == 0 {
		return errors.New("orm: Delete without WHERE clause is not allowed")
	}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(q.qi(q.schema.table))
	args := q.appendWhere(&b)

	query := rewritePlaceholders(q.db.dialect(), b.String())
	_, err := q.db.ExecContext(ctx, query, args...)
	return err //nolint:wrapcheck // pass through
}

// preload loads a has-many relation for every parent in one IN query and
// plants the grouped results in each parent's relation cache, so later
// Related calls for the bare relation name hit the cache.
func (q *Query) preload(ctx context.Context, name string, parents []*Record) error {
	rel, ok := q.schema.relations[name]
	if !ok || rel.kind != relHasMany {
		return fmt.Errorf("%w: preload %q on model %q", ErrUnknownRelation, name, q.schema.model)
	}
	target, err := q.schema.registry.Schema(rel.target)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		return nil
	}

	var keys []any
	seen := make(map[string]struct{}, len(parents))
	for _, p := range parents {
		v, err := p.Key()
		if err != nil {
			continue
		}
		k := fmt.Sprint(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, v)
	}
	if len(keys) == 0 {
		return nil
	}

	placeholders := make([]string, len(keys))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	tmpl := "SELECT %pc FROM %t WHERE " + rel.foreignKey + " IN (" + strings.Join(placeholders, ",") + ")"
	children, err := target.queryRecords(ctx, q.db, tmpl, keys...)
	if err != nil {
		return err
	}

	groups := make(map[string][]*Record, len(keys))
	for _, c := range children {
		fk := fmt.Sprint(c.fields[rel.foreignKey])
		groups[fk] = append(groups[fk], c)
	}
	cacheKey := relCacheKey(name, nil)
	for _, p := range parents {
		v, err := p.Key()
		if err != nil {
			continue
		}
		p.storeRelated(cacheKey, groups[fmt.Sprint(v)])
	}
	return nil
}

// --- SQL building ---

// qi quotes an identifier (table/column name) using the dialect.
func (q *Query) qi(name string) string {
	return q.db.dialect().QuoteIdent(name)
}

// quoteColumns joins column names with dialect-aware quoting.
func (q *Query) quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = q.qi(c)
	}
	return strings.Join(quoted, ", ")
}

// keyedColumns is the primary key (if any) followed by the declared
// columns, the default SELECT list.
func (q *Query) keyedColumns() []string {
	s := q.schema
	if s.pk != "" {
		return append([]string{s.pk}, s.columns...)
	}
	return s.columns
}

func (q *Query) buildSelect() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")

	if q.selects != nil {
		b.WriteString(*q.selects)
	} else {
		b.WriteString(q.quoteColumns(q.keyedColumns()))
	}

	b.WriteString(" FROM ")
	b.WriteString(q.qi(q.schema.table))

	for _, j := range q.joins {
		b.WriteByte(' ')
		b.WriteString(j)
	}

	args := q.appendWhere(&b)

	if len(q.orderBys) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.orderBys, ", "))
	}

	if q.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.limit)
	}
	if q.offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *q.offset)
	}

	return b.String(), args
}

func (q *Query) buildCount() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(q.qi(q.schema.table))

	for _, j := range q.joins {
		b.WriteByte(' ')
		b.WriteString(j)
	}

	args := q.appendWhere(&b)

	if q.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.limit)
	}
	if q.offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *q.offset)
	}

	return b.String(), args
}

func (q *Query) appendWhere(b *strings.Builder) []any {
	if len(q.wheres) == 0 {
		return nil
	}

	var args []any
	b.WriteString(" WHERE ")
	for i, w := range q.wheres {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(w.clause)
		args = append(args, w.args...)
	}
	return args
}
