package orm

import (
	"context"
	"fmt"
)

// Related returns the records of the named has-many relation: target rows
// whose foreign key column equals this record's key value, in driver
// order. Results are cached per record, keyed by relation name plus the
// extra arguments (which bind to placeholders in the relation's declared
// suffix, supporting parameterized variants of one relation). A cache hit
// returns the identical slice without I/O; Refresh forces the next access
// to bypass and repopulate the cache for its key.
//
// An unknown relation name or an unresolvable target model fails before
// any query is issued.
func (r *Record) Related(ctx context.Context, db Querier, name string, extra ...any) ([]*Record, error) {
	rel, target, err := r.resolveRelation(name, relHasMany)
	if err != nil {
		return nil, err
	}

	key := relCacheKey(name, extra)
	if !r.consumeFresh() {
		if cached, ok := r.relCache[key]; ok {
			return cached, nil
		}
	}

	owner, err := r.Key()
	if err != nil {
		return nil, err
	}

	tmpl := "SELECT %pc FROM %t WHERE " + rel.foreignKey + "=?"
	if rel.suffix != "" {
		tmpl += " " + rel.suffix
	}
	records, err := target.queryRecords(ctx, db, tmpl, append([]any{owner}, extra...)...)
	if err != nil {
		return nil, err
	}

	r.storeRelated(key, records)
	return records, nil
}

// Parent returns the record of the named belongs-to relation: the single
// target row whose key column equals this record's foreign key value.
// Cache and fresh semantics match Related. Returns ErrNotFound when no
// row matches; absence is not cached.
func (r *Record) Parent(ctx context.Context, db Querier, name string) (*Record, error) {
	rel, target, err := r.resolveRelation(name, relBelongsTo)
	if err != nil {
		return nil, err
	}

	key := relCacheKey(name, nil)
	if !r.consumeFresh() {
		if cached, ok := r.relCache[key]; ok && len(cached) > 0 {
			return cached[0], nil
		}
	}

	fk, ok := r.fields[rel.foreignKey]
	if !ok || fk == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoKeyValue, r.schema.model, rel.foreignKey)
	}

	records, err := target.queryRecords(ctx, db, "SELECT %pc FROM %t WHERE "+target.KeyColumn()+"=?", fk)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	r.storeRelated(key, records[:1])
	return records[0], nil
}

// NewRelated builds an in-memory record of the named has-many relation's
// target model, pre-populated with the foreign key pointing at this
// record. The result is not persisted.
func (r *Record) NewRelated(name string, fields map[string]any) (*Record, error) {
	rel, target, err := r.resolveRelation(name, relHasMany)
	if err != nil {
		return nil, err
	}
	owner, err := r.Key()
	if err != nil {
		return nil, err
	}
	return target.New(fields).Set(rel.foreignKey, owner), nil
}

func (r *Record) resolveRelation(name string, kind relationKind) (*relation, *Schema, error) {
	rel, ok := r.schema.relations[name]
	if !ok || rel.kind != kind {
		return nil, nil, fmt.Errorf("%w: %q on model %q", ErrUnknownRelation, name, r.schema.model)
	}
	target, err := r.schema.registry.Schema(rel.target)
	if err != nil {
		return nil, nil, err
	}
	return rel, target, nil
}

// consumeFresh clears and reports the one-shot fresh marker. Every
// relation access that resolves consumes it, cache hit or miss.
func (r *Record) consumeFresh() bool {
	fresh := r.fresh
	r.fresh = false
	return fresh
}

func (r *Record) storeRelated(key string, records []*Record) {
	if r.relCache == nil {
		r.relCache = make(map[string][]*Record)
	}
	r.relCache[key] = records
}

func relCacheKey(name string, extra []any) string {
	if len(extra) == 0 {
		return name
	}
	return fmt.Sprintf("%s(%v)", name, extra)
}

// queryRecords expands a statement template against this schema, executes
// it and hydrates every row, preserving driver order.
func (s *Schema) queryRecords(ctx context.Context, db Querier, tmpl string, args ...any) ([]*Record, error) {
	query, binds := s.Expand(tmpl, args...)
	query = rewritePlaceholders(db.dialect(), query)

	rows, err := db.QueryxContext(ctx, query, binds...)
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
		records = append(records, s.hydrate(row))
	}
	return records, rows.Err() //nolint:wrapcheck // pass through
}
