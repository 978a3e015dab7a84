package orm

import (
	"fmt"

	"github.com/rowmap/rowmap/internal/naming"
)

// Registry maps model names to their schema descriptors. It is populated
// once at startup via Define; lookups after that are read-only.
type Registry struct {
	models map[string]*Schema
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Schema)}
}

// Define registers a model and returns its schema. The table name
// defaults to the pluralized snake_case of the model name and can be
// overridden with the Table option. Declared columns never include the
// primary key; the two are separate declaration sites and Define rejects
// overlap.
func (r *Registry) Define(model string, opts ...SchemaOption) (*Schema, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: empty model name", ErrUnknownModel)
	}
	if _, ok := r.models[model]; ok {
		return nil, fmt.Errorf("orm: model %q already defined", model)
	}

	s := &Schema{
		registry:  r,
		model:     model,
		table:     naming.Tableize(model),
		relations: make(map[string]*relation),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if len(s.columns) == 0 {
		return nil, fmt.Errorf("%w: model %q", ErrNoColumns, model)
	}
	seen := make(map[string]struct{}, len(s.columns))
	for _, c := range s.columns {
		if s.pk != "" && c == s.pk {
			return nil, fmt.Errorf("orm: model %q declares primary key %q as a column", model, c)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("orm: model %q declares column %q twice", model, c)
		}
		seen[c] = struct{}{}
	}
	for _, ts := range []string{s.createdCol, s.updatedCol} {
		if ts == "" {
			continue
		}
		if _, ok := seen[ts]; !ok {
			return nil, fmt.Errorf("orm: model %q timestamp column %q is not declared", model, ts)
		}
	}

	r.models[model] = s
	return s, nil
}

// MustDefine is like Define but panics on error. Intended for
// package-level model declarations.
func (r *Registry) MustDefine(model string, opts ...SchemaOption) *Schema {
	s, err := r.Define(model, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Schema returns the schema registered for the given model name.
func (r *Registry) Schema(model string) (*Schema, error) {
	s, ok := r.models[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return s, nil
}

// Schema describes one mapped model: its table, ordered column list,
// optional primary key and declared relations. A Schema is immutable
// after Define returns it.
type Schema struct {
	registry   *Registry
	model      string
	table      string
	pk         string
	columns    []string
	createdCol string
	updatedCol string
	relations  map[string]*relation
}

// SchemaOption configures a schema during Define.
type SchemaOption func(*Schema) error

// Table overrides the derived table name.
func Table(name string) SchemaOption {
	return func(s *Schema) error {
		if name == "" {
			return fmt.Errorf("orm: model %q: empty table name", s.model)
		}
		s.table = name
		return nil
	}
}

// Columns declares persisted columns in order. Order matters: it
// determines positional SQL argument order in generated statements.
// Multiple Columns options append.
func Columns(names ...string) SchemaOption {
	return func(s *Schema) error {
		for _, n := range names {
			if n == "" {
				return fmt.Errorf("orm: model %q: empty column name", s.model)
			}
		}
		s.columns = append(s.columns, names...)
		return nil
	}
}

// PrimaryKey declares the identity column. It is assumed to be
// driver-generated on insert; the generated value is copied back into
// the record. Without a primary key the first declared column targets
// rows for find, update and delete.
func PrimaryKey(name string) SchemaOption {
	return func(s *Schema) error {
		if name == "" {
			return fmt.Errorf("orm: model %q: empty primary key", s.model)
		}
		s.pk = name
		return nil
	}
}

// Timestamps declares created/updated columns maintained automatically:
// Insert sets both, Update refreshes the updated column. Either name may
// be empty to skip it. Both must also appear in Columns.
func Timestamps(createdCol, updatedCol string) SchemaOption {
	return func(s *Schema) error {
		s.createdCol = createdCol
		s.updatedCol = updatedCol
		return nil
	}
}

type relationKind int

const (
	relHasMany relationKind = iota
	relBelongsTo
)

type relation struct {
	kind       relationKind
	name       string
	target     string // model name, resolved against the registry on access
	foreignKey string // column on the target table (has-many) or on the owner (belongs-to)
	suffix     string // extra SQL after the key match; may contain ? bound to accessor args
}

// RelationOption configures a relation declaration.
type RelationOption func(*relation)

// Suffix appends extra SQL to the relation's generated SELECT, after the
// foreign key match. Placeholders in it bind to the accessor's extra
// arguments, which also parameterize the relation cache key.
//
//	orm.HasMany("drafts", "Post", "author_id", orm.Suffix("AND published = ? ORDER BY id"))
func Suffix(sql string) RelationOption {
	return func(rel *relation) { rel.suffix = sql }
}

// HasMany declares a one-to-many relation: rows of the target model whose
// foreignKey column equals this model's key value. Accessed via
// Record.Related; companion constructor Record.NewRelated.
func HasMany(name, target, foreignKey string, opts ...RelationOption) SchemaOption {
	return addRelation(relHasMany, name, target, foreignKey, opts)
}

// BelongsTo declares a many-to-one relation: the single target row whose
// key column equals this model's foreignKey column. Accessed via
// Record.Parent.
func BelongsTo(name, target, foreignKey string, opts ...RelationOption) SchemaOption {
	return addRelation(relBelongsTo, name, target, foreignKey, opts)
}

func addRelation(kind relationKind, name, target, foreignKey string, opts []RelationOption) SchemaOption {
	return func(s *Schema) error {
		if name == "" || target == "" || foreignKey == "" {
			return fmt.Errorf("orm: model %q: incomplete relation %q", s.model, name)
		}
		if _, dup := s.relations[name]; dup {
			return fmt.Errorf("orm: model %q declares relation %q twice", s.model, name)
		}
		rel := &relation{kind: kind, name: name, target: target, foreignKey: foreignKey}
		for _, opt := range opts {
			opt(rel)
		}
		s.relations[name] = rel
		return nil
	}
}

// Model returns the registered model name.
func (s *Schema) Model() string { return s.model }

// Table returns the resolved table name.
func (s *Schema) Table() string { return s.table }

// PrimaryKey returns the declared primary key, or "" when none.
func (s *Schema) PrimaryKey() string { return s.pk }

// Columns returns the declared columns in order.
func (s *Schema) Columns() []string {
	return append([]string(nil), s.columns...)
}

// KeyColumn returns the column targeting a specific row: the primary key
// when declared, otherwise the first declared column.
func (s *Schema) KeyColumn() string {
	if s.pk != "" {
		return s.pk
	}
	return s.columns[0]
}
