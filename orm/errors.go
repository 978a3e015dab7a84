package orm

import "errors"

var (
	// ErrNotFound is returned when a query expects exactly one row but finds none.
	ErrNotFound = errors.New("orm: not found")

	// ErrMissingDB is returned by New when no database handle is supplied.
	ErrMissingDB = errors.New("orm: no database handle")

	// ErrUnknownModel is returned when a model name has not been defined
	// in the registry, including targets of declared relations.
	ErrUnknownModel = errors.New("orm: unknown model")

	// ErrUnknownRelation is returned when a relation accessor is called
	// with a name the schema does not declare, or with the wrong kind
	// (has-many accessor on a belongs-to relation and vice versa).
	ErrUnknownRelation = errors.New("orm: unknown relation")

	// ErrNoKeyValue is returned when an operation needs the record's key
	// column (find, update, delete, relation loads) but it has no value.
	ErrNoKeyValue = errors.New("orm: key column has no value")

	// ErrNoColumns is returned by Define for a schema declaring no columns.
	// Statements expanded against an empty column list would be degenerate
	// SQL, so the case is rejected at definition time.
	ErrNoColumns = errors.New("orm: schema has no columns")
)
