// Package ident contains lightweight identifier value types used to
// refer to source and target tables without repeatedly re-parsing or
// re-quoting raw strings.
package ident

import (
	"fmt"
	"strings"
)

// An Ident is a single, already-validated SQL identifier (no schema or
// database qualification).
type Ident struct {
	raw string
}

// New returns an Ident wrapping the given raw name.
func New(raw string) Ident { return Ident{raw: raw} }

// Raw returns the unquoted identifier text.
func (i Ident) Raw() string { return i.raw }

// String implements fmt.Stringer, quoting the identifier for use in
// generated SQL text.
func (i Ident) String() string {
	return `"` + strings.ReplaceAll(i.raw, `"`, `""`) + `"`
}

// Empty reports whether the Ident was never assigned a value.
func (i Ident) Empty() bool { return i.raw == "" }

// A Schema qualifies a Table by database and schema name.
type Schema struct {
	Database Ident
	Name     Ident
}

// NewSchema builds a Schema from raw database/schema names.
func NewSchema(database, name string) Schema {
	return Schema{Database: New(database), Name: New(name)}
}

// String renders the schema as "database.schema".
func (s Schema) String() string {
	return fmt.Sprintf("%s.%s", s.Database, s.Name)
}

// Raw renders the schema as unquoted "database.schema", suitable as a
// map key or for comparison against upstream-supplied identifiers.
func (s Schema) Raw() string {
	return s.Database.Raw() + "." + s.Name.Raw()
}

// A Table is a fully-qualified target-side table identifier.
type Table struct {
	Schema Schema
	Name   Ident
}

// NewTable builds a Table from a Schema and a raw table name.
func NewTable(schema Schema, name string) Table {
	return Table{Schema: schema, Name: New(name)}
}

// ParseTable parses a dotted "database.schema.table" or "schema.table"
// name into a Table. It is intentionally permissive, since upstream
// mapping configuration is operator-supplied and validated once at
// startup rather than on every record.
func ParseTable(raw string) (Table, error) {
	parts := strings.Split(raw, ".")
	switch len(parts) {
	case 2:
		return NewTable(NewSchema("", parts[0]), parts[1]), nil
	case 3:
		return NewTable(NewSchema(parts[0], parts[1]), parts[2]), nil
	default:
		return Table{}, fmt.Errorf("ident: cannot parse table name %q", raw)
	}
}

// String renders the table as "database.schema.table".
func (t Table) String() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

// Raw renders the table as an unquoted dotted name, suitable as a map
// key.
func (t Table) Raw() string {
	return t.Schema.Raw() + "." + t.Name.Raw()
}
