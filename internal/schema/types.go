package schema

// Schema represents a database catalog: every table known to derivation
type Schema struct {
	Tables []*Table
}

// Table represents a database table
type Table struct {
	Name string
	// Namespace is the PostgreSQL schema or MySQL database holding the table.
	// SQLite tables leave it empty.
	Namespace   string
	Columns     []Column
	ForeignKeys []ForeignKey
	PrimaryKey  []string
	// SkipSQL marks tables whose DDL is managed elsewhere
	SkipSQL bool
}

// Column represents a table column
type Column struct {
	Name          string
	Type          string
	Size          int
	Nullable      bool
	DefaultValue  *string
	IsUnique      bool
	PrimaryKey    bool
	AutoIncrement bool
	EnumValues    []string
}

// ForeignKey represents a (possibly composite) foreign key constraint
type ForeignKey struct {
	Name          string
	TargetTable   string
	TargetSchema  string
	Columns       []string
	TargetColumns []string
	OnDelete      string
	OnUpdate      string
}

// Referential actions
const (
	ActionCascade  = "CASCADE"
	ActionSetNull  = "SET NULL"
	ActionRestrict = "RESTRICT"
	ActionNone     = "NO ACTION"
)

// Column types used by generated columns
const (
	TypeInteger   = "INTEGER"
	TypeVarchar   = "VARCHAR"
	TypeTimestamp = "TIMESTAMP"
)
