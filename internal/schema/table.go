package schema

import "slices"

// Table returns the table with the given name, or nil
func (s *Schema) Table(name string) *Table {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// HasTable reports whether the catalog contains a table with the given name
func (s *Schema) HasTable(name string) bool {
	return s.Table(name) != nil
}

// AddTable appends t to the catalog and returns it
func (s *Schema) AddTable(t *Table) *Table {
	s.Tables = append(s.Tables, t)
	return t
}

// Column returns the column with the given name, or nil
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// HasColumn reports whether the table has a column with the given name
func (t *Table) HasColumn(name string) bool {
	return t.Column(name) != nil
}

// AddColumn appends a copy of c. Primary key columns are also appended to
// the table's primary key, keeping declaration order.
func (t *Table) AddColumn(c Column) {
	t.Columns = append(t.Columns, c.Clone())
	if c.PrimaryKey && !slices.Contains(t.PrimaryKey, c.Name) {
		t.PrimaryKey = append(t.PrimaryKey, c.Name)
	}
}

// PrimaryKeyColumns returns the primary key columns in key order
func (t *Table) PrimaryKeyColumns() []Column {
	cols := make([]Column, 0, len(t.PrimaryKey))
	for _, name := range t.PrimaryKey {
		if c := t.Column(name); c != nil {
			cols = append(cols, *c)
		}
	}
	return cols
}

// ForeignKeysReferencingTable returns the foreign keys of t that target the named table
func (t *Table) ForeignKeysReferencingTable(name string) []ForeignKey {
	var fks []ForeignKey
	for _, fk := range t.ForeignKeys {
		if fk.TargetTable == name {
			fks = append(fks, fk)
		}
	}
	return fks
}

// AddForeignKey appends fk to the table
func (t *Table) AddForeignKey(fk ForeignKey) {
	t.ForeignKeys = append(t.ForeignKeys, fk.Clone())
}

// QualifiedName returns "namespace.name", or just the name without a namespace
func (t *Table) QualifiedName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	c := &Table{
		Name:       t.Name,
		Namespace:  t.Namespace,
		SkipSQL:    t.SkipSQL,
		PrimaryKey: cloneStrings(t.PrimaryKey),
	}
	for _, col := range t.Columns {
		c.Columns = append(c.Columns, col.Clone())
	}
	for _, fk := range t.ForeignKeys {
		c.ForeignKeys = append(c.ForeignKeys, fk.Clone())
	}
	return c
}

// Clone returns a copy of the column sharing no memory with c
func (c Column) Clone() Column {
	out := c
	if c.DefaultValue != nil {
		v := *c.DefaultValue
		out.DefaultValue = &v
	}
	out.EnumValues = cloneStrings(c.EnumValues)
	return out
}

// WithoutAutoIncrement returns a copy with auto-increment removed. A sequence
// default belongs to the auto-increment and is dropped with it.
func (c Column) WithoutAutoIncrement() Column {
	out := c.Clone()
	if out.AutoIncrement {
		out.DefaultValue = nil
	}
	out.AutoIncrement = false
	return out
}

// Clone returns a copy of the foreign key sharing no memory with fk
func (fk ForeignKey) Clone() ForeignKey {
	out := fk
	out.Columns = cloneStrings(fk.Columns)
	out.TargetColumns = cloneStrings(fk.TargetColumns)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
