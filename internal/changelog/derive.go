package changelog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tordrt/fieldlog/internal/schema"
)

// Derivation is the result of deriving shadow tables for one origin table
type Derivation struct {
	Origin  *schema.Table
	Options Options

	fields []string
	tables map[string]*schema.Table
}

// Fields returns the tracked columns in declaration order
func (d *Derivation) Fields() []string {
	out := make([]string, len(d.fields))
	copy(out, d.fields)
	return out
}

// LogTable returns the shadow table of a tracked column, or nil
func (d *Derivation) LogTable(field string) *schema.Table {
	return d.tables[field]
}

// LogTables returns the distinct shadow tables in declaration order
func (d *Derivation) LogTables() []*schema.Table {
	var out []*schema.Table
	seen := make(map[*schema.Table]bool, len(d.tables))
	for _, f := range d.fields {
		t := d.tables[f]
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Derive adds one shadow table per tracked column of origin to catalog and
// returns them. Tables already present in the catalog under the shadow name
// are completed rather than duplicated, so deriving twice is a no-op. A
// shadow table already tied to another origin is rejected.
//
// The origin table is only read. On a configuration error the catalog is
// left untouched.
func Derive(catalog *schema.Schema, origin *schema.Table, opts Options) (*Derivation, error) {
	if origin == nil {
		return nil, configErr("", "", "origin table is required")
	}
	if catalog == nil {
		catalog = &schema.Schema{}
	}

	if err := opts.Validate(); err != nil {
		return nil, withTable(err, origin.Name)
	}

	aliases, err := ParseAliases(opts.TableAlias)
	if err != nil {
		return nil, withTable(err, origin.Name)
	}

	if len(origin.PrimaryKey) == 0 {
		return nil, configErr(origin.Name, "", "origin table has no primary key")
	}
	for _, pk := range origin.PrimaryKey {
		if !origin.HasColumn(pk) {
			return nil, configErr(origin.Name, pk, "primary key column not found")
		}
		for _, c := range opts.reservedColumns() {
			if pk == c.column {
				return nil, configErr(origin.Name, pk, "primary key column collides with `%s`", c.param)
			}
		}
	}

	columns := make([]*schema.Column, 0, len(opts.Log))
	for _, name := range opts.Log {
		col := origin.Column(name)
		if col == nil {
			return nil, configErr(origin.Name, name, "column not found")
		}
		if col.PrimaryKey || slices.Contains(origin.PrimaryKey, name) {
			return nil, configErr(origin.Name, name, "primary key columns can not be tracked")
		}
		columns = append(columns, col)
	}

	for _, col := range columns {
		name := aliases.LogTableName(col.Name, origin.Name)
		if owner := logTableOwner(catalog.Table(name), origin.Name); owner != "" {
			return nil, configErr(origin.Name, col.Name, "log table %s already belongs to %s", name, owner)
		}
	}

	d := &Derivation{
		Origin:  origin,
		Options: opts,
		fields:  append([]string(nil), opts.Log...),
		tables:  make(map[string]*schema.Table, len(columns)),
	}

	for _, col := range columns {
		name := aliases.LogTableName(col.Name, origin.Name)

		logTable := catalog.Table(name)
		if logTable == nil {
			logTable = catalog.AddTable(&schema.Table{
				Name:      name,
				Namespace: origin.Namespace,
				SkipSQL:   origin.SkipSQL,
			})
		}
		d.tables[col.Name] = logTable

		addPrimaryKey(logTable, origin, opts)
		addColumnToLog(logTable, *col)
		addForeignKey(logTable, origin)
		addLogColumns(logTable, opts)
	}

	return d, nil
}

// addPrimaryKey clones the origin key and appends the version column
func addPrimaryKey(logTable, origin *schema.Table, opts Options) {
	for _, pk := range origin.PrimaryKeyColumns() {
		if logTable.HasColumn(pk.Name) {
			continue
		}
		col := pk.WithoutAutoIncrement()
		col.PrimaryKey = true
		col.IsUnique = false
		logTable.AddColumn(col)
	}

	if !logTable.HasColumn(opts.VersionColumn) {
		zero := "0"
		logTable.AddColumn(schema.Column{
			Name:         opts.VersionColumn,
			Type:         schema.TypeInteger,
			PrimaryKey:   true,
			Nullable:     false,
			DefaultValue: &zero,
		})
	}
}

// addColumnToLog adds the tracked column itself. A shadow table holds many
// versions of one value, so uniqueness is not carried over.
func addColumnToLog(logTable *schema.Table, col schema.Column) {
	if logTable.HasColumn(col.Name) {
		return
	}

	logged := col.WithoutAutoIncrement()
	logged.PrimaryKey = false
	logged.IsUnique = false
	logTable.AddColumn(logged)
}

// addForeignKey ties the cloned key back to the origin. An origin that
// already references its own table keeps that relation as the only one.
func addForeignKey(logTable, origin *schema.Table) {
	if len(origin.ForeignKeysReferencingTable(origin.Name)) > 0 {
		return
	}
	if len(logTable.ForeignKeysReferencingTable(origin.Name)) > 0 {
		return
	}

	fk := schema.ForeignKey{
		Name:         fmt.Sprintf("%s_fk_origin", logTable.Name),
		TargetTable:  origin.Name,
		TargetSchema: origin.Namespace,
		OnDelete:     schema.ActionCascade,
		OnUpdate:     schema.ActionCascade,
	}
	for _, pk := range origin.PrimaryKey {
		fk.Columns = append(fk.Columns, pk)
		fk.TargetColumns = append(fk.TargetColumns, pk)
	}

	logTable.AddForeignKey(fk)
}

// addLogColumns adds the enabled metadata columns
func addLogColumns(logTable *schema.Table, opts Options) {
	if opts.CreatedAt && !logTable.HasColumn(opts.CreatedAtColumn) {
		logTable.AddColumn(schema.Column{
			Name:     opts.CreatedAtColumn,
			Type:     schema.TypeTimestamp,
			Nullable: true,
		})
	}
	if opts.CreatedBy && !logTable.HasColumn(opts.CreatedByColumn) {
		logTable.AddColumn(schema.Column{
			Name:     opts.CreatedByColumn,
			Type:     schema.TypeVarchar,
			Size:     100,
			Nullable: true,
		})
	}
	if opts.Comment && !logTable.HasColumn(opts.CommentColumn) {
		logTable.AddColumn(schema.Column{
			Name:     opts.CommentColumn,
			Type:     schema.TypeVarchar,
			Size:     255,
			Nullable: true,
		})
	}
}

// logTableOwner returns the table other than origin that an existing shadow
// table references. Version rows of two origins can not share one table, as
// each row would have to match a key in both.
func logTableOwner(logTable *schema.Table, origin string) string {
	if logTable == nil {
		return ""
	}
	for _, fk := range logTable.ForeignKeys {
		if fk.TargetTable != origin {
			return fk.TargetTable
		}
	}
	return ""
}

func withTable(err error, table string) error {
	var cfg *ConfigError
	if errors.As(err, &cfg) && cfg.Table == "" {
		cfg.Table = table
	}
	return err
}
