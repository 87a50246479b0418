package changelog

import (
	"sort"
	"strings"
)

// Behaviour parameter names
const (
	ParamLog             = "log"
	ParamCreatedAt       = "created_at"
	ParamCreatedBy       = "created_by"
	ParamComment         = "comment"
	ParamCreatedAtColumn = "created_at_column"
	ParamCreatedByColumn = "created_by_column"
	ParamCommentColumn   = "comment_column"
	ParamVersionColumn   = "version_column"
	ParamTableAlias      = "table_alias"
)

// Options configures change logging for one origin table
type Options struct {
	// Log lists the tracked columns in declaration order
	Log []string

	CreatedAt bool
	CreatedBy bool
	Comment   bool

	CreatedAtColumn string
	CreatedByColumn string
	CommentColumn   string
	VersionColumn   string

	TableAlias string
}

// DefaultOptions returns the options used when a parameter is not given
func DefaultOptions() Options {
	return Options{
		CreatedAtColumn: "log_created_at",
		CreatedByColumn: "log_created_by",
		CommentColumn:   "log_comment",
		VersionColumn:   "version",
	}
}

// ParseParameters builds Options from raw behaviour parameters. Unknown
// parameters and boolean values other than "true"/"false" are rejected.
func ParseParameters(params map[string]string) (Options, error) {
	opts := DefaultOptions()

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		var err error

		switch key {
		case ParamLog:
			opts.Log = ParseColumnList(value)
		case ParamCreatedAt:
			opts.CreatedAt, err = parseBool(key, value)
		case ParamCreatedBy:
			opts.CreatedBy, err = parseBool(key, value)
		case ParamComment:
			opts.Comment, err = parseBool(key, value)
		case ParamCreatedAtColumn:
			opts.CreatedAtColumn = strings.TrimSpace(value)
		case ParamCreatedByColumn:
			opts.CreatedByColumn = strings.TrimSpace(value)
		case ParamCommentColumn:
			opts.CommentColumn = strings.TrimSpace(value)
		case ParamVersionColumn:
			opts.VersionColumn = strings.TrimSpace(value)
		case ParamTableAlias:
			opts.TableAlias = value
		default:
			err = configErr("", "", "unknown parameter %q", key)
		}

		if err != nil {
			return Options{}, err
		}
	}

	return opts, nil
}

// ParseColumnList splits a comma separated column list. All whitespace is
// removed and empty entries are dropped.
func ParseColumnList(value string) []string {
	value = strings.Join(strings.Fields(value), "")
	if value == "" {
		return nil
	}

	var columns []string
	for _, name := range strings.Split(value, ",") {
		if name != "" {
			columns = append(columns, name)
		}
	}
	return columns
}

// Validate checks the options independently of any table
func (o Options) Validate() error {
	if len(o.Log) == 0 {
		return configErr("", "", "at least one column must be specified as `log` parameter")
	}

	seen := make(map[string]bool, len(o.Log))
	for _, name := range o.Log {
		if seen[name] {
			return configErr("", name, "column declared twice in `log` parameter")
		}
		seen[name] = true
	}

	if o.VersionColumn == "" {
		return configErr("", "", "`version_column` must not be empty")
	}
	if o.CreatedAt && o.CreatedAtColumn == "" {
		return configErr("", "", "`created_at_column` must not be empty")
	}
	if o.CreatedBy && o.CreatedByColumn == "" {
		return configErr("", "", "`created_by_column` must not be empty")
	}
	if o.Comment && o.CommentColumn == "" {
		return configErr("", "", "`comment_column` must not be empty")
	}

	reserved := make(map[string]string, 4)
	for _, c := range o.reservedColumns() {
		if prev, ok := reserved[c.column]; ok {
			return configErr("", c.column, "`%s` and `%s` name the same column", prev, c.param)
		}
		reserved[c.column] = c.param
	}
	for _, name := range o.Log {
		if param, ok := reserved[name]; ok {
			return configErr("", name, "tracked column collides with `%s`", param)
		}
	}

	return nil
}

type reservedColumn struct {
	param  string
	column string
}

// reservedColumns lists the shadow table columns the options add besides
// the cloned key and the tracked column
func (o Options) reservedColumns() []reservedColumn {
	out := []reservedColumn{{ParamVersionColumn, o.VersionColumn}}
	if o.CreatedAt {
		out = append(out, reservedColumn{ParamCreatedAtColumn, o.CreatedAtColumn})
	}
	if o.CreatedBy {
		out = append(out, reservedColumn{ParamCreatedByColumn, o.CreatedByColumn})
	}
	if o.Comment {
		out = append(out, reservedColumn{ParamCommentColumn, o.CommentColumn})
	}
	return out
}

func parseBool(key, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true":
		return true, nil
	case "false", "":
		return false, nil
	default:
		return false, configErr("", "", "parameter %q must be true or false, got %q", key, value)
	}
}
