package changelog

import (
	"fmt"
	"strings"
)

// Aliases holds the parsed `table_alias` parameter. At most one of Global
// and PerField is set.
type Aliases struct {
	Global   string
	PerField map[string]string
}

// ParseAliases parses a table alias specification.
//
// A value without ':' is a single global alias shared by every tracked field.
// Otherwise the value is a comma separated list of "field:alias" pairs.
// An empty value yields no alias at all.
func ParseAliases(spec string) (Aliases, error) {
	aliases := Aliases{PerField: map[string]string{}}

	spec = strings.TrimSpace(spec)
	if spec == "" {
		return aliases, nil
	}

	if !strings.Contains(spec, ":") {
		aliases.Global = spec
		return aliases, nil
	}

	for _, chunk := range strings.Split(spec, ",") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}

		parts := strings.Split(chunk, ":")
		if len(parts) != 2 {
			return Aliases{}, configErr("", "", "malformed table_alias chunk %q: expected field:alias", chunk)
		}

		field := strings.TrimSpace(parts[0])
		alias := strings.TrimSpace(parts[1])
		if field == "" || alias == "" {
			return Aliases{}, configErr("", "", "malformed table_alias chunk %q: expected field:alias", chunk)
		}
		if _, dup := aliases.PerField[field]; dup {
			return Aliases{}, configErr("", field, "table_alias declared twice")
		}

		aliases.PerField[field] = alias
	}

	return aliases, nil
}

// Namespace returns the naming root of the shadow table for field on the
// origin table: the global alias, then the field's own alias, then origin.
func (a Aliases) Namespace(field, origin string) string {
	if a.Global != "" {
		return a.Global
	}
	if alias, ok := a.PerField[field]; ok {
		return alias
	}
	return origin
}

// LogTableName returns the shadow table name for field on the origin table
func (a Aliases) LogTableName(field, origin string) string {
	return fmt.Sprintf("%s_%s_log", a.Namespace(field, origin), field)
}
