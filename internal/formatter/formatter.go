package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/fieldlog/internal/db"
	"github.com/tordrt/fieldlog/internal/schema"
)

// Output formats
const (
	FormatSQL      = "sql"
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Formatter renders a set of tables
type Formatter interface {
	Format(s *schema.Schema) error
}

// New returns the formatter for format writing to w
func New(format string, w io.Writer, d db.Dialect) (Formatter, error) {
	switch format {
	case FormatSQL:
		return NewSQLFormatter(w, d), nil
	case FormatText:
		return NewTextFormatter(w), nil
	case FormatMarkdown, "md":
		return NewMarkdownFormatter(w), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (use sql, text, or markdown)", format)
	}
}

// Extension returns the file extension used for format
func Extension(format string) string {
	switch format {
	case FormatSQL:
		return ".sql"
	case FormatMarkdown, "md":
		return ".md"
	default:
		return ".txt"
	}
}
