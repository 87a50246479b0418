package formatter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tordrt/fieldlog/internal/db"
	"github.com/tordrt/fieldlog/internal/schema"
)

// MultiFileFormatter writes each table to its own file in a directory,
// plus an overview listing them
type MultiFileFormatter struct {
	OutputDir    string
	OutputFormat string
	Dialect      db.Dialect
}

// NewMultiFileFormatter creates a new multi-file formatter
func NewMultiFileFormatter(outputDir, format string, d db.Dialect) *MultiFileFormatter {
	return &MultiFileFormatter{
		OutputDir:    outputDir,
		OutputFormat: format,
		Dialect:      d,
	}
}

// Format writes the overview and one file per table
func (f *MultiFileFormatter) Format(s *schema.Schema) error {
	if err := os.MkdirAll(f.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := f.writeOverview(s); err != nil {
		return fmt.Errorf("failed to write overview: %w", err)
	}

	for _, table := range s.Tables {
		if err := f.writeTableFile(table); err != nil {
			return fmt.Errorf("failed to write table file for %s: %w", table.Name, err)
		}
	}

	return nil
}

// writeOverview writes the overview file
func (f *MultiFileFormatter) writeOverview(s *schema.Schema) error {
	ext := Extension(f.OutputFormat)
	if f.OutputFormat == FormatSQL {
		ext = ".txt"
	}

	file, err := os.Create(filepath.Join(f.OutputDir, "_overview"+ext))
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if f.OutputFormat == FormatMarkdown {
		writeMarkdownOverview(file, s, Extension(f.OutputFormat))
		return nil
	}
	writeTextOverview(file, s, Extension(f.OutputFormat))
	return nil
}

func sortedTables(s *schema.Schema) []*schema.Table {
	tables := make([]*schema.Table, len(s.Tables))
	copy(tables, s.Tables)
	sort.Slice(tables, func(i, j int) bool {
		return tables[i].Name < tables[j].Name
	})
	return tables
}

func referencedTables(t *schema.Table) []string {
	var targets []string
	for _, fk := range t.ForeignKeys {
		targets = append(targets, fk.TargetTable)
	}
	return targets
}

func writeMarkdownOverview(w io.Writer, s *schema.Schema, ext string) {
	_, _ = fmt.Fprintf(w, "# Change Log Overview\n\n")
	_, _ = fmt.Fprintf(w, "Each table has a corresponding file: `<table_name>%s`\n\n", ext)
	_, _ = fmt.Fprintf(w, "## Tables\n\n")

	for _, table := range sortedTables(s) {
		_, _ = fmt.Fprintf(w, "- **%s**", table.Name)
		if targets := referencedTables(table); len(targets) > 0 {
			_, _ = fmt.Fprintf(w, " (references: %s)", strings.Join(targets, ", "))
		}
		_, _ = fmt.Fprintf(w, "\n")
	}
}

func writeTextOverview(w io.Writer, s *schema.Schema, ext string) {
	_, _ = fmt.Fprintf(w, "CHANGE LOG OVERVIEW\n")
	_, _ = fmt.Fprintf(w, "Each table has a file: <table_name>%s\n\n", ext)

	for _, table := range sortedTables(s) {
		_, _ = fmt.Fprintf(w, "%s", table.Name)
		if targets := referencedTables(table); len(targets) > 0 {
			_, _ = fmt.Fprintf(w, " (references: %s)", strings.Join(targets, ","))
		}
		_, _ = fmt.Fprintf(w, "\n")
	}
}

// writeTableFile writes a single table to its own file
func (f *MultiFileFormatter) writeTableFile(table *schema.Table) error {
	if f.OutputFormat == FormatSQL && table.SkipSQL {
		return nil
	}

	file, err := os.Create(filepath.Join(f.OutputDir, table.Name+Extension(f.OutputFormat)))
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	single, err := New(f.OutputFormat, file, f.Dialect)
	if err != nil {
		return err
	}
	return single.Format(&schema.Schema{Tables: []*schema.Table{table}})
}
