package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tordrt/fieldlog"
	"github.com/tordrt/fieldlog/internal/changelog"
	"github.com/tordrt/fieldlog/internal/config"
)

var (
	dbURL         string
	mysqlURL      string
	sqlitePath    string
	configPath    string
	outputFile    string
	outputDir     string
	table         string
	schemaName    string
	format        string
	apply         bool
	verbose       bool
	logColumns    string
	createdAt     bool
	createdBy     bool
	comment       bool
	createdAtCol  string
	createdByCol  string
	commentCol    string
	versionColumn string
	tableAlias    string
)

var rootCmd = &cobra.Command{
	Use:   "fieldlog",
	Short: "Derive per-column change log tables",
	Long: `fieldlog reads a table from PostgreSQL, MySQL, or SQLite and derives one
change log table per tracked column. Each log table stores the previous values
of its column keyed by the origin primary key and a version number.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	registerFlags(rootCmd.Flags())
}

// registerFlags binds the command line flags, resetting each to its default
func registerFlags(f *pflag.FlagSet) {
	f.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string")
	f.StringVar(&mysqlURL, "mysql-url", "", "MySQL connection string")
	f.StringVar(&sqlitePath, "sqlite", "", "SQLite database file path")
	f.StringVarP(&configPath, "config", "c", "", "YAML file with database and per-table settings")
	f.StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	f.StringVarP(&outputDir, "output-dir", "d", "", "Output directory for multi-file output")
	f.StringVarP(&table, "table", "t", "", "Origin table to track")
	f.StringVarP(&schemaName, "schema", "s", "", "Database schema name (default: public for PostgreSQL)")
	f.StringVarP(&format, "format", "f", "sql", "Output format: sql, text or markdown")
	f.BoolVar(&apply, "apply", false, "Create the derived tables in the database")
	f.BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	f.StringVar(&logColumns, changelog.ParamLog, "", "Comma-separated columns to track")
	f.BoolVar(&createdAt, "created-at", false, "Add a timestamp column to each log table")
	f.BoolVar(&createdBy, "created-by", false, "Add an actor column to each log table")
	f.BoolVar(&comment, "comment", false, "Add a comment column to each log table")
	f.StringVar(&createdAtCol, "created-at-column", "", "Name of the timestamp column")
	f.StringVar(&createdByCol, "created-by-column", "", "Name of the actor column")
	f.StringVar(&commentCol, "comment-column", "", "Name of the comment column")
	f.StringVar(&versionColumn, "version-column", "", "Name of the version column")
	f.StringVar(&tableAlias, "table-alias", "", "Log table namespace: alias, or field:alias pairs")
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	url, err := databaseURL(cfg)
	if err != nil {
		return err
	}

	tables, err := tableOptions(cmd.Flags(), cfg)
	if err != nil {
		return err
	}

	if outputDir != "" && outputFile != "" {
		return fmt.Errorf("cannot use both --output-dir and --output flags")
	}

	opts := &fieldlog.Options{SchemaName: schemaName, Logger: logger}
	if opts.SchemaName == "" {
		opts.SchemaName = cfg.Schema
	}

	res, err := fieldlog.DeriveFromDatabase(ctx, url, tables, opts)
	if err != nil {
		return fmt.Errorf("failed to derive log tables: %w", err)
	}

	if apply {
		if err := fieldlog.ApplyTables(ctx, url, res.LogTables(), opts); err != nil {
			return err
		}
	}

	out := &fieldlog.OutputOptions{Writer: os.Stdout, OutputDir: outputDir}
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if err := file.Close(); err != nil {
				logger.Warn("failed to close output file", zap.Error(err))
			}
		}()
		out.Writer = file
	}

	if err := fieldlog.FormatTables(res.LogTables(), format, res.Dialect, out); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	return nil
}

// databaseURL picks the connection from the flags, falling back to the config
func databaseURL(cfg *config.Config) (string, error) {
	var urls []string
	if dbURL != "" {
		urls = append(urls, dbURL)
	}
	if mysqlURL != "" {
		urls = append(urls, "mysql://"+mysqlURL)
	}
	if sqlitePath != "" {
		urls = append(urls, "sqlite://"+sqlitePath)
	}

	switch {
	case len(urls) > 1:
		return "", fmt.Errorf("only one of --db-url, --mysql-url, or --sqlite can be specified")
	case len(urls) == 1:
		return urls[0], nil
	case cfg.DatabaseURL != "":
		return cfg.DatabaseURL, nil
	default:
		return "", fmt.Errorf("one of --db-url, --mysql-url, or --sqlite must be specified")
	}
}

// flagParams maps command line flags to behaviour parameter names
var flagParams = map[string]string{
	changelog.ParamLog:  changelog.ParamLog,
	"created-at":        changelog.ParamCreatedAt,
	"created-by":        changelog.ParamCreatedBy,
	"comment":           changelog.ParamComment,
	"created-at-column": changelog.ParamCreatedAtColumn,
	"created-by-column": changelog.ParamCreatedByColumn,
	"comment-column":    changelog.ParamCommentColumn,
	"version-column":    changelog.ParamVersionColumn,
	"table-alias":       changelog.ParamTableAlias,
}

// tableOptions merges the configured tables with the one given on the
// command line. Flags override configured parameters of the same table.
func tableOptions(flags *pflag.FlagSet, cfg *config.Config) (map[string]changelog.Options, error) {
	merged := &config.Config{Tables: make(map[string]map[string]string, len(cfg.Tables)+1)}
	for name, p := range cfg.Tables {
		merged.Tables[name] = p
	}

	if table != "" {
		p := make(map[string]string)
		for k, v := range cfg.Tables[table] {
			p[k] = v
		}
		for flag, param := range flagParams {
			if flags.Changed(flag) {
				p[param] = flagValue(flags, flag)
			}
		}
		merged.Tables[table] = p
	} else {
		for flag := range flagParams {
			if flags.Changed(flag) {
				return nil, fmt.Errorf("--%s requires --table", flag)
			}
		}
	}

	names := merged.TableNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("no table to track: pass --table and --log, or a --config with tables")
	}

	out := make(map[string]changelog.Options, len(names))
	for _, name := range names {
		opts, err := merged.Options(name)
		if err != nil {
			return nil, err
		}
		out[name] = opts
	}
	return out, nil
}

func flagValue(flags *pflag.FlagSet, name string) string {
	f := flags.Lookup(name)
	if f.Value.Type() == "bool" {
		b, _ := strconv.ParseBool(f.Value.String())
		return strconv.FormatBool(b)
	}
	return f.Value.String()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
