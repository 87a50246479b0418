package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQLClient manages the connection to MySQL
type MySQLClient struct {
	db *sql.DB
}

// NewMySQLClient creates a new MySQL client
func NewMySQLClient(ctx context.Context, connString string) (*MySQLClient, error) {
	dsn, err := mysqlDSN(connString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &MySQLClient{db: db}, nil
}

// Close closes the database connection
func (c *MySQLClient) Close() error {
	return c.db.Close()
}

// GetDB returns the underlying database connection
func (c *MySQLClient) GetDB() *sql.DB {
	return c.db
}

// Apply executes each statement in order. MySQL commits DDL implicitly, so
// statements that ran before a failure stay applied.
func (c *MySQLClient) Apply(ctx context.Context, statements []string) error {
	return applyStatements(ctx, c.db, statements)
}

// mysqlDSN turns on parseTime so TIMESTAMP columns scan into time.Time
func mysqlDSN(connString string) (string, error) {
	cfg, err := mysql.ParseDSN(connString)
	if err != nil {
		return "", fmt.Errorf("failed to parse MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// ParseDatabaseName returns the database selected by a go-sql-driver DSN
func ParseDatabaseName(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse MySQL DSN: %w", err)
	}
	if cfg.DBName == "" {
		return "", fmt.Errorf("MySQL DSN does not name a database")
	}
	return cfg.DBName, nil
}
