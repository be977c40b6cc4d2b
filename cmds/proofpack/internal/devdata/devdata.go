package devdata

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteHeader = []byte("SQLite format 3\x00")

// Bookkeeping tables written by migration tools before any real data exists.
var ignoredTables = map[string]struct{}{
	"_prisma_migrations":         {},
	"__drizzle_migrations":       {},
	"__diesel_schema_migrations": {},
	"schema_migrations":          {},
	"knex_migrations":            {},
	"knex_migrations_lock":       {},
	"goose_db_version":           {},
}

// MissingError means the dev database has not been bootstrapped.
type MissingError struct {
	Path   string
	Reason string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("dev data missing at %s: %s", e.Path, e.Reason)
}

// Summary describes what Inspect found in a SQLite dev database.
type Summary struct {
	Tables         []string
	PopulatedTable string
}

// Check is the cheap precondition: the file must exist and be non-empty.
func Check(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &MissingError{Path: path, Reason: "file does not exist"}
		}
		return fmt.Errorf("stat dev data %s: %w", path, err)
	}
	if info.IsDir() {
		return &MissingError{Path: path, Reason: "path is a directory"}
	}
	if info.Size() == 0 {
		return &MissingError{Path: path, Reason: "file is empty"}
	}
	return nil
}

func IsSQLite(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open dev data %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, fmt.Errorf("read dev data header: %w", err)
	}
	return bytes.Equal(header, sqliteHeader), nil
}

// Open opens path read-only through a file URI.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// readOnlyDSN escapes the path so '#', '?' and '%' stay part of the file name.
func readOnlyDSN(path string) (string, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve dev data path %s: %w", path, err)
	}
	uriPath := filepath.ToSlash(absolute)
	if !strings.HasPrefix(uriPath, "/") {
		uriPath = "/" + uriPath
	}
	dsn := &url.URL{Scheme: "file", Path: uriPath, RawQuery: "mode=ro"}
	return dsn.String(), nil
}

// Verify inspects path when it is a SQLite database. Other file formats pass
// on the strength of Check alone.
func Verify(ctx context.Context, path string) (Summary, error) {
	if err := Check(path); err != nil {
		return Summary{}, err
	}
	isSQLite, err := IsSQLite(path)
	if err != nil {
		return Summary{}, err
	}
	if !isSQLite {
		return Summary{}, nil
	}

	db, err := Open(ctx, path)
	if err != nil {
		return Summary{}, err
	}
	defer db.Close()

	summary, err := Inspect(ctx, db)
	var missing *MissingError
	if errors.As(err, &missing) {
		missing.Path = path
	}
	return summary, err
}

// Inspect requires at least one user table holding a row.
func Inspect(ctx context.Context, db *sql.DB) (Summary, error) {
	tables, err := listTables(ctx, db)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Tables: tables}
	if len(tables) == 0 {
		return summary, &MissingError{Reason: "database has no tables"}
	}

	for _, table := range tables {
		if _, ignored := ignoredTables[table]; ignored {
			continue
		}
		var populated bool
		query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s LIMIT 1)", quoteIdentifier(table))
		if err := db.QueryRowContext(ctx, query).Scan(&populated); err != nil {
			return summary, fmt.Errorf("inspect table %s: %w", table, err)
		}
		if populated {
			summary.PopulatedTable = table
			return summary, nil
		}
	}
	return summary, &MissingError{Reason: "no table contains rows"}
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
