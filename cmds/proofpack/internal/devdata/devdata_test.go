package devdata

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.db")
	writeFile(t, empty, "")
	seeded := filepath.Join(dir, "seeded.db")
	writeFile(t, seeded, "data")

	testCases := []struct {
		name        string
		path        string
		wantMissing bool
	}{
		{name: "absent", path: filepath.Join(dir, "absent.db"), wantMissing: true},
		{name: "empty", path: empty, wantMissing: true},
		{name: "directory", path: dir, wantMissing: true},
		{name: "non-empty", path: seeded, wantMissing: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.path)
			var missing *MissingError
			if got := errors.As(err, &missing); got != tc.wantMissing {
				t.Fatalf("unexpected missing result: got=%v want=%v err=%v", got, tc.wantMissing, err)
			}
			if tc.wantMissing && missing.Path != tc.path {
				t.Fatalf("unexpected path: got=%s want=%s", missing.Path, tc.path)
			}
		})
	}
}

func TestInspectFindsPopulatedTable(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM sqlite_master")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("_prisma_migrations").AddRow("campaigns").AddRow("users"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM "campaigns" LIMIT 1)`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM "users" LIMIT 1)`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	summary, err := Inspect(context.Background(), db)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if summary.PopulatedTable != "users" {
		t.Fatalf("unexpected populated table: got=%s want=users", summary.PopulatedTable)
	}
	if len(summary.Tables) != 3 {
		t.Fatalf("unexpected tables: %v", summary.Tables)
	}
	assertMockExpectations(t, mock)
}

func TestInspectReportsMissingData(t *testing.T) {
	testCases := []struct {
		name       string
		tables     []string
		wantReason string
	}{
		{name: "no tables", tables: nil, wantReason: "database has no tables"},
		{name: "only migrations", tables: []string{"schema_migrations"}, wantReason: "no table contains rows"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			rows := sqlmock.NewRows([]string{"name"})
			for _, table := range tc.tables {
				rows.AddRow(table)
			}
			mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM sqlite_master")).WillReturnRows(rows)

			_, err := Inspect(context.Background(), db)
			var missing *MissingError
			if !errors.As(err, &missing) {
				t.Fatalf("expected MissingError, got=%v", err)
			}
			if missing.Reason != tc.wantReason {
				t.Fatalf("unexpected reason: got=%s want=%s", missing.Reason, tc.wantReason)
			}
			assertMockExpectations(t, mock)
		})
	}
}

func TestInspectPropagatesQueryErrors(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM sqlite_master")).WillReturnError(errors.New("disk I/O error"))

	_, err := Inspect(context.Background(), db)
	var missing *MissingError
	if err == nil || errors.As(err, &missing) {
		t.Fatalf("expected plain query error, got=%v", err)
	}
	assertMockExpectations(t, mock)
}

func TestVerifyWithSQLiteDatabase(t *testing.T) {
	dir := t.TempDir()
	seeded := filepath.Join(dir, "seeded.db")
	createSQLite(t, seeded, true)
	unseeded := filepath.Join(dir, "unseeded.db")
	createSQLite(t, unseeded, false)
	plain := filepath.Join(dir, "plain.json")
	writeFile(t, plain, `{"users":[{"id":"u_1"}]}`)

	summary, err := Verify(context.Background(), seeded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if summary.PopulatedTable != "users" {
		t.Fatalf("unexpected populated table: %s", summary.PopulatedTable)
	}

	_, err = Verify(context.Background(), unseeded)
	var missing *MissingError
	if !errors.As(err, &missing) || missing.Path != unseeded {
		t.Fatalf("expected MissingError for %s, got=%v", unseeded, err)
	}

	if _, err := Verify(context.Background(), plain); err != nil {
		t.Fatalf("non-sqlite file should pass, got=%v", err)
	}
}

func TestVerifyWithURICharactersInPath(t *testing.T) {
	testCases := []struct {
		name     string
		fileName string
		seed     bool
		unixOnly bool
	}{
		{name: "fragment marker", fileName: "dev#1.db", seed: true},
		{name: "query marker", fileName: "dev?x.db", seed: true, unixOnly: true},
		{name: "percent escape", fileName: "dev%20.db", seed: true},
		{name: "space and percent", fileName: "my dev %41.db", seed: true},
		{name: "unseeded with fragment marker", fileName: "empty#2.db", seed: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if tc.unixOnly && runtime.GOOS == "windows" {
				t.Skip("file name is not valid on windows")
			}
			dir := t.TempDir()
			staging := filepath.Join(dir, "staging.db")
			createSQLite(t, staging, tc.seed)
			path := filepath.Join(dir, tc.fileName)
			if err := os.Rename(staging, path); err != nil {
				t.Fatalf("rename dev data: %v", err)
			}

			summary, err := Verify(context.Background(), path)
			if !tc.seed {
				var missing *MissingError
				if !errors.As(err, &missing) || missing.Reason != "no table contains rows" || missing.Path != path {
					t.Fatalf("unexpected error: got=%v want MissingError for an empty table", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify returned error: %v", err)
			}
			if summary.PopulatedTable != "users" {
				t.Fatalf("unexpected populated table: %q", summary.PopulatedTable)
			}
		})
	}
}

func TestReadOnlyDSNEscapesPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix paths only")
	}

	dsn, err := readOnlyDSN("/var/data/dev#1?x%20.db")
	if err != nil {
		t.Fatalf("readOnlyDSN returned error: %v", err)
	}
	want := "file:///var/data/dev%231%3Fx%2520.db?mode=ro"
	if dsn != want {
		t.Fatalf("unexpected dsn: got=%q want=%q", dsn, want)
	}
}

func createSQLite(t *testing.T, path string, seed bool) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	statements := []string{`CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT NOT NULL);`}
	if seed {
		statements = append(statements, `INSERT INTO users(id, name) VALUES ('u_1', 'Ada');`)
	}
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("exec %q: %v", statement, err)
		}
	}
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertMockExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
}
