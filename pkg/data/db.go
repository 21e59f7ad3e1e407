package data

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"

	sqliteDriver   = "sqlite"
	postgresDriver = "postgres"
	sqlitePragmas  = "_pragma=busy_timeout(5000)"
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	// ErrNotFound is returned when a contract has no stored assessment.
	ErrNotFound = errors.New("not found")
)

// IsPostgres reports whether dsn addresses a PostgreSQL server rather than a
// local sqlite file.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Init creates the store if needed and applies pending migrations.
func Init(dsn string) error {
	if dsn == "" {
		return errors.New("dsn not specified")
	}

	if !IsPostgres(dsn) {
		if err := os.MkdirAll(filepath.Dir(dsn), 0700); err != nil {
			return errors.Wrapf(err, "failed to create data dir for: %s", dsn)
		}
	}

	db, err := GetDB(dsn)
	if err != nil {
		return errors.Wrapf(err, "error opening database: %s", Redact(dsn))
	}
	defer db.Close()

	return migrate(db)
}

// GetDB opens the store addressed by dsn.
func GetDB(dsn string) (*sql.DB, error) {
	driver, source := sqliteDriver, dsn
	if IsPostgres(dsn) {
		driver = postgresDriver
	} else if !strings.Contains(dsn, "?") {
		source = dsn + "?" + sqlitePragmas
	}

	conn, err := sql.Open(driver, source)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", Redact(dsn))
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return errors.Wrap(err, "failed to create schema_version table")
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}

	files, err := fs.Glob(f, "sql/*.sql")
	if err != nil {
		return errors.Wrap(err, "failed to list migrations")
	}
	slices.Sort(files)

	for _, name := range files {
		v, err := migrationVersion(name)
		if err != nil {
			return err
		}
		if v <= current {
			continue
		}

		b, err := f.ReadFile(name)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration: %s", name)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrap(err, "failed to begin migration transaction")
		}
		if _, err := tx.Exec(string(b)); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "failed to apply migration: %s", name)
		}
		if _, err := tx.Exec(bind(db, "INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"),
			v, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "failed to record migration: %s", name)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "failed to commit migration: %s", name)
		}
		slog.Debug("migration applied", "version", v, "file", name)
	}

	return nil
}

// migrationVersion reads the numeric prefix of sql/NNN_name.sql.
func migrationVersion(name string) (int, error) {
	base := filepath.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.Errorf("migration without version prefix: %s", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid migration version: %s", name)
	}
	return v, nil
}

// SchemaVersion returns the latest applied migration.
func SchemaVersion(db *sql.DB) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, errors.Wrap(err, "failed to read schema version")
	}
	return v, nil
}

func isPostgresDB(db *sql.DB) bool {
	_, ok := db.Driver().(*pq.Driver)
	return ok
}

// bind rewrites ? placeholders to $n when db is PostgreSQL.
func bind(db *sql.DB, query string) string {
	if !isPostgresDB(db) {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Redact hides the password of a PostgreSQL DSN.
func Redact(dsn string) string {
	if !IsPostgres(dsn) {
		return dsn
	}
	scheme, rest, _ := strings.Cut(dsn, "://")
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, _ := strings.Cut(creds, ":")
	return scheme + "://" + user + ":***@" + host
}
