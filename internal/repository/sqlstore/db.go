package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"phreakmail-web/internal/repository"
)

// Driver selects the SQL dialect used by the repositories.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config describes how to reach the database.
type Config struct {
	Driver   Driver
	Path     string
	Name     string
	User     string
	Password string
	Host     string
	Port     string
	SSLMode  string
}

// DB is a database handle aware of its SQL dialect.
type DB struct {
	*sql.DB
	Driver Driver
}

// Wrap attaches a dialect to an already opened handle.
func Wrap(db *sql.DB, driver Driver) *DB {
	return &DB{DB: db, Driver: driver}
}

// Open connects to the configured database. For sqlite the file and its
// directory are created when missing.
func Open(cfg Config) (*DB, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return openSQLite(cfg.Path)
	case DriverPostgres:
		return openPostgres(cfg)
	case DriverMySQL:
		return openMySQL(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openSQLite(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// sqlite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return Wrap(db, DriverSQLite), nil
}

// sqliteDSN enables foreign keys on every connection the pool opens.
func sqliteDSN(path string) string {
	return path + "?_pragma=foreign_keys(1)"
}

func openPostgres(cfg Config) (*DB, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return Wrap(db, DriverPostgres), nil
}

func postgresDSN(cfg Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, port),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

func openMySQL(cfg Config) (*DB, error) {
	db, err := sql.Open("mysql", mysqlDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open mysql db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return Wrap(db, DriverMySQL), nil
}

func mysqlDSN(cfg Config) string {
	port := cfg.Port
	if port == "" {
		port = "3306"
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// rebind rewrites ? placeholders to $n for postgres.
func (db *DB) rebind(query string) string {
	if db.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ddl fills the dialect specific column types into a CREATE TABLE template.
// The template uses {{serial}} for the primary key and {{timestamp}} for times.
func (db *DB) ddl(tmpl string) string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	timestamp := "DATETIME"
	switch db.Driver {
	case DriverPostgres:
		serial = "BIGSERIAL PRIMARY KEY"
		timestamp = "TIMESTAMPTZ"
	case DriverMySQL:
		serial = "BIGINT AUTO_INCREMENT PRIMARY KEY"
		timestamp = "DATETIME(6)"
	}
	return strings.NewReplacer("{{serial}}", serial, "{{timestamp}}", timestamp).Replace(tmpl)
}

// insert runs an INSERT written with ? placeholders and returns the new id.
// MySQL has no RETURNING, so it reads LastInsertId instead.
func (db *DB) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if db.Driver == DriverMySQL {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, classify(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("last insert id: %w", err)
		}
		return id, nil
	}

	var id int64
	if err := db.QueryRowContext(ctx, db.rebind(query+"\nRETURNING id"), args...).Scan(&id); err != nil {
		return 0, classify(err)
	}
	return id, nil
}

// placeholders returns "?, ?, ?" with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// classify maps driver constraint errors onto repository sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %v", repository.ErrConflict, err)
		case "23503":
			return fmt.Errorf("%w: %v", repository.ErrReference, err)
		}
		return err
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return fmt.Errorf("%w: %v", repository.ErrConflict, err)
		case 1452:
			return fmt.Errorf("%w: %v", repository.ErrReference, err)
		}
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique"):
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	case strings.Contains(msg, "foreign key"):
		return fmt.Errorf("%w: %v", repository.ErrReference, err)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}
