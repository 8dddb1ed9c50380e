package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Open opens and verifies a single-use connection. Callers own Close.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("openDB: open %s database: %w", driver, err)
	}

	// The job runs one query per process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("openDB: verify %s connection: %w", driver, err)
	}

	return db, nil
}

// DSNParams are the discrete connection settings a DSN is built from.
type DSNParams struct {
	Driver   string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

// BuildDSN renders connection parameters in the form the driver expects.
// SQLite treats Name as the database file path.
func BuildDSN(p DSNParams) (string, error) {
	switch p.Driver {
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(p.User, p.Password),
			Host:   net.JoinHostPort(p.Host, p.Port),
			Path:   "/" + p.Name,
		}
		if p.SSLMode != "" {
			u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
		}
		return u.String(), nil
	case DriverSQLite:
		if p.Name == "" {
			return "", fmt.Errorf("build dsn: sqlite database path is empty")
		}
		return p.Name, nil
	}

	return "", fmt.Errorf("build dsn: unsupported driver %q", p.Driver)
}
