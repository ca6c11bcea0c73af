// Package sqldb implements the document store on top of database/sql, for
// PostgreSQL (pgx) and SQLite (modernc, no cgo).
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	Name         string
	Driver       string // database/sql driver name
	GooseDialect string
	numbered     bool // $1, $2 placeholders instead of ?
}

var (
	Postgres = Dialect{Name: "postgres", Driver: "pgx", GooseDialect: "pgx", numbered: true}
	SQLite   = Dialect{Name: "sqlite", Driver: "sqlite", GooseDialect: "sqlite3"}
)

// DialectByName returns the dialect for "postgres" or "sqlite".
func DialectByName(name string) (Dialect, error) {
	switch name {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// Rebind rewrites ? placeholders for dialects using numbered placeholders.
// Queries in this package never contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
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

// Open prepares a connection pool and applies connection-level settings.
// For Postgres it does not wait for the server: callers ping.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name, err)
	}

	if d == SQLite {
		// A single connection serializes writers and keeps the pragmas
		// below in effect for every statement.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			`PRAGMA journal_mode=WAL;`,
			`PRAGMA busy_timeout=5000;`,
			`PRAGMA foreign_keys=ON;`,
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	return db, nil
}
