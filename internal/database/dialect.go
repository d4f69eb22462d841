package database

import (
	"database/sql"
	"fmt"
)

// Dialect identifies the SQL flavour spoken by the progress store
type Dialect string

// Supported dialects
const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// ParseDialect converts a configured driver name into a Dialect
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case DialectMySQL, DialectSQLite:
		return Dialect(driver), nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// DriverName returns the database/sql driver registered for the dialect
func (d Dialect) DriverName() string {
	return string(d)
}

// InsertIgnore returns the statement prefix that inserts a row unless its key already exists
func (d Dialect) InsertIgnore() string {
	if d == DialectSQLite {
		return "INSERT OR IGNORE"
	}
	return "INSERT IGNORE"
}

// LockClause returns the suffix that write-locks the selected rows until the transaction ends.
// SQLite has no row locks, its transactions already hold the database write lock.
func (d Dialect) LockClause() string {
	if d == DialectSQLite {
		return ""
	}
	return " FOR UPDATE"
}

// InsertOrLock returns the insert prefix and suffix that create a row when its key is missing and otherwise
// keep the existing row unchanged. On MySQL the duplicate path takes an exclusive lock on the row right away,
// so concurrent first writes of a key queue on that lock instead of deadlocking on gap locks.
func (d Dialect) InsertOrLock(keyColumn string) (prefix, suffix string) {
	if d == DialectSQLite {
		return "INSERT OR IGNORE", ""
	}
	return "INSERT", fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", keyColumn, keyColumn)
}

// ReadTxOptions returns the options of transactions that only read a consistent snapshot.
// SQLite runs on a single connection, a plain transaction already sees one snapshot.
func (d Dialect) ReadTxOptions() *sql.TxOptions {
	if d == DialectSQLite {
		return nil
	}
	return &sql.TxOptions{ReadOnly: true}
}
