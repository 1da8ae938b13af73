package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"storeroom-backend/internal/platform/config"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Open connects to the configured store and checks it is reachable.
func Open(c config.DatabaseConfig) (*sql.DB, error) {
	switch c.Driver {
	case DriverMySQL:
		return connectMySQL(c)
	case DriverSQLite:
		return OpenSQLite(c.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", c.Driver)
	}
}

func connectMySQL(c config.DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, fmt.Errorf("preparing mysql connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to mysql: %w", err)
	}

	// keep the pool well below max_connections on the server
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// OpenSQLite opens a SQLite database and configures pragmas. Writes are
// serialized through a single connection.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	return db, nil
}

// IsDuplicateKey reports whether err is a unique constraint violation on
// either backend.
func IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
