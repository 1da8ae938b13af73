package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Statements are kept one per entry: the mysql driver refuses multi-statement
// Exec unless the DSN enables it.

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
    id            CHAR(26)     NOT NULL PRIMARY KEY,
    name          VARCHAR(255) NOT NULL,
    email         VARCHAR(255) NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    role          VARCHAR(16)  NOT NULL DEFAULT 'user',
    disabled      TINYINT(1)   NOT NULL DEFAULT 0,
    created_at    DATETIME(6)  NOT NULL,
    UNIQUE KEY uq_accounts_email (email)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS items (
    id             CHAR(26)     NOT NULL PRIMARY KEY,
    name           VARCHAR(255) NOT NULL,
    name_key       VARCHAR(255) NOT NULL DEFAULT '',
    category       VARCHAR(255) NOT NULL,
    measuring_unit VARCHAR(16)  NOT NULL DEFAULT 'piece',
    quantity       INT          NOT NULL DEFAULT 0,
    description    TEXT         NOT NULL,
    refundable     TINYINT(1)   NOT NULL DEFAULT 0,
    status         VARCHAR(8)   NOT NULL DEFAULT 'in',
    added_by       CHAR(26)     NOT NULL,
    deleted_by     CHAR(26)     NULL,
    deleted_at     DATETIME(6)  NULL,
    created_at     DATETIME(6)  NOT NULL,
    updated_at     DATETIME(6)  NOT NULL,
    CONSTRAINT ck_items_quantity CHECK (quantity >= 0),
    KEY idx_items_category (category),
    KEY idx_items_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS releases (
    id                 CHAR(26)     NOT NULL PRIMARY KEY,
    item_id            CHAR(26)     NOT NULL,
    quantity           INT          NOT NULL,
    qty_returned       INT          NOT NULL DEFAULT 0,
    recipient          VARCHAR(255) NOT NULL,
    recipient_key      VARCHAR(255) NOT NULL DEFAULT '',
    released_by        CHAR(26)     NOT NULL,
    reason             TEXT         NOT NULL,
    returnable         TINYINT(1)   NOT NULL DEFAULT 0,
    expected_return_by DATETIME(6)  NULL,
    approval_status    VARCHAR(16)  NOT NULL DEFAULT 'pending',
    return_status      VARCHAR(24)  NOT NULL DEFAULT 'pending',
    created_at         DATETIME(6)  NOT NULL,
    updated_at         DATETIME(6)  NOT NULL,
    CONSTRAINT ck_releases_quantity CHECK (quantity > 0),
    KEY idx_releases_item (item_id, created_at),
    KEY idx_releases_overdue (returnable, expected_return_by),
    CONSTRAINT fk_releases_item FOREIGN KEY (item_id) REFERENCES items(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS returns (
    id                CHAR(26)     NOT NULL PRIMARY KEY,
    item_id           CHAR(26)     NOT NULL,
    release_id        CHAR(26)     NULL,
    returned_by       VARCHAR(255) NOT NULL,
    returned_by_email VARCHAR(255) NOT NULL DEFAULT '',
    quantity          INT          NOT NULL,
    item_condition    VARCHAR(16)  NOT NULL DEFAULT 'good',
    remarks           TEXT         NOT NULL,
    processed_by      CHAR(26)     NOT NULL,
    status            VARCHAR(16)  NOT NULL DEFAULT 'processed',
    created_at        DATETIME(6)  NOT NULL,
    updated_at        DATETIME(6)  NOT NULL,
    CONSTRAINT ck_returns_quantity CHECK (quantity > 0),
    KEY idx_returns_item (item_id, created_at),
    KEY idx_returns_release (release_id),
    CONSTRAINT fk_returns_item FOREIGN KEY (item_id) REFERENCES items(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS notifications (
    id         CHAR(26)     NOT NULL PRIMARY KEY,
    message    TEXT         NOT NULL,
    item_id    CHAR(26)     NULL,
    to_user    CHAR(26)     NULL,
    type       VARCHAR(32)  NOT NULL,
    meta       JSON         NULL,
    is_read    TINYINT(1)   NOT NULL DEFAULT 0,
    created_at DATETIME(6)  NOT NULL,
    KEY idx_notifications_user (to_user, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin', 'superadmin')),
    disabled      INTEGER NOT NULL DEFAULT 0,
    created_at    DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS items (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    name_key       TEXT NOT NULL DEFAULT '',
    category       TEXT NOT NULL,
    measuring_unit TEXT NOT NULL DEFAULT 'piece',
    quantity       INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    description    TEXT NOT NULL DEFAULT '',
    refundable     INTEGER NOT NULL DEFAULT 0,
    status         TEXT NOT NULL DEFAULT 'in' CHECK (status IN ('in', 'out', 'deleted')),
    added_by       TEXT NOT NULL,
    deleted_by     TEXT,
    deleted_at     DATETIME,
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_items_category ON items(category)`,
	`CREATE TABLE IF NOT EXISTS releases (
    id                 TEXT PRIMARY KEY,
    item_id            TEXT NOT NULL REFERENCES items(id),
    quantity           INTEGER NOT NULL CHECK (quantity > 0),
    qty_returned       INTEGER NOT NULL DEFAULT 0,
    recipient          TEXT NOT NULL,
    recipient_key      TEXT NOT NULL DEFAULT '',
    released_by        TEXT NOT NULL,
    reason             TEXT NOT NULL DEFAULT '',
    returnable         INTEGER NOT NULL DEFAULT 0,
    expected_return_by DATETIME,
    approval_status    TEXT NOT NULL DEFAULT 'pending',
    return_status      TEXT NOT NULL DEFAULT 'pending',
    created_at         DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_releases_item ON releases(item_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS returns (
    id                TEXT PRIMARY KEY,
    item_id           TEXT NOT NULL REFERENCES items(id),
    release_id        TEXT,
    returned_by       TEXT NOT NULL,
    returned_by_email TEXT NOT NULL DEFAULT '',
    quantity          INTEGER NOT NULL CHECK (quantity > 0),
    item_condition    TEXT NOT NULL DEFAULT 'good',
    remarks           TEXT NOT NULL DEFAULT '',
    processed_by      TEXT NOT NULL,
    status            TEXT NOT NULL DEFAULT 'processed',
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_returns_item ON returns(item_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
    id         TEXT PRIMARY KEY,
    message    TEXT NOT NULL,
    item_id    TEXT,
    to_user    TEXT,
    type       TEXT NOT NULL,
    meta       TEXT,
    is_read    INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(to_user, created_at)`,
}

// Migrate creates any missing tables for the given driver. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case DriverMySQL:
		stmts = mysqlSchema
	case DriverSQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unknown database driver %q", driver)
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("running schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
