package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Steward store (SQLite).
var Migrations = migrate.NewGroup("steward")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_grants",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_grants (
    id                      TEXT PRIMARY KEY,
    principal               TEXT NOT NULL,
    resource_owner          TEXT NOT NULL,
    resource_id             TEXT NOT NULL,
    level                   TEXT NOT NULL,
    status                  TEXT NOT NULL,
    expires_at              TEXT,
    requested_by            TEXT NOT NULL DEFAULT '',
    approved_by             TEXT NOT NULL DEFAULT '',
    rejection_reason        TEXT NOT NULL DEFAULT '',
    provision_pending       INTEGER NOT NULL DEFAULT 0,
    last_notified_threshold INTEGER NOT NULL DEFAULT 0,
    last_notified_at        TEXT,
    version                 INTEGER NOT NULL DEFAULT 1,
    created_at              TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at              TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_steward_grants_open
    ON steward_grants (principal, resource_owner, resource_id)
    WHERE status IN ('pending_approval', 'active');

CREATE INDEX IF NOT EXISTS idx_steward_grants_principal ON steward_grants (principal);
CREATE INDEX IF NOT EXISTS idx_steward_grants_owner ON steward_grants (resource_owner, resource_id);
CREATE INDEX IF NOT EXISTS idx_steward_grants_expiry ON steward_grants (status, expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_grants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_audit_entries",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_audit_entries (
    id          TEXT PRIMARY KEY,
    grant_id    TEXT NOT NULL REFERENCES steward_grants(id),
    actor       TEXT NOT NULL,
    action      TEXT NOT NULL,
    details     TEXT NOT NULL DEFAULT '{}',
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_steward_audit_grant ON steward_audit_entries (grant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_steward_audit_actor ON steward_audit_entries (actor);
CREATE INDEX IF NOT EXISTS idx_steward_audit_created ON steward_audit_entries (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_audit_entries`)
				return err
			},
		},
	)
}
