// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"fmt"
)

var baseMigrations = [...]string{
	`CREATE TABLE IF NOT EXISTS core_audit_journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		command TEXT NOT NULL DEFAULT '',
		plan_id TEXT NOT NULL DEFAULT '',
		execution_id TEXT NOT NULL DEFAULT '',
		approval_id TEXT NOT NULL DEFAULT '',
		payload BLOB NOT NULL,
		ts INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_core_audit_type_ts ON core_audit_journal(event_type, ts);`,
	`CREATE INDEX IF NOT EXISTS idx_core_audit_execution ON core_audit_journal(execution_id);`,
}

func applyMigrations(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range baseMigrations {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
