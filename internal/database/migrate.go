package database

import (
	"context"
	"fmt"

	schema "steward/internal/database/sql"
	"steward/internal/logging"
)

// EnsureSchema applies the embedded schema. Every statement is idempotent
// (CREATE ... IF NOT EXISTS), so re-running on an initialized database is safe.
func EnsureSchema(ctx context.Context, db PostgresConn, logger logging.Logger) error {
	content, err := schema.Content.ReadFile("schema/steward.sql")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("Schema ensured")
	return nil
}
