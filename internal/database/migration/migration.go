package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_registry_counter",
		SQL: `CREATE TABLE IF NOT EXISTS registry_counter (
  id    SMALLINT PRIMARY KEY CHECK (id = 1),
  value BIGINT   NOT NULL CHECK (value >= 0)
);`,
	},
	{
		Name: "seed_registry_counter",
		SQL:  `INSERT INTO registry_counter (id, value) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;`,
	},
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id                 BIGINT PRIMARY KEY CHECK (id > 0),
  title              TEXT   NOT NULL,
  owner              TEXT   NOT NULL,
  file_size          BIGINT NOT NULL CHECK (file_size > 0),
  registration_block BIGINT NOT NULL,
  description        TEXT   NOT NULL DEFAULT '',
  tags               JSONB  NOT NULL DEFAULT '[]'::jsonb
);`,
	},
	{
		Name: "create_index_documents_owner",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents (owner);`,
	},
	{
		Name: "create_table_document_permissions",
		SQL: `CREATE TABLE IF NOT EXISTS document_permissions (
  doc_id  BIGINT  NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  viewer  TEXT    NOT NULL,
  allowed BOOLEAN NOT NULL,
  PRIMARY KEY (doc_id, viewer)
);`,
	},
}

// EnsureMigrated checks if the 'documents' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	start := time.Now()
	log = log.With(zap.String("component", "database"))

	log.Info("db_migration_check", zap.String("status", "starting"))

	var exists bool
	query := "SELECT to_regclass('public.documents') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			zap.String("status", "error"),
			zap.Error(err),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			zap.String("status", "success"),
			zap.String("reason", "schema already exists"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	log.Info("db_migration_start", zap.String("status", "in_progress"))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("status", "error"),
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			zap.String("status", "success"),
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success",
		zap.String("status", "success"),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return nil
}
