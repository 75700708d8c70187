package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"chatlink-service/internal/logger"
)

// Connect opens the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Migrations are idempotent and run in order on every start.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS documents (
            collection TEXT NOT NULL,
            id TEXT NOT NULL,
            data JSONB NOT NULL,
            create_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            update_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(collection, id)
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS documents_unique_key
            ON documents (collection, (data->>'uniqueKey'))
            WHERE COALESCE(data->>'uniqueKey', '') <> '';`,
	`CREATE INDEX IF NOT EXISTS documents_data_gin
            ON documents USING GIN (data jsonb_path_ops);`,
	`CREATE OR REPLACE FUNCTION documents_notify() RETURNS trigger AS $$
        BEGIN
            IF TG_OP = 'DELETE' THEN
                PERFORM pg_notify('docstore_changes', OLD.collection);
                RETURN OLD;
            END IF;
            PERFORM pg_notify('docstore_changes', NEW.collection);
            RETURN NEW;
        END;
        $$ LANGUAGE plpgsql;`,
	`DROP TRIGGER IF EXISTS documents_changed ON documents;`,
	`CREATE TRIGGER documents_changed
            AFTER INSERT OR UPDATE OR DELETE ON documents
            FOR EACH ROW EXECUTE FUNCTION documents_notify();`,
}

func runMigrations(db *sqlx.DB) error {
	for _, m := range Migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	logger.Infof("database migrations applied")
	return nil
}
