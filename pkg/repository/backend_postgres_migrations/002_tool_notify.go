package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upToolNotify, downToolNotify)
}

// Every write to tool notifies listeners on collection_changed with the path.
func upToolNotify(tx *sql.Tx) error {
	stmts := []string{
		`CREATE OR REPLACE FUNCTION notify_collection_changed() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' THEN
				PERFORM pg_notify('collection_changed', OLD.path);
				RETURN OLD;
			END IF;
			PERFORM pg_notify('collection_changed', NEW.path);
			IF TG_OP = 'UPDATE' AND OLD.path <> NEW.path THEN
				PERFORM pg_notify('collection_changed', OLD.path);
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,

		`DROP TRIGGER IF EXISTS tool_collection_changed ON tool`,

		`CREATE TRIGGER tool_collection_changed
			AFTER INSERT OR UPDATE OR DELETE ON tool
			FOR EACH ROW EXECUTE FUNCTION notify_collection_changed()`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func downToolNotify(tx *sql.Tx) error {
	stmts := []string{
		`DROP TRIGGER IF EXISTS tool_collection_changed ON tool`,
		`DROP FUNCTION IF EXISTS notify_collection_changed()`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
