package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upInitial, downInitial)
}

func upInitial(tx *sql.Tx) error {
	createStatements := []string{
		// Tool records, one flat field set per store-assigned id
		`CREATE TABLE IF NOT EXISTS tool (
			id TEXT PRIMARY KEY,
			path VARCHAR(255) NOT NULL,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			description TEXT NOT NULL,
			category VARCHAR(64) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE INDEX IF NOT EXISTS idx_tool_path ON tool(path, id);`,
	}

	for _, stmt := range createStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func downInitial(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS tool;`)
	return err
}
