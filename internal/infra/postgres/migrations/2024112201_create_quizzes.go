package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations holds the schema for quizzes and admin sessions.
var Migrations = migrate.NewMigrations()

const createQuizzesSQL = `
CREATE TABLE IF NOT EXISTS quizzes (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

const createQuizOwnerIndexSQL = `CREATE INDEX IF NOT EXISTS quizzes_owner_id_idx ON quizzes (owner_id)`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.ExecContext(ctx, createQuizzesSQL); err != nil {
				return err
			}
			_, err := db.ExecContext(ctx, createQuizOwnerIndexSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS quizzes`)
			return err
		},
	)
}
