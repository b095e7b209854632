package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

const createUserSessionsSQL = `
CREATE TABLE IF NOT EXISTS user_sessions (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	expires_at TIMESTAMPTZ
);
`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createUserSessionsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS user_sessions`)
			return err
		},
	)
}
