package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
)

// migrations create the ledger schema. Each statement is idempotent.
// users and posts mirror tables owned by the identity and content services.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id UUID PRIMARY KEY,
		username VARCHAR(150) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS accounts (
		account_id UUID PRIMARY KEY,
		owner_id UUID NOT NULL UNIQUE REFERENCES users(user_id) ON DELETE CASCADE,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id BIGSERIAL PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(account_id) ON DELETE CASCADE,
		amount BIGINT NOT NULL CHECK (amount > 0),
		kind VARCHAR(10) NOT NULL CHECK (kind IN ('deposit', 'withdraw', 'payment', 'receive', 'refund')),
		status VARCHAR(10) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'success', 'failed')),
		from_user_id UUID REFERENCES users(user_id) ON DELETE SET NULL,
		to_user_id UUID REFERENCES users(user_id) ON DELETE SET NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS transactions_account_recorded_idx
		ON transactions (account_id, recorded_at DESC);`,
	`CREATE TABLE IF NOT EXISTS posts (
		post_id BIGSERIAL PRIMARY KEY,
		author_id UUID NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		content TEXT NOT NULL DEFAULT '',
		attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
}

// Migrate applies the schema to the database.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			logger.Log.Errorw("migration failed", "step", i, "error", err)
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	logger.Log.Infow("schema migrated", "steps", len(migrations))
	return nil
}
