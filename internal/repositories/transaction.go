package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// TransactionRepository appends and lists ledger rows. Rows are never updated.
type TransactionRepository struct {
	db       *sqlx.DB
	txGetter func(ctx context.Context) *sqlx.Tx
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *sqlx.DB, txGetter func(ctx context.Context) *sqlx.Tx) *TransactionRepository {
	return &TransactionRepository{db: db, txGetter: txGetter}
}

// Append inserts the row and fills in its generated id and recording time.
func (r *TransactionRepository) Append(ctx context.Context, txn *models.TransactionDB) error {
	const query = `
		INSERT INTO transactions (account_id, amount, kind, status, from_user_id, to_user_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING transaction_id, recorded_at
	`
	args := []any{txn.AccountID, txn.Amount, string(txn.Kind), string(txn.Status), txn.FromUserID, txn.ToUserID}

	err := executor(ctx, r.db, r.txGetter).
		QueryRowxContext(ctx, query, args...).
		Scan(&txn.TransactionID, &txn.RecordedAt)
	logQuery(query, args, txn.TransactionID, err)

	return err
}

// ListByAccount returns the account's rows, newest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.TransactionDB, error) {
	const query = `
		SELECT transaction_id, account_id, amount, kind, status, from_user_id, to_user_id, recorded_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY recorded_at DESC, transaction_id DESC
	`

	txns := []models.TransactionDB{}
	err := sqlx.SelectContext(ctx, executor(ctx, r.db, r.txGetter), &txns, query, accountID)
	logQuery(query, []any{accountID}, len(txns), err)
	if err != nil {
		return nil, err
	}
	return txns, nil
}
