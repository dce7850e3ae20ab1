package repositories

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

const ensureAccountQuery = `
	INSERT INTO accounts (account_id, owner_id, balance, created_at, updated_at)
	VALUES ($1, $2, 0, NOW(), NOW())
	ON CONFLICT (owner_id) DO NOTHING
`

// AccountRepository reads and writes account rows.
type AccountRepository struct {
	db       *sqlx.DB
	txGetter func(ctx context.Context) *sqlx.Tx
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sqlx.DB, txGetter func(ctx context.Context) *sqlx.Tx) *AccountRepository {
	return &AccountRepository{db: db, txGetter: txGetter}
}

// GetOrCreate returns the user's account, creating it with a zero balance when missing.
// Concurrent callers for the same user always end up with the same single row.
func (r *AccountRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.AccountDB, error) {
	if err := r.ensure(ctx, userID); err != nil {
		return nil, err
	}
	return r.GetByUserID(ctx, userID)
}

// GetByUserID returns the user's account or sql.ErrNoRows.
func (r *AccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.AccountDB, error) {
	const query = `
		SELECT account_id, owner_id, balance, created_at, updated_at
		FROM accounts
		WHERE owner_id = $1
	`

	var account models.AccountDB
	err := sqlx.GetContext(ctx, executor(ctx, r.db, r.txGetter), &account, query, userID)
	logQuery(query, []any{userID}, account.Balance, err)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// LockForUpdate creates missing accounts and takes row locks on the accounts of all given
// users until the surrounding transaction ends. Locks are always acquired in ascending
// user ID order, so two callers locking overlapping sets cannot deadlock each other.
// Must be called inside a transaction.
func (r *AccountRepository) LockForUpdate(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*models.AccountDB, error) {
	const query = `
		SELECT account_id, owner_id, balance, created_at, updated_at
		FROM accounts
		WHERE owner_id = $1
		FOR UPDATE
	`

	if r.txGetter == nil || r.txGetter(ctx) == nil {
		return nil, fmt.Errorf("lock accounts: no transaction in context")
	}
	exec := executor(ctx, r.db, r.txGetter)

	accounts := make(map[uuid.UUID]*models.AccountDB, len(userIDs))
	for _, userID := range lockOrder(userIDs) {
		if err := r.ensure(ctx, userID); err != nil {
			return nil, err
		}

		var account models.AccountDB
		err := sqlx.GetContext(ctx, exec, &account, query, userID)
		logQuery(query, []any{userID}, account.Balance, err)
		if err != nil {
			return nil, fmt.Errorf("lock account of %s: %w", userID, err)
		}
		accounts[userID] = &account
	}
	return accounts, nil
}

// UpdateBalance stores a new balance for the account.
func (r *AccountRepository) UpdateBalance(ctx context.Context, accountID uuid.UUID, balance int64) error {
	const query = `
		UPDATE accounts
		SET balance = $2, updated_at = NOW()
		WHERE account_id = $1
	`

	res, err := executor(ctx, r.db, r.txGetter).ExecContext(ctx, query, accountID, balance)
	var rowsAffected int64
	if res != nil {
		rowsAffected, _ = res.RowsAffected()
	}
	logQuery(query, []any{accountID, balance}, rowsAffected, err)

	if err != nil {
		return err
	}
	if rowsAffected != 1 {
		return fmt.Errorf("update balance of account %s: %d rows affected", accountID, rowsAffected)
	}
	return nil
}

// ensure inserts a zero-balance account for the user unless one exists.
func (r *AccountRepository) ensure(ctx context.Context, userID uuid.UUID) error {
	accountID := uuid.New()
	res, err := executor(ctx, r.db, r.txGetter).ExecContext(ctx, ensureAccountQuery, accountID, userID)
	var rowsAffected int64
	if res != nil {
		rowsAffected, _ = res.RowsAffected()
	}
	logQuery(ensureAccountQuery, []any{accountID, userID}, rowsAffected, err)
	return err
}

// lockOrder returns the distinct user IDs sorted by their byte representation.
func lockOrder(userIDs []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(userIDs))
	ordered := make([]uuid.UUID, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i][:], ordered[j][:]) < 0
	})
	return ordered
}
