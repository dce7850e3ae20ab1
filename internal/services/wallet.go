package services

//go:generate mockgen -source=wallet.go -destination=wallet_mock.go -package=services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
	"github.com/segmentio/kafka-go"
)

// AccountStore reads and locks account rows.
type AccountStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.AccountDB, error)                    // Returns sql.ErrNoRows when absent
	LockForUpdate(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*models.AccountDB, error) // Get-or-create and lock in a fixed order
	UpdateBalance(ctx context.Context, accountID uuid.UUID, balance int64) error                     // Stores a new balance
}

// TransactionStore appends to and reads the ledger log.
type TransactionStore interface {
	Append(ctx context.Context, txn *models.TransactionDB) error                            // Inserts an immutable row
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.TransactionDB, error) // Newest first
}

// TxRunner runs a function as one atomic unit of work.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserReader checks the identity mirror.
type UserReader interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
}

// KafkaWriter defines a Kafka writer abstraction.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error // Writes messages to Kafka
	Close() error                                                   // Closes the Kafka writer
}

// WalletService is the only place where balances change.
// Every mutation locks the involved accounts, re-reads their balances and appends the
// ledger rows inside a single transaction.
type WalletService struct {
	txRunner     TxRunner
	accounts     AccountStore
	transactions TransactionStore
	users        UserReader
	kafkaWriter  KafkaWriter
}

// NewWalletService creates a new WalletService.
func NewWalletService(
	txRunner TxRunner,
	accounts AccountStore,
	transactions TransactionStore,
	users UserReader,
	kafkaWriter KafkaWriter,
) *WalletService {
	return &WalletService{
		txRunner:     txRunner,
		accounts:     accounts,
		transactions: transactions,
		users:        users,
		kafkaWriter:  kafkaWriter,
	}
}

// GetWallet returns the user's account.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*models.AccountDB, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, s.fail("get wallet", err, "userID", userID)
	}
	return account, nil
}

// ListTransactions returns the user's ledger rows, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID) ([]models.TransactionDB, error) {
	account, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	txns, err := s.transactions.ListByAccount(ctx, account.AccountID)
	if err != nil {
		return nil, s.fail("list transactions", err, "userID", userID)
	}
	return txns, nil
}

// Deposit adds funds to the user's account, creating the account on first use.
func (s *WalletService) Deposit(ctx context.Context, userID uuid.UUID, amount int64) (*models.Receipt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var (
		balance  int64
		appended []models.TransactionDB
	)
	err := s.txRunner.WithinTx(ctx, func(ctx context.Context) error {
		account, err := s.lockOne(ctx, userID)
		if err != nil {
			return err
		}
		if account.Balance > math.MaxInt64-amount {
			return ErrInvalidAmount
		}

		account.Balance += amount
		if err := s.accounts.UpdateBalance(ctx, account.AccountID, account.Balance); err != nil {
			return err
		}

		txn := models.TransactionDB{
			AccountID:  account.AccountID,
			Amount:     amount,
			Kind:       models.KindDeposit,
			Status:     models.StatusSuccess,
			FromUserID: &userID,
		}
		if err := s.transactions.Append(ctx, &txn); err != nil {
			return err
		}

		balance = account.Balance
		appended = []models.TransactionDB{txn}
		return nil
	})
	if err != nil {
		return nil, s.fail("deposit", err, "userID", userID, "amount", amount)
	}

	s.publishTransactions(ctx, appended...)

	return &models.Receipt{
		Balance: balance,
		Code:    models.CodeDepositSuccess,
		Message: fmt.Sprintf("Amount %d was added to your wallet", amount),
	}, nil
}

// Withdraw removes funds from the user's account.
// The balance is checked under the row lock; on ErrInsufficientBalance nothing is written.
func (s *WalletService) Withdraw(ctx context.Context, userID uuid.UUID, amount int64) (*models.Receipt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var (
		balance  int64
		appended []models.TransactionDB
	)
	err := s.txRunner.WithinTx(ctx, func(ctx context.Context) error {
		account, err := s.lockOne(ctx, userID)
		if err != nil {
			return err
		}
		if account.Balance < amount {
			return ErrInsufficientBalance
		}

		account.Balance -= amount
		if err := s.accounts.UpdateBalance(ctx, account.AccountID, account.Balance); err != nil {
			return err
		}

		txn := models.TransactionDB{
			AccountID:  account.AccountID,
			Amount:     amount,
			Kind:       models.KindWithdraw,
			Status:     models.StatusSuccess,
			FromUserID: &userID,
		}
		if err := s.transactions.Append(ctx, &txn); err != nil {
			return err
		}

		balance = account.Balance
		appended = []models.TransactionDB{txn}
		return nil
	})
	if err != nil {
		return nil, s.fail("withdraw", err, "userID", userID, "amount", amount)
	}

	s.publishTransactions(ctx, appended...)

	return &models.Receipt{
		Balance: balance,
		Code:    models.CodeWithdrawSuccess,
		Message: fmt.Sprintf("Amount %d was withdrawn from your wallet", amount),
	}, nil
}

// Transfer moves funds between two users and returns the sender's new balance.
// Both accounts are locked in ascending user ID order. A payment row is written to the
// sender's log and a receive row to the receiver's log. Sending to oneself is allowed and
// leaves the balance unchanged. isPurchase only changes the receipt code and message.
func (s *WalletService) Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount int64, isPurchase bool) (*models.Receipt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	exists, err := s.users.Exists(ctx, toUserID)
	if err != nil {
		return nil, s.fail("transfer", err, "from", fromUserID, "to", toUserID, "amount", amount)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	var (
		balance  int64
		appended []models.TransactionDB
	)
	err = s.txRunner.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.accounts.LockForUpdate(ctx, []uuid.UUID{fromUserID, toUserID})
		if err != nil {
			return err
		}
		sender, receiver := locked[fromUserID], locked[toUserID]
		if sender == nil || receiver == nil {
			return fmt.Errorf("accounts of %s and %s not locked", fromUserID, toUserID)
		}

		if sender.Balance < amount {
			return ErrInsufficientBalance
		}
		if sender != receiver && receiver.Balance > math.MaxInt64-amount {
			return ErrInvalidAmount
		}

		sender.Balance -= amount
		receiver.Balance += amount

		if err := s.accounts.UpdateBalance(ctx, sender.AccountID, sender.Balance); err != nil {
			return err
		}
		if receiver != sender {
			if err := s.accounts.UpdateBalance(ctx, receiver.AccountID, receiver.Balance); err != nil {
				return err
			}
		}

		payment := models.TransactionDB{
			AccountID:  sender.AccountID,
			Amount:     amount,
			Kind:       models.KindPayment,
			Status:     models.StatusSuccess,
			FromUserID: &fromUserID,
			ToUserID:   &toUserID,
		}
		if err := s.transactions.Append(ctx, &payment); err != nil {
			return err
		}

		receive := models.TransactionDB{
			AccountID:  receiver.AccountID,
			Amount:     amount,
			Kind:       models.KindReceive,
			Status:     models.StatusSuccess,
			FromUserID: &fromUserID,
			ToUserID:   &toUserID,
		}
		if err := s.transactions.Append(ctx, &receive); err != nil {
			return err
		}

		balance = sender.Balance
		appended = []models.TransactionDB{payment, receive}
		return nil
	})
	if err != nil {
		return nil, s.fail("transfer", err, "from", fromUserID, "to", toUserID, "amount", amount)
	}

	s.publishTransactions(ctx, appended...)

	if isPurchase {
		return &models.Receipt{
			Balance: balance,
			Code:    models.CodePurchaseSuccess,
			Message: "Purchase completed successfully",
		}, nil
	}
	return &models.Receipt{
		Balance: balance,
		Code:    models.CodeTransferSuccess,
		Message: fmt.Sprintf("Amount %d was transferred", amount),
	}, nil
}

// lockOne locks the account of a single user.
func (s *WalletService) lockOne(ctx context.Context, userID uuid.UUID) (*models.AccountDB, error) {
	locked, err := s.accounts.LockForUpdate(ctx, []uuid.UUID{userID})
	if err != nil {
		return nil, err
	}
	account, ok := locked[userID]
	if !ok || account == nil {
		return nil, fmt.Errorf("account of %s not locked", userID)
	}
	return account, nil
}

// fail logs err and returns it as is for caller errors, or wrapped with ErrWallet otherwise.
func (s *WalletService) fail(op string, err error, keysAndValues ...any) error {
	kv := append([]any{"op", op, "error", err}, keysAndValues...)
	if isCallerError(err) {
		logger.Log.Warnw("wallet operation rejected", kv...)
		return err
	}
	logger.Log.Errorw("wallet operation failed", kv...)
	return fmt.Errorf("%w: %s: %w", ErrWallet, op, err)
}

func isCallerError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrInsufficientBalance,
		ErrWalletNotFound,
		ErrUserNotFound,
		ErrPostNotFound,
		ErrPurchaseNotAllowed,
		ErrAlreadySold,
		ErrPriceNotSet,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// publishTransactions publishes committed ledger rows to Kafka.
// Failures are logged only: the ledger in the database stays the source of truth.
func (s *WalletService) publishTransactions(ctx context.Context, txns ...models.TransactionDB) {
	if len(txns) == 0 {
		return
	}
	if s.kafkaWriter == nil {
		logger.Log.Warnw("Kafka writer not configured, skipping publishing", "transactions", len(txns))
		return
	}

	msgs := make([]kafka.Message, 0, len(txns))
	for _, txn := range txns {
		data, err := json.Marshal(models.NewTransactionEvent(txn))
		if err != nil {
			logger.Log.Errorw("Failed to marshal transaction for Kafka", "transaction_id", txn.TransactionID, "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(txn.AccountID.String()),
			Value: data,
		})
	}

	if err := s.kafkaWriter.WriteMessages(ctx, msgs...); err != nil {
		logger.Log.Errorw("Failed to publish transactions to Kafka", "transactions", len(msgs), "error", err)
		return
	}
	logger.Log.Infow("Transactions published to Kafka", "transactions", len(msgs))
}
