package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type walletMocks struct {
	tx       *MockTxRunner
	accounts *MockAccountStore
	txns     *MockTransactionStore
	users    *MockUserReader
	kafka    *MockKafkaWriter
}

func newTestWalletService(t *testing.T) (*WalletService, walletMocks) {
	ctrl := gomock.NewController(t)
	m := walletMocks{
		tx:       NewMockTxRunner(ctrl),
		accounts: NewMockAccountStore(ctrl),
		txns:     NewMockTransactionStore(ctrl),
		users:    NewMockUserReader(ctrl),
		kafka:    NewMockKafkaWriter(ctrl),
	}
	return NewWalletService(m.tx, m.accounts, m.txns, m.users, m.kafka), m
}

// runInline makes the mocked TxRunner execute the unit of work directly.
func (m walletMocks) runInline() {
	m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

func account(owner uuid.UUID, balance int64) *models.AccountDB {
	return &models.AccountDB{AccountID: uuid.New(), OwnerID: owner, Balance: balance}
}

func TestWalletService_InvalidAmount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestWalletService(t)
	userID, other := uuid.New(), uuid.New()

	for _, amount := range []int64{0, -1, math.MinInt64} {
		_, err := svc.Deposit(ctx, userID, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = svc.Withdraw(ctx, userID, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = svc.Transfer(ctx, userID, other, amount, false)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestWalletService_Deposit(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	svc, m := newTestWalletService(t)

	acc := account(userID, 100)
	m.runInline()
	m.accounts.EXPECT().LockForUpdate(gomock.Any(), []uuid.UUID{userID}).
		Return(map[uuid.UUID]*models.AccountDB{userID: acc}, nil)
	m.accounts.EXPECT().UpdateBalance(gomock.Any(), acc.AccountID, int64(150)).Return(nil)
	m.txns.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, txn *models.TransactionDB) error {
			assert.Equal(t, acc.AccountID, txn.AccountID)
			assert.Equal(t, int64(50), txn.Amount)
			assert.Equal(t, models.KindDeposit, txn.Kind)
			assert.Equal(t, models.StatusSuccess, txn.Status)
			require.NotNil(t, txn.FromUserID)
			assert.Equal(t, userID, *txn.FromUserID)
			assert.Nil(t, txn.ToUserID)
			txn.TransactionID = 1
			return nil
		})
	m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msgs ...kafka.Message) error {
			require.Len(t, msgs, 1)
			assert.Equal(t, acc.AccountID.String(), string(msgs[0].Key))

			var event models.TransactionEvent
			require.NoError(t, json.Unmarshal(msgs[0].Value, &event))
			assert.Equal(t, int64(1), event.TransactionID)
			assert.Equal(t, models.KindDeposit, event.Kind)
			assert.Equal(t, int64(50), event.Amount)
			return nil
		})

	receipt, err := svc.Deposit(ctx, userID, 50)

	require.NoError(t, err)
	assert.Equal(t, int64(150), receipt.Balance)
	assert.Equal(t, models.CodeDepositSuccess, receipt.Code)
	assert.NotEmpty(t, receipt.Message)
}

func TestWalletService_Deposit_Overflow(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	svc, m := newTestWalletService(t)

	m.runInline()
	m.accounts.EXPECT().LockForUpdate(gomock.Any(), []uuid.UUID{userID}).
		Return(map[uuid.UUID]*models.AccountDB{userID: account(userID, math.MaxInt64-1)}, nil)

	_, err := svc.Deposit(ctx, userID, 2)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.NotErrorIs(t, err, ErrWallet)
}

func TestWalletService_Deposit_StorageErrors(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	errDB := errors.New("connection reset")

	t.Run("lock", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		m.runInline()
		m.accounts.EXPECT().LockForUpdate(gomock.Any(), gomock.Any()).Return(nil, errDB)

		_, err := svc.Deposit(ctx, userID, 10)
		assert.ErrorIs(t, err, ErrWallet)
		assert.ErrorIs(t, err, errDB)
	})

	t.Run("append", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		acc := account(userID, 0)
		m.runInline()
		m.accounts.EXPECT().LockForUpdate(gomock.Any(), gomock.Any()).
			Return(map[uuid.UUID]*models.AccountDB{userID: acc}, nil)
		m.accounts.EXPECT().UpdateBalance(gomock.Any(), acc.AccountID, int64(10)).Return(nil)
		m.txns.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errDB)

		_, err := svc.Deposit(ctx, userID, 10)
		assert.ErrorIs(t, err, ErrWallet)
		assert.ErrorIs(t, err, errDB)
	})

	t.Run("commit", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		m.tx.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Return(errDB)

		_, err := svc.Deposit(ctx, userID, 10)
		assert.ErrorIs(t, err, ErrWallet)
	})

	t.Run("account missing from lock result", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		m.runInline()
		m.accounts.EXPECT().LockForUpdate(gomock.Any(), gomock.Any()).
			Return(map[uuid.UUID]*models.AccountDB{}, nil)

		_, err := svc.Deposit(ctx, userID, 10)
		assert.ErrorIs(t, err, ErrWallet)
	})
}

func TestWalletService_Withdraw(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	svc, m := newTestWalletService(t)

	acc := account(userID, 100)
	m.runInline()
	m.accounts.EXPECT().LockForUpdate(gomock.Any(), []uuid.UUID{userID}).
		Return(map[uuid.UUID]*models.AccountDB{userID: acc}, nil)
	m.accounts.EXPECT().UpdateBalance(gomock.Any(), acc.AccountID, int64(30)).Return(nil)
	m.txns.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, txn *models.TransactionDB) error {
			assert.Equal(t, models.KindWithdraw, txn.Kind)
			assert.Equal(t, int64(70), txn.Amount)
			assert.Equal(t, userID, *txn.FromUserID)
			return nil
		})
	m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(nil)

	receipt, err := svc.Withdraw(ctx, userID, 70)

	require.NoError(t, err)
	assert.Equal(t, int64(30), receipt.Balance)
	assert.Equal(t, models.CodeWithdrawSuccess, receipt.Code)
}

func TestWalletService_Withdraw_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	svc, m := newTestWalletService(t)

	// No UpdateBalance, Append or publish may happen
	m.runInline()
	m.accounts.EXPECT().LockForUpdate(gomock.Any(), []uuid.UUID{userID}).
		Return(map[uuid.UUID]*models.AccountDB{userID: account(userID, 30)}, nil)

	_, err := svc.Withdraw(ctx, userID, 50)

	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NotErrorIs(t, err, ErrWallet)
}

func TestWalletService_Transfer(t *testing.T) {
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()
	svc, m := newTestWalletService(t)

	sender, receiver := account(from, 100), account(to, 10)
	var appended []models.TransactionDB

	m.users.EXPECT().Exists(gomock.Any(), to).Return(true, nil)
	m.runInline()
	m.accounts.EXPECT().LockForUpdate(gomock.Any(), []uuid.UUID{from, to}).
		Return(map[uuid.UUID]*models.AccountDB{from: sender, to: receiver}, nil)
	m.accounts.EXPECT().UpdateBalance(gomock.Any(), sender.AccountID, int64(60)).Return(nil)
	m.accounts.EXPECT().UpdateBalance(gomock.Any(), receiver.AccountID, int64(50)).Return(nil)
	m.txns.EXPECT().Append(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, txn *models.TransactionDB) error {
			appended = append(appended, *txn)
			return nil
		})
	m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	receipt, err := svc.Transfer(ctx, from, to, 40, false)

	require.NoError(t, err)
	assert.Equal(t, int64(60), receipt.Balance)
	assert.Equal(t, models.CodeTransferSuccess, receipt.Code)

	require.Len(t, appended, 2)
	assert.Equal(t, models.KindPayment, appended[0].Kind)
	assert.Equal(t, sender.AccountID, appended[0].AccountID)
	assert.Equal(t, models.KindReceive, appended[1].Kind)
	assert.Equal(t, receiver.AccountID, appended[1].AccountID)
	for _, txn := range appended {
		assert.Equal(t, int64(40), txn.Amount)
		assert.Equal(t, from, *txn.FromUserID)
		assert.Equal(t, to, *txn.ToUserID)
		assert.Equal(t, models.StatusSuccess, txn.Status)
	}
}

func TestWalletService_Transfer_PurchaseReceipt(t *testing.T) {
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()
	svc, m := newTestWalletService(t)

	sender, receiver := account(from, 500), account(to, 0)
	m.users.EXPECT().Exists(gomock.Any(), to).Return(true, nil)
	m.runInline()
	m.accounts.EXPECT().LockForUpdate(gomock.Any(), gomock.Any()).
		Return(map[uuid.UUID]*models.AccountDB{from: sender, to: receiver}, nil)
	m.accounts.EXPECT().UpdateBalance(gomock.Any(), gomock.Any(), gomock.Any()).Times(2).Return(nil)
	m.txns.EXPECT().Append(gomock.Any(), gomock.Any()).Times(2).Return(nil)
	m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	receipt, err := svc.Transfer(ctx, from, to, 200, true)

	require.NoError(t, err)
	assert.Equal(t, int64(300), receipt.Balance)
	assert.Equal(t, models.CodePurchaseSuccess, receipt.Code)
}

func TestWalletService_Transfer_Rejections(t *testing.T) {
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()

	t.Run("unknown recipient", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		m.users.EXPECT().Exists(gomock.Any(), to).Return(false, nil)

		_, err := svc.Transfer(ctx, from, to, 10, false)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("recipient lookup fails", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		m.users.EXPECT().Exists(gomock.Any(), to).Return(false, sql.ErrConnDone)

		_, err := svc.Transfer(ctx, from, to, 10, false)
		assert.ErrorIs(t, err, ErrWallet)
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})

	t.Run("insufficient balance writes nothing", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		sender, receiver := account(from, 30), account(to, 10)
		m.users.EXPECT().Exists(gomock.Any(), to).Return(true, nil)
		m.runInline()
		m.accounts.EXPECT().LockForUpdate(gomock.Any(), gomock.Any()).
			Return(map[uuid.UUID]*models.AccountDB{from: sender, to: receiver}, nil)

		_, err := svc.Transfer(ctx, from, to, 40, false)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, int64(30), sender.Balance)
		assert.Equal(t, int64(10), receiver.Balance)
	})

	t.Run("receiver update fails", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		sender, receiver := account(from, 100), account(to, 0)
		m.users.EXPECT().Exists(gomock.Any(), to).Return(true, nil)
		m.runInline()
		m.accounts.EXPECT().LockForUpdate(gomock.Any(), gomock.Any()).
			Return(map[uuid.UUID]*models.AccountDB{from: sender, to: receiver}, nil)
		m.accounts.EXPECT().UpdateBalance(gomock.Any(), sender.AccountID, int64(60)).Return(nil)
		m.accounts.EXPECT().UpdateBalance(gomock.Any(), receiver.AccountID, int64(40)).Return(assert.AnError)

		_, err := svc.Transfer(ctx, from, to, 40, false)
		assert.ErrorIs(t, err, ErrWallet)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestWalletService_Transfer_Self(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	svc, m := newTestWalletService(t)

	acc := account(userID, 100)
	m.users.EXPECT().Exists(gomock.Any(), userID).Return(true, nil)
	m.runInline()
	m.accounts.EXPECT().LockForUpdate(gomock.Any(), []uuid.UUID{userID, userID}).
		Return(map[uuid.UUID]*models.AccountDB{userID: acc}, nil)
	m.accounts.EXPECT().UpdateBalance(gomock.Any(), acc.AccountID, int64(100)).Return(nil)
	m.txns.EXPECT().Append(gomock.Any(), gomock.Any()).Times(2).Return(nil)
	m.kafka.EXPECT().WriteMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	receipt, err := svc.Transfer(ctx, userID, userID, 40, false)

	require.NoError(t, err)
	assert.Equal(t, int64(100), receipt.Balance)
}

func TestWalletService_GetWallet(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("found", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		acc := account(userID, 42)
		m.accounts.EXPECT().GetByUserID(ctx, userID).Return(acc, nil)

		got, err := svc.GetWallet(ctx, userID)
		assert.NoError(t, err)
		assert.Equal(t, acc, got)
	})

	t.Run("not found", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		m.accounts.EXPECT().GetByUserID(ctx, userID).Return(nil, sql.ErrNoRows)

		_, err := svc.GetWallet(ctx, userID)
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})

	t.Run("storage error", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		m.accounts.EXPECT().GetByUserID(ctx, userID).Return(nil, sql.ErrConnDone)

		_, err := svc.GetWallet(ctx, userID)
		assert.ErrorIs(t, err, ErrWallet)
	})
}

func TestWalletService_ListTransactions(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("returns log", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		acc := account(userID, 0)
		txns := []models.TransactionDB{{TransactionID: 2}, {TransactionID: 1}}
		m.accounts.EXPECT().GetByUserID(ctx, userID).Return(acc, nil)
		m.txns.EXPECT().ListByAccount(ctx, acc.AccountID).Return(txns, nil)

		got, err := svc.ListTransactions(ctx, userID)
		assert.NoError(t, err)
		assert.Equal(t, txns, got)
	})

	t.Run("no wallet", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		m.accounts.EXPECT().GetByUserID(ctx, userID).Return(nil, sql.ErrNoRows)

		_, err := svc.ListTransactions(ctx, userID)
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})

	t.Run("storage error", func(t *testing.T) {
		svc, m := newTestWalletService(t)
		acc := account(userID, 0)
		m.accounts.EXPECT().GetByUserID(ctx, userID).Return(acc, nil)
		m.txns.EXPECT().ListByAccount(ctx, acc.AccountID).Return(nil, sql.ErrConnDone)

		_, err := svc.ListTransactions(ctx, userID)
		assert.ErrorIs(t, err, ErrWallet)
	})
}

func TestWalletService_publishTransactions(t *testing.T) {
	ctx := context.Background()
	txn := models.TransactionDB{
		TransactionID: 123,
		AccountID:     uuid.New(),
		Amount:        1000,
		Kind:          models.KindDeposit,
		Status:        models.StatusSuccess,
	}

	ctrl := gomock.NewController(t)
	mockKafka := NewMockKafkaWriter(ctrl)
	svc := &WalletService{kafkaWriter: mockKafka}

	mockKafka.EXPECT().WriteMessages(ctx, gomock.Any()).Return(nil).Times(1)
	svc.publishTransactions(ctx, txn)

	// Publishing errors are swallowed
	mockKafka.EXPECT().WriteMessages(ctx, gomock.Any()).Return(errors.New("kafka error")).Times(1)
	svc.publishTransactions(ctx, txn)

	// Nothing to publish
	svc.publishTransactions(ctx)

	// nil KafkaWriter must not panic
	svc = &WalletService{}
	assert.NotPanics(t, func() { svc.publishTransactions(ctx, txn) })
}
