package models

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the type of a ledger movement.
type Kind string

// Supported transaction kinds
const (
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
	KindPayment  Kind = "payment"
	KindReceive  Kind = "receive"
	KindRefund   Kind = "refund"
)

// Status is the settlement state of a transaction.
type Status string

// Supported transaction statuses. Only StatusSuccess is written today.
const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// TransactionDB represents an immutable transaction row in the database.
type TransactionDB struct {
	TransactionID int64      `json:"transaction_id" db:"transaction_id"` // Sequential identifier
	AccountID     uuid.UUID  `json:"account_id" db:"account_id"`         // Account whose balance changed
	Amount        int64      `json:"amount" db:"amount"`                 // Positive magnitude of the movement
	Kind          Kind       `json:"kind" db:"kind"`                     // deposit, withdraw, payment, receive or refund
	Status        Status     `json:"status" db:"status"`                 // pending, success or failed
	FromUserID    *uuid.UUID `json:"from_user_id" db:"from_user_id"`     // Paying user, nil once the user is deleted
	ToUserID      *uuid.UUID `json:"to_user_id" db:"to_user_id"`         // Receiving user, nil once the user is deleted
	RecordedAt    time.Time  `json:"recorded_at" db:"recorded_at"`       // Set on insert, never mutated
}

// TransactionEvent is the message published for every committed transaction row.
type TransactionEvent struct {
	TransactionID int64      `json:"transaction_id"`
	AccountID     string     `json:"account_id"`
	Kind          Kind       `json:"kind"`
	Status        Status     `json:"status"`
	Amount        int64      `json:"amount"`
	FromUserID    *uuid.UUID `json:"from_user_id,omitempty"`
	ToUserID      *uuid.UUID `json:"to_user_id,omitempty"`
	RecordedAt    int64      `json:"recorded_at"` // Unix timestamp in seconds
}

// NewTransactionEvent builds the published form of a stored transaction.
func NewTransactionEvent(txn TransactionDB) TransactionEvent {
	return TransactionEvent{
		TransactionID: txn.TransactionID,
		AccountID:     txn.AccountID.String(),
		Kind:          txn.Kind,
		Status:        txn.Status,
		Amount:        txn.Amount,
		FromUserID:    txn.FromUserID,
		ToUserID:      txn.ToUserID,
		RecordedAt:    txn.RecordedAt.Unix(),
	}
}
