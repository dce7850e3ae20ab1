package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountDB represents an account row in the database.
// Every user owns at most one account.
type AccountDB struct {
	AccountID uuid.UUID `json:"account_id" db:"account_id"` // Unique account identifier
	OwnerID   uuid.UUID `json:"owner_id" db:"owner_id"`     // Identifier of the account's owner
	Balance   int64     `json:"balance" db:"balance"`       // Current balance in the smallest currency unit
	CreatedAt time.Time `json:"created_at" db:"created_at"` // Timestamp when the account was created
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // Timestamp of the last balance change
}
