package models

// Receipt is the outcome of a balance-changing operation.
type Receipt struct {
	Balance int64  // Balance of the acting user after commit
	Code    string // Machine-readable success code, e.g. DEPOSIT_SUCCESS
	Message string // Human-readable message
}

// Success codes returned with receipts
const (
	CodeDepositSuccess  = "DEPOSIT_SUCCESS"
	CodeWithdrawSuccess = "WITHDRAW_SUCCESS"
	CodeTransferSuccess = "TRANSFER_SUCCESS"
	CodePurchaseSuccess = "PURCHASE_SUCCESS"
)
