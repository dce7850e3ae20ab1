package services

import "errors"

// Caller errors. They are returned unwrapped and never change any state.
var (
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBalance is returned when the balance checked under lock is lower than the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrWalletNotFound is returned by read operations for users that never used their wallet.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrUserNotFound is returned when the transfer recipient is unknown.
	ErrUserNotFound = errors.New("user not found")
	// ErrPostNotFound is returned when the purchased post does not exist.
	ErrPostNotFound = errors.New("post not found")
	// ErrPurchaseNotAllowed is returned when the buyer is the author of the post.
	ErrPurchaseNotAllowed = errors.New("purchase not allowed")
	// ErrAlreadySold is returned when the post is already marked sold.
	ErrAlreadySold = errors.New("post already sold")
	// ErrPriceNotSet is returned when the post carries no usable price.
	ErrPriceNotSet = errors.New("price not set")
)

// ErrWallet marks unexpected storage or consistency failures.
// The underlying cause stays reachable with errors.Is / errors.As.
var ErrWallet = errors.New("wallet error")
