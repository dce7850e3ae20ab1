package services

//go:generate mockgen -source=purchase.go -destination=purchase_mock.go -package=services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// ListingStore reads marketplace listings and writes back the sold flag.
type ListingStore interface {
	LockPost(ctx context.Context, postID int64) (func(), error)            // Serializes purchases of one post
	GetListing(ctx context.Context, postID int64) (*models.Listing, error) // Returns sql.ErrNoRows when absent
	MarkSold(ctx context.Context, postID int64) error                      // Sets the sold flag
}

// Transferer moves funds between users.
type Transferer interface {
	Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount int64, isPurchase bool) (*models.Receipt, error)
}

// PurchaseService settles marketplace purchases on top of the wallet.
type PurchaseService struct {
	listings ListingStore
	wallet   Transferer
}

// NewPurchaseService creates a new PurchaseService.
func NewPurchaseService(listings ListingStore, wallet Transferer) *PurchaseService {
	return &PurchaseService{listings: listings, wallet: wallet}
}

// Purchase pays the listing's price from the buyer to the author and marks the post sold.
//
// The whole sequence runs under a per-post lock and the listing is read only after the
// lock is held, so of two overlapping buyers the second sees the post already sold.
// The sold flag is written after the wallet transaction has committed. If that write
// fails the money has still moved and the purchase is reported as successful; the
// failure is logged for an operator to fix the listing by hand.
func (s *PurchaseService) Purchase(ctx context.Context, buyerID uuid.UUID, postID int64) (*models.Receipt, error) {
	unlock, err := s.listings.LockPost(ctx, postID)
	if err != nil {
		logger.Log.Errorw("failed to lock post", "postID", postID, "buyerID", buyerID, "error", err)
		return nil, fmt.Errorf("%w: lock post: %w", ErrWallet, err)
	}
	defer unlock()

	listing, err := s.listings.GetListing(ctx, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		logger.Log.Errorw("failed to load listing", "postID", postID, "error", err)
		return nil, fmt.Errorf("%w: get listing: %w", ErrWallet, err)
	}

	if listing.AuthorID == buyerID {
		return nil, ErrPurchaseNotAllowed
	}
	if listing.IsSold {
		return nil, ErrAlreadySold
	}
	if listing.Price == nil {
		return nil, ErrPriceNotSet
	}

	receipt, err := s.wallet.Transfer(ctx, buyerID, listing.AuthorID, *listing.Price, true)
	if err != nil {
		return nil, err
	}

	if err := s.listings.MarkSold(ctx, postID); err != nil {
		logger.Log.Errorw("purchase settled but listing not marked sold",
			"postID", postID, "buyerID", buyerID, "authorID", listing.AuthorID, "price", *listing.Price, "error", err)
	}

	return receipt, nil
}
