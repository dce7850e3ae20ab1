package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseService_Purchase(t *testing.T) {
	ctx := context.Background()
	buyer, author := uuid.New(), uuid.New()
	const postID = int64(7)
	price := int64(200)

	listing := func(mutate func(l *models.Listing)) *models.Listing {
		l := &models.Listing{PostID: postID, AuthorID: author, Price: &price}
		if mutate != nil {
			mutate(l)
		}
		return l
	}

	tests := []struct {
		name       string
		lockErr    error
		setupMocks func(listings *MockListingStore, wallet *MockTransferer)
		wantErr    error
		wantCode   string
	}{
		{
			name:       "lock failure",
			lockErr:    context.DeadlineExceeded,
			setupMocks: func(listings *MockListingStore, wallet *MockTransferer) {},
			wantErr:    ErrWallet,
		},
		{
			name: "post not found",
			setupMocks: func(listings *MockListingStore, wallet *MockTransferer) {
				listings.EXPECT().GetListing(ctx, postID).Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrPostNotFound,
		},
		{
			name: "post store failure",
			setupMocks: func(listings *MockListingStore, wallet *MockTransferer) {
				listings.EXPECT().GetListing(ctx, postID).Return(nil, sql.ErrConnDone)
			},
			wantErr: ErrWallet,
		},
		{
			name: "self purchase",
			setupMocks: func(listings *MockListingStore, wallet *MockTransferer) {
				listings.EXPECT().GetListing(ctx, postID).Return(listing(func(l *models.Listing) { l.AuthorID = buyer }), nil)
			},
			wantErr: ErrPurchaseNotAllowed,
		},
		{
			name: "already sold",
			setupMocks: func(listings *MockListingStore, wallet *MockTransferer) {
				listings.EXPECT().GetListing(ctx, postID).Return(listing(func(l *models.Listing) { l.IsSold = true }), nil)
			},
			wantErr: ErrAlreadySold,
		},
		{
			name: "price not set",
			setupMocks: func(listings *MockListingStore, wallet *MockTransferer) {
				listings.EXPECT().GetListing(ctx, postID).Return(listing(func(l *models.Listing) { l.Price = nil }), nil)
			},
			wantErr: ErrPriceNotSet,
		},
		{
			name: "insufficient balance leaves listing unsold",
			setupMocks: func(listings *MockListingStore, wallet *MockTransferer) {
				listings.EXPECT().GetListing(ctx, postID).Return(listing(nil), nil)
				wallet.EXPECT().Transfer(ctx, buyer, author, price, true).Return(nil, ErrInsufficientBalance)
			},
			wantErr: ErrInsufficientBalance,
		},
		{
			name: "success marks sold",
			setupMocks: func(listings *MockListingStore, wallet *MockTransferer) {
				listings.EXPECT().GetListing(ctx, postID).Return(listing(nil), nil)
				wallet.EXPECT().Transfer(ctx, buyer, author, price, true).
					Return(&models.Receipt{Balance: 300, Code: models.CodePurchaseSuccess}, nil)
				listings.EXPECT().MarkSold(ctx, postID).Return(nil)
			},
			wantCode: models.CodePurchaseSuccess,
		},
		{
			name: "write-back failure still reports success",
			setupMocks: func(listings *MockListingStore, wallet *MockTransferer) {
				listings.EXPECT().GetListing(ctx, postID).Return(listing(nil), nil)
				wallet.EXPECT().Transfer(ctx, buyer, author, price, true).
					Return(&models.Receipt{Balance: 300, Code: models.CodePurchaseSuccess}, nil)
				listings.EXPECT().MarkSold(ctx, postID).Return(errors.New("posts table locked"))
			},
			wantCode: models.CodePurchaseSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			listings := NewMockListingStore(ctrl)
			wallet := NewMockTransferer(ctrl)
			unlocked := 0
			if tt.lockErr != nil {
				listings.EXPECT().LockPost(ctx, postID).Return(nil, tt.lockErr)
			} else {
				listings.EXPECT().LockPost(ctx, postID).Return(func() { unlocked++ }, nil)
			}
			tt.setupMocks(listings, wallet)

			svc := NewPurchaseService(listings, wallet)
			receipt, err := svc.Purchase(ctx, buyer, postID)

			if tt.lockErr == nil {
				assert.Equal(t, 1, unlocked)
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, receipt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, receipt.Code)
			assert.Equal(t, int64(300), receipt.Balance)
		})
	}
}

// listingBook is an in-memory ListingStore whose lock serializes buyers of a post.
type listingBook struct {
	mu      sync.Mutex
	locks   map[int64]*sync.Mutex
	listing models.Listing
}

func (b *listingBook) LockPost(_ context.Context, postID int64) (func(), error) {
	b.mu.Lock()
	l, ok := b.locks[postID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[postID] = l
	}
	b.mu.Unlock()
	l.Lock()
	return l.Unlock, nil
}

func (b *listingBook) GetListing(_ context.Context, _ int64) (*models.Listing, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.listing
	return &l, nil
}

func (b *listingBook) MarkSold(_ context.Context, _ int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listing.IsSold = true
	return nil
}

// slowWallet counts transfers and holds each one open until released.
type slowWallet struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (w *slowWallet) Transfer(_ context.Context, _, _ uuid.UUID, _ int64, _ bool) (*models.Receipt, error) {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	w.entered <- struct{}{}
	<-w.release
	return &models.Receipt{Code: models.CodePurchaseSuccess}, nil
}

func TestPurchaseService_OverlappingBuyersPayOnce(t *testing.T) {
	ctx := context.Background()
	price := int64(50)
	book := &listingBook{
		locks:   map[int64]*sync.Mutex{},
		listing: models.Listing{PostID: 1, AuthorID: uuid.New(), Price: &price},
	}
	wallet := &slowWallet{entered: make(chan struct{}, 2), release: make(chan struct{})}
	svc := NewPurchaseService(book, wallet)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Purchase(ctx, uuid.New(), 1)
			errs <- err
		}()
	}

	// First buyer is inside Transfer; the second must be parked on the lock.
	<-wallet.entered
	close(wallet.release)

	var succeeded, sold int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadySold):
			sold++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, sold)
	assert.Equal(t, 1, wallet.calls)
	assert.True(t, book.listing.IsSold)
}
