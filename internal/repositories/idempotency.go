package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// IdempotencyRepository stores responses of mutating requests in Redis
type IdempotencyRepository struct {
	client *redis.Client
	exp    time.Duration // how long a key is remembered
}

// NewIdempotencyRepository creates a new repository instance with the given TTL
func NewIdempotencyRepository(client *redis.Client, expiration time.Duration) *IdempotencyRepository {
	return &IdempotencyRepository{
		client: client,
		exp:    expiration,
	}
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// Reserve claims the key for a new request with the given fingerprint.
// It returns false when the key is already taken.
func (r *IdempotencyRepository) Reserve(ctx context.Context, key, fingerprint string) (bool, error) {
	data, err := json.Marshal(models.CachedResponse{Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}

	ok, err := r.client.SetNX(ctx, idempotencyKey(key), data, r.exp).Result()
	logger.Log.Infow("idempotency reserve",
		"key", idempotencyKey(key),
		"result", ok,
		"error", err,
	)
	return ok, err
}

// Get returns the stored response for the key, or nil when the key is unknown
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*models.CachedResponse, error) {
	val, err := r.client.Get(ctx, idempotencyKey(key)).Bytes()
	logger.Log.Infow("idempotency get",
		"key", idempotencyKey(key),
		"size", len(val),
		"error", err,
	)
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp models.CachedResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Save stores the final response for the key, keeping the configured expiration
func (r *IdempotencyRepository) Save(ctx context.Context, key string, resp models.CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	err = r.client.Set(ctx, idempotencyKey(key), data, r.exp).Err()
	logger.Log.Infow("idempotency save",
		"key", idempotencyKey(key),
		"status", resp.Status,
		"error", err,
	)
	return err
}

// Release forgets the key so the request may be retried
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	err := r.client.Del(ctx, idempotencyKey(key)).Err()
	logger.Log.Infow("idempotency release",
		"key", idempotencyKey(key),
		"result", "released",
		"error", err,
	)
	return err
}
