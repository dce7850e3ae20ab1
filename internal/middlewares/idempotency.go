package middlewares

//go:generate mockgen -source=idempotency.go -destination=idempotency_mock.go -package=middlewares

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// IdempotencyKeyHeader carries the client-chosen key of a mutating request.
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses served from the idempotency store.
const ReplayedHeader = "X-Idempotency-Replayed"

// IdempotencyStore remembers responses by key.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, fingerprint string) (bool, error)
	Get(ctx context.Context, key string) (*models.CachedResponse, error)
	Save(ctx context.Context, key string, resp models.CachedResponse) error
	Release(ctx context.Context, key string) error
}

// IdempotencyMiddleware makes mutating requests safe to retry.
// Requests without an Idempotency-Key header pass through. Keys are scoped to the caller
// set by AuthMiddleware. The first request with a key reserves it together with a
// fingerprint of its method, path and body; repeats with the same fingerprint get 409
// while it runs and the stored response afterwards, repeats with a different one get 422.
// Responses with a 5xx status are not stored so the client can retry.
func IdempotencyMiddleware(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			userID, ok := UserIDFromContext(ctx)
			if !ok {
				logger.Log.Warnw("idempotency key without authenticated caller")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
				return
			}
			key := scopedKey(userID, clientKey)

			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Log.Warnw("failed to read request body", "key", key, "error", err)
				writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := requestFingerprint(r, body)

			reserved, err := store.Reserve(ctx, key, fingerprint)
			if err != nil {
				logger.Log.Errorw("failed to reserve idempotency key", "key", key, "error", err)
				writeError(w, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "Please try again later")
				return
			}

			if !reserved {
				replay(w, r, store, key, fingerprint)
				return
			}

			rec := &recordingWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				// The reservation outlives the request context.
				storeCtx := context.WithoutCancel(ctx)

				if p := recover(); p != nil {
					if err := store.Release(storeCtx, key); err != nil {
						logger.Log.Errorw("failed to release idempotency key", "key", key, "error", err)
					}
					panic(p)
				}

				if rec.statusCode >= http.StatusInternalServerError {
					if err := store.Release(storeCtx, key); err != nil {
						logger.Log.Errorw("failed to release idempotency key", "key", key, "error", err)
					}
					return
				}

				resp := models.CachedResponse{Status: rec.statusCode, Body: rec.body.Bytes(), Fingerprint: fingerprint}
				if err := store.Save(storeCtx, key, resp); err != nil {
					logger.Log.Errorw("failed to save idempotent response", "key", key, "error", err)
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store IdempotencyStore, key, fingerprint string) {
	cached, err := store.Get(r.Context(), key)
	if err != nil {
		logger.Log.Errorw("failed to read idempotent response", "key", key, "error", err)
		writeError(w, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "Please try again later")
		return
	}

	if cached != nil && cached.Fingerprint != fingerprint {
		logger.Log.Warnw("idempotency key reused with a different request", "key", key)
		writeError(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "Idempotency-Key was used with a different request")
		return
	}

	// A key that vanished between Reserve and Get is treated as still running.
	if cached == nil || cached.InFlight() {
		logger.Log.Warnw("duplicate request in progress", "key", key)
		writeError(w, http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this Idempotency-Key is in progress")
		return
	}

	logger.Log.Infow("replaying idempotent response", "key", key, "status", cached.Status)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(cached.Status)
	if _, err := w.Write(cached.Body); err != nil {
		logger.Log.Errorw("failed to write replayed response", "key", key, "error", err)
	}
}

// scopedKey binds the client key to the caller so different users never share a key.
func scopedKey(userID uuid.UUID, clientKey string) string {
	return userID.String() + ":" + clientKey
}

// requestFingerprint identifies the payload a key was first used with.
func requestFingerprint(r *http.Request, body []byte) string {
	data := make([]byte, 0, len(r.Method)+len(r.URL.Path)+len(body)+2)
	data = append(data, r.Method...)
	data = append(data, ' ')
	data = append(data, r.URL.Path...)
	data = append(data, '\n')
	data = append(data, body...)
	return uuid.NewSHA1(uuid.NameSpaceURL, data).String()
}

type recordingWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
