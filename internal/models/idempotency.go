package models

// CachedResponse is a stored HTTP response replayed for a repeated idempotency key.
// A zero Status marks a request that is still being processed.
// Fingerprint identifies the request the key was first used with.
type CachedResponse struct {
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// InFlight reports whether the original request has not finished yet.
func (c CachedResponse) InFlight() bool {
	return c.Status == 0
}
