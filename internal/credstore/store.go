package credstore

import "context"

// Store is the credential store contract consumed by internal/connector. All
// keys are plain strings; callers are responsible for composing the key
// namespaces described in the package doc.
//
// userID scopes encryption, not access control: every get/set/hset/hgetall
// call on the encrypted namespace must pass the same userID that sealed the
// value, or the read fails.
type Store interface {
	// Get returns the value stored at key, decrypting it for userID if the
	// key falls in the encrypted namespace. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string, userID string) (string, error)

	// Set stores value at key with no expiry, encrypting for userID if the
	// key falls in the encrypted namespace.
	Set(ctx context.Context, key string, value string, userID string) error

	// SetEX stores value at key with a TTL in seconds. Used for the
	// transient OAuth state namespace, which is never encrypted.
	SetEX(ctx context.Context, key string, ttlSeconds int, value string) error

	// Delete removes key unconditionally.
	Delete(ctx context.Context, key string) error

	// HSet writes a hash at key field-by-field, encrypting each field value
	// for userID.
	HSet(ctx context.Context, key string, mapping map[string]string, userID string) error

	// HGetAll reads the full hash at key, decrypting each field for userID.
	// Returns an empty, non-nil map (not ErrNotFound) if the key is absent.
	HGetAll(ctx context.Context, key string, userID string) (map[string]string, error)
}
