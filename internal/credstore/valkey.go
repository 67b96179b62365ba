package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"

	"github.com/sambanova-oss/connectorrt/pkg/logging"
)

const logSubsystem = "credstore"

// Config configures a Valkey-backed Store.
type Config struct {
	// Address is host:port of the Valkey/Redis-compatible server.
	Address string
	// Password authenticates to the server, if required.
	Password string
	// DB selects the logical database index (Redis-only; ignored by
	// deployments that don't support SELECT).
	DB int
	// KeyPrefix is prepended to every key this store touches, so multiple
	// deployments can share one Valkey instance.
	KeyPrefix string
	// EncryptionKey is a base64-encoded 32-byte AES-256 key. Required to
	// read or write the persistent token namespace; the transient state
	// namespace works without it.
	EncryptionKey string
}

// ValkeyStore is a Store backed by a Valkey/Redis-compatible client.
type ValkeyStore struct {
	client    valkey.Client
	keyPrefix string
	enc       *encryptor
}

// New connects to Valkey and returns a ready Store.
func New(cfg Config) (*ValkeyStore, error) {
	opt := valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("connect to valkey at %s: %w", cfg.Address, err)
	}

	store := &ValkeyStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
	}

	if cfg.EncryptionKey != "" {
		enc, err := newEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("configure encryption: %w", err)
		}
		store.enc = enc
		logging.Info(logSubsystem, "credential encryption at rest enabled (AES-256-GCM)")
	} else {
		logging.Warn(logSubsystem, "no encryption key configured; persistent token reads and writes will fail")
	}

	return store, nil
}

// Close releases the underlying connection pool.
func (s *ValkeyStore) Close() {
	s.client.Close()
}

func (s *ValkeyStore) fullKey(key string) string {
	return s.keyPrefix + key
}

// isTransient reports whether key belongs to the unencrypted transient
// namespace (oauth:state:*) rather than the encrypted persistent namespace.
func isTransient(key string) bool {
	return strings.HasPrefix(key, "oauth:state:")
}

func (s *ValkeyStore) encryptForStorage(key, value, userID string) (string, error) {
	if isTransient(key) {
		return value, nil
	}
	if s.enc == nil {
		return "", ErrEncryptorRequired
	}
	return s.enc.seal(value, userID)
}

func (s *ValkeyStore) decryptFromStorage(key, stored, userID string) (string, error) {
	if isTransient(key) {
		return stored, nil
	}
	if s.enc == nil {
		return "", ErrEncryptorRequired
	}
	return s.enc.open(stored, userID)
}

func (s *ValkeyStore) Get(ctx context.Context, key string, userID string) (string, error) {
	cmd := s.client.B().Get().Key(s.fullKey(key)).Build()
	stored, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if errors.Is(err, valkey.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return s.decryptFromStorage(key, stored, userID)
}

func (s *ValkeyStore) Set(ctx context.Context, key string, value string, userID string) error {
	stored, err := s.encryptForStorage(key, value, userID)
	if err != nil {
		return err
	}
	cmd := s.client.B().Set().Key(s.fullKey(key)).Value(stored).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *ValkeyStore) SetEX(ctx context.Context, key string, ttlSeconds int, value string) error {
	stored, err := s.encryptForStorage(key, value, "")
	if err != nil {
		return err
	}
	cmd := s.client.B().Setex().Key(s.fullKey(key)).Seconds(int64(ttlSeconds)).Value(stored).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("setex %s: %w", key, err)
	}
	return nil
}

func (s *ValkeyStore) Delete(ctx context.Context, key string) error {
	cmd := s.client.B().Del().Key(s.fullKey(key)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (s *ValkeyStore) HSet(ctx context.Context, key string, mapping map[string]string, userID string) error {
	if len(mapping) == 0 {
		return nil
	}

	builder := s.client.B().Hset().Key(s.fullKey(key)).FieldValue()
	for field, value := range mapping {
		stored, err := s.encryptForStorage(key, value, userID)
		if err != nil {
			return err
		}
		builder = builder.FieldValue(field, stored)
	}
	if err := s.client.Do(ctx, builder.Build()).Error(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

func (s *ValkeyStore) HGetAll(ctx context.Context, key string, userID string) (map[string]string, error) {
	cmd := s.client.B().Hgetall().Key(s.fullKey(key)).Build()
	raw, err := s.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		if errors.Is(err, valkey.Nil) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}

	out := make(map[string]string, len(raw))
	for field, stored := range raw {
		plain, err := s.decryptFromStorage(key, stored, userID)
		if err != nil {
			return nil, fmt.Errorf("decrypt field %s of %s: %w", field, key, err)
		}
		out[field] = plain
	}
	return out, nil
}
