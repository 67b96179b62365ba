package config

// Default returns the minimal runnable configuration: no providers
// registered, server bound to localhost:8080, store pointed at a local
// Valkey instance with no encryption key configured (the credential store
// then fails every read and write of persistent tokens with
// ErrEncryptorRequired — see internal/credstore.Config.EncryptionKey).
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Store: StoreConfig{
			Address:   "localhost:6379",
			KeyPrefix: "connrt:",
		},
	}
}
