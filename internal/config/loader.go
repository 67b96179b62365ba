package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sambanova-oss/connectorrt/pkg/logging"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a single YAML file, starting from
// Default() and overlaying whatever the file specifies. A missing file is
// not an error: the default configuration is returned as-is.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "no config file found at %s, using defaults", path)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := resolveSecretFiles(&cfg); err != nil {
		return Config{}, fmt.Errorf("resolving secrets for %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	logging.Info("ConfigLoader", "loaded configuration from %s (%d providers)", path, len(cfg.Providers))
	return cfg, nil
}

// resolveSecretFiles reads secrets from file paths specified in *File config
// options, keeping secret material out of the config file itself.
func resolveSecretFiles(cfg *Config) error {
	if cfg.Store.PasswordFile != "" && cfg.Store.Password == "" {
		secret, err := readSecretFile(cfg.Store.PasswordFile)
		if err != nil {
			return fmt.Errorf("reading store password file: %w", err)
		}
		cfg.Store.Password = secret
	}

	if cfg.Store.EncryptionKeyFile != "" && cfg.Store.EncryptionKey == "" {
		secret, err := readSecretFile(cfg.Store.EncryptionKeyFile)
		if err != nil {
			return fmt.Errorf("reading store encryption key file: %w", err)
		}
		cfg.Store.EncryptionKey = secret
	}

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.ClientSecretFile != "" && p.ClientSecret == "" {
			secret, err := readSecretFile(p.ClientSecretFile)
			if err != nil {
				return fmt.Errorf("reading client secret file for provider %s: %w", p.ProviderID, err)
			}
			p.ClientSecret = secret
		}
	}

	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
