package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Store: StoreConfig{EncryptionKey: "0123456789abcdef0123456789abcdef"},
		Providers: []ProviderConfig{
			{ProviderID: "google", Adapter: "rest", ClientID: "c1", AuthorizeURL: "https://a", TokenURL: "https://t"},
			{ProviderID: "notion", Adapter: "mcp", ClientID: "c2", MCPServerURL: "https://mcp.example"},
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidateRequiresEncryptionKey(t *testing.T) {
	cfg := validConfig()
	cfg.Store.EncryptionKey = ""

	err := Validate(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "store.encryptionKey", verrs[0].Field)
}

func TestValidateRejectsDuplicateProviderID(t *testing.T) {
	cfg := validConfig()
	cfg.Providers = append(cfg.Providers, ProviderConfig{
		ProviderID: "google", Adapter: "rest", ClientID: "dup",
		AuthorizeURL: "https://a2", TokenURL: "https://t2",
	})

	err := Validate(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	found := false
	for _, e := range verrs {
		if e.Field == "providers[].providerId" {
			found = true
		}
	}
	assert.True(t, found, "expected a duplicate providerId error, got: %v", verrs)
}

func TestValidateRejectsEmptyProviderID(t *testing.T) {
	cfg := validConfig()
	cfg.Providers[0].ProviderID = ""

	err := Validate(cfg)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "providers[].providerId", verrs[0].Field)
}

func TestValidateRESTRequiresAuthorizeAndTokenURLs(t *testing.T) {
	cfg := validConfig()
	cfg.Providers[0].AuthorizeURL = ""

	err := Validate(cfg)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Contains(t, verrs[0].Message, "authorizeUrl")
}

func TestValidateMCPRequiresServerURL(t *testing.T) {
	cfg := validConfig()
	cfg.Providers[1].MCPServerURL = ""

	err := Validate(cfg)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Contains(t, verrs[0].Message, "mcpServerUrl")
}

func TestValidateRejectsUnknownAdapter(t *testing.T) {
	cfg := validConfig()
	cfg.Providers[0].Adapter = "graphql"

	err := Validate(cfg)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "providers[google].adapter", verrs[0].Field)
}

func TestValidateRequiresClientID(t *testing.T) {
	cfg := validConfig()
	cfg.Providers[0].ClientID = ""

	err := Validate(cfg)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "providers[google].clientId", verrs[0].Field)
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := Config{Providers: []ProviderConfig{{ProviderID: "google", Adapter: "rest"}}}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	// Missing encryption key, missing REST URLs, and missing client id.
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
}

func TestValidateAcceptsZeroProviders(t *testing.T) {
	cfg := Config{Store: StoreConfig{EncryptionKey: "0123456789abcdef0123456789abcdef"}}
	assert.NoError(t, Validate(cfg))
}
