package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambanova-oss/connectorrt/internal/credstore"
	"github.com/sambanova-oss/connectorrt/pkg/oauth"
)

func newTestRegistry(t *testing.T, store credstore.Store, configs []OAuthConfig, tools map[string][]ConnectorTool) *Registry {
	t.Helper()
	reg := NewRegistry(store, oauth.NewClient(), &http.Client{})
	require.NoError(t, reg.Load(configs, tools))
	return reg
}

func restProviderCfg(id string) OAuthConfig {
	return OAuthConfig{ProviderID: id, DisplayName: id, Adapter: AdapterREST, APIBaseURL: "https://api.example/" + id}
}

func seedToken(t *testing.T, store credstore.Store, userID, providerID string) {
	t.Helper()
	seedFullToken(t, store, &UserOAuthToken{UserID: userID, ProviderID: providerID, AccessToken: "A"})
}

func seedFullToken(t *testing.T, store credstore.Store, token *UserOAuthToken) {
	t.Helper()
	require.NoError(t, store.HSet(context.Background(), credstore.TokenKey(token.UserID, token.ProviderID), tokenToFields(token), token.UserID))
}

// E3 — enable without auth fails with ErrNotAuthenticated and creates no
// UserConnectorConfig.
func TestEnableForUserWithoutAuth(t *testing.T) {
	store := newFakeStore()
	reg := newTestRegistry(t, store, []OAuthConfig{restProviderCfg("notion")}, nil)
	mgr := NewManager(reg, store)

	err := mgr.EnableForUser(context.Background(), "u2", "notion")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = store.Get(context.Background(), credstore.ConnectorConfigKey("u2", "notion"), "u2")
	assert.ErrorIs(t, err, credstore.ErrNotFound)
}

// E4 — tool materialization respects enabled-tools and the chat gate, in
// declared order.
func TestToolsForRespectsEnablementAndOrder(t *testing.T) {
	store := newFakeStore()
	gmailTools := []ConnectorTool{
		{ProviderID: "google", Name: "gmail_search"},
		{ProviderID: "google", Name: "gmail_send"},
	}
	driveTools := []ConnectorTool{{ProviderID: "drive", Name: "drive_list"}}
	reg := newTestRegistry(t, store,
		[]OAuthConfig{restProviderCfg("google"), restProviderCfg("drive")},
		map[string][]ConnectorTool{"google": gmailTools, "drive": driveTools},
	)
	mgr := NewManager(reg, store)

	seedToken(t, store, "u3", "google")
	seedToken(t, store, "u3", "drive")

	require.NoError(t, mgr.EnableForUser(context.Background(), "u3", "google"))
	require.NoError(t, mgr.EnableForUser(context.Background(), "u3", "drive"))
	require.NoError(t, mgr.ToggleChatVisibility(context.Background(), "u3", "drive", false))

	tools, err := mgr.ToolsFor(context.Background(), "u3", false)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "gmail_search", tools[0].Name)
	assert.Equal(t, "gmail_send", tools[1].Name)
}

// E5 — updating enabled tools invalidates the cache so the next read
// reflects the new subset.
func TestUpdateUserToolsInvalidatesCache(t *testing.T) {
	store := newFakeStore()
	gmailTools := []ConnectorTool{
		{ProviderID: "google", Name: "gmail_search"},
		{ProviderID: "google", Name: "gmail_send"},
	}
	reg := newTestRegistry(t, store, []OAuthConfig{restProviderCfg("google")}, map[string][]ConnectorTool{"google": gmailTools})
	mgr := NewManager(reg, store)

	seedToken(t, store, "u3", "google")
	require.NoError(t, mgr.EnableForUser(context.Background(), "u3", "google"))

	first, err := mgr.ToolsFor(context.Background(), "u3", false)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	require.NoError(t, mgr.UpdateUserTools(context.Background(), "u3", "google", []string{"gmail_search"}))

	second, err := mgr.ToolsFor(context.Background(), "u3", false)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "gmail_search", second[0].Name)
}

// B4 — updateUserTools with an unknown tool id fails and mutates nothing.
func TestUpdateUserToolsRejectsUnknownID(t *testing.T) {
	store := newFakeStore()
	gmailTools := []ConnectorTool{{ProviderID: "google", Name: "gmail_search"}}
	reg := newTestRegistry(t, store, []OAuthConfig{restProviderCfg("google")}, map[string][]ConnectorTool{"google": gmailTools})
	mgr := NewManager(reg, store)

	seedToken(t, store, "u3", "google")
	require.NoError(t, mgr.EnableForUser(context.Background(), "u3", "google"))
	require.NoError(t, mgr.UpdateUserTools(context.Background(), "u3", "google", []string{"gmail_search"}))

	err := mgr.UpdateUserTools(context.Background(), "u3", "google", []string{"gmail_search", "does_not_exist"})
	assert.ErrorIs(t, err, ErrInvalidTool)

	cfg, err := mgr.loadConfig(context.Background(), "u3", "google")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"gmail_search"}, cfg.EnabledTools, "the unknown-id call must not have mutated the stored set")
}

func TestDisableForUserRetainsToken(t *testing.T) {
	store := newFakeStore()
	reg := newTestRegistry(t, store, []OAuthConfig{restProviderCfg("google")}, nil)
	mgr := NewManager(reg, store)

	seedToken(t, store, "u1", "google")
	require.NoError(t, mgr.EnableForUser(context.Background(), "u1", "google"))
	require.NoError(t, mgr.DisableForUser(context.Background(), "u1", "google"))

	fields, err := store.HGetAll(context.Background(), credstore.TokenKey("u1", "google"), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, fields, "disabling must not delete the token")

	cfg, err := mgr.loadConfig(context.Background(), "u1", "google")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
}

func TestDisconnectForUserDeletesConfig(t *testing.T) {
	revokeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	t.Cleanup(revokeSrv.Close)

	store := newFakeStore()
	cfg := restProviderCfg("google")
	cfg.RevokeURL = revokeSrv.URL
	reg := newTestRegistry(t, store, []OAuthConfig{cfg}, nil)
	mgr := NewManager(reg, store)

	seedToken(t, store, "u1", "google")
	require.NoError(t, mgr.EnableForUser(context.Background(), "u1", "google"))

	require.NoError(t, mgr.DisconnectForUser(context.Background(), "u1", "google"))

	_, err := store.Get(context.Background(), credstore.ConnectorConfigKey("u1", "google"), "u1")
	assert.ErrorIs(t, err, credstore.ErrNotFound)
	fields, err := store.HGetAll(context.Background(), credstore.TokenKey("u1", "google"), "u1")
	require.NoError(t, err)
	assert.Empty(t, fields, "disconnect must delete the token")
}

// UserConnectors/statusFor must derive status from the stored token's own
// fields and never touch the token endpoint or the store as a side effect
// of a read — this is the passive-status-read guarantee from §4.2/§4.3.
func TestUserConnectorsDerivesStatusWithoutMutatingTokens(t *testing.T) {
	tokenSrv := newTokenServer(t, func(w http.ResponseWriter, form url.Values) {
		t.Fatal("a status read must never call the token endpoint")
	})

	providers := []OAuthConfig{
		restProviderCfg("google"),
		restProviderCfg("slack"),
		restProviderCfg("atlassian"),
		restProviderCfg("notion"),
		restProviderCfg("figma"),
	}
	for i := range providers {
		providers[i].TokenURL = tokenSrv.URL
	}

	store := newFakeStore()
	reg := newTestRegistry(t, store, providers, nil)
	mgr := NewManager(reg, store)

	now := time.Now()

	// connected: token present, not expired.
	seedFullToken(t, store, &UserOAuthToken{
		UserID: "u1", ProviderID: "google",
		AccessToken: "A", RefreshToken: "R", ExpiresAt: now.Add(time.Hour), IssuedAt: now,
	})
	// connected: expired, but a refresh token is present (refresh happens on
	// next use, not on this read).
	seedFullToken(t, store, &UserOAuthToken{
		UserID: "u1", ProviderID: "slack",
		AccessToken: "A", RefreshToken: "R0", ExpiresAt: now.Add(-time.Hour), IssuedAt: now.Add(-2 * time.Hour),
	})
	// error: expired, no refresh token to fall back on.
	seedFullToken(t, store, &UserOAuthToken{
		UserID: "u1", ProviderID: "atlassian",
		AccessToken: "A", ExpiresAt: now.Add(-time.Hour), IssuedAt: now.Add(-2 * time.Hour),
	})
	// needs_reauth: a previous refresh attempt already marked the refresh
	// token invalid.
	seedFullToken(t, store, &UserOAuthToken{
		UserID: "u1", ProviderID: "notion",
		AccessToken: "A", RefreshToken: "R1", RefreshInvalid: true,
	})
	// figma: no token at all → not_configured.

	projections, err := mgr.UserConnectors(context.Background(), "u1")
	require.NoError(t, err)

	byProvider := make(map[string]StatusProjection, len(projections))
	for _, p := range projections {
		byProvider[p.ProviderID] = p
	}
	require.Len(t, byProvider, 5)

	google := byProvider["google"]
	assert.Equal(t, StateConnected, google.State)
	assert.False(t, google.RequiresAuth)

	slack := byProvider["slack"]
	assert.Equal(t, StateConnected, slack.State)
	assert.True(t, slack.HasRefreshToken)

	atlassian := byProvider["atlassian"]
	assert.Equal(t, StateError, atlassian.State)
	assert.True(t, atlassian.RequiresAuth)

	notion := byProvider["notion"]
	assert.Equal(t, StateNeedsReauth, notion.State)
	assert.True(t, notion.RequiresAuth)

	figma := byProvider["figma"]
	assert.Equal(t, StateNotConfigured, figma.State)
	assert.True(t, figma.RequiresAuth)

	// The expired-with-refresh-token case is the one a naive status read
	// could have silently rotated or invalidated; confirm it is untouched.
	stored, err := store.HGetAll(context.Background(), credstore.TokenKey("u1", "slack"), "u1")
	require.NoError(t, err)
	assert.Equal(t, "R0", stored["refresh_token"], "a status read must not rotate or clear the refresh token")
	assert.Equal(t, "A", stored["access_token"], "a status read must not rewrite the access token")
}
