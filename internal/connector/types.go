package connector

import "time"

// expiryBufferSeconds is how far ahead of a token's real expiry it is
// treated as already expired, to absorb clock skew and in-flight request
// latency.
const expiryBufferSeconds = 60

// proactiveRefreshFraction is the fraction of a token's lifetime after which
// it is eligible for background refresh, ahead of outright expiry.
const proactiveRefreshFraction = 0.8

// Adapter identifies which wire protocol a provider's connector speaks.
type Adapter string

const (
	AdapterREST Adapter = "rest"
	AdapterMCP  Adapter = "mcp"
)

// OAuthConfig is the static, operator-provided description of one OAuth
// provider: how to reach its authorization server and, for MCP providers,
// its tool server. One OAuthConfig is shared across all users.
type OAuthConfig struct {
	ProviderID  string
	DisplayName string
	Description string
	IconURL     string
	Adapter     Adapter

	ClientID     string
	ClientSecret string

	AuthorizeURL string
	TokenURL     string
	RevokeURL    string
	UserinfoURL  string
	RedirectURI  string
	Scopes       []string

	UsePKCE              bool
	RotatingRefresh      bool
	ForceConsent         bool
	RequireOfflineAccess bool
	AdditionalParams     map[string]string

	// ResourceDiscoveryURL, when set, is probed after token exchange to
	// learn a tenant/cloud-id the REST adapter must embed in subsequent
	// API calls (e.g. multi-tenant SaaS APIs).
	ResourceDiscoveryURL string
	// APIBaseURL is the REST adapter's tool-invocation base URL. Only
	// meaningful when Adapter == AdapterREST.
	APIBaseURL string

	// MCPServerURL is the base URL of the provider's MCP tool server.
	// Only meaningful when Adapter == AdapterMCP.
	MCPServerURL string
	// Transport is the MCP transport: sse, http, streamable-http, or
	// streamable_http. Empty means streamable_http; any other value,
	// stdio included, makes NewMCPConnector fail.
	Transport string
	// UseDiscovery enables RFC 9728 protected-resource metadata discovery
	// to locate the authorization server for MCPServerURL, rather than
	// relying on AuthorizeURL/TokenURL being pre-configured.
	UseDiscovery bool
	// ProbeBeforeBuild, when true (the default), makes BuildTools smoke-test
	// the MCP server's tool-listing endpoint before materializing tools and
	// return an empty, logged result rather than an error if the probe
	// fails, instead of letting a flaky server abort the whole batch.
	ProbeBeforeBuild bool
}

// ConnectorState is a point in the per-(user, provider) lifecycle state
// machine. Status is a derived projection of this state plus token
// validity, never itself the source of truth.
type ConnectorState string

const (
	StateNotConfigured ConnectorState = "not_configured"
	StateAuthorizing   ConnectorState = "authorizing"
	StateConnected     ConnectorState = "connected"
	StateRefreshing    ConnectorState = "refreshing"
	StateError         ConnectorState = "error"
	StateNeedsReauth   ConnectorState = "needs_reauth"
)

// UserOAuthToken is the persisted token record for one (user, provider)
// pair.
type UserOAuthToken struct {
	UserID       string
	ProviderID   string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	// ResourceID is the tenant/cloud-id learned via ResourceDiscoveryURL,
	// when the provider requires one.
	ResourceID string
	// RefreshInvalid is set when the last refresh attempt failed with an
	// "invalid refresh token" signal. The record is kept (so metadata
	// reads still work) but further auto-refresh is suppressed until the
	// user re-authorizes.
	RefreshInvalid bool
}

// IsExpired reports whether the token is expired, or within
// expiryBufferSeconds of expiring, as of now.
func (t *UserOAuthToken) IsExpired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt.Add(-expiryBufferSeconds * time.Second))
}

// NeedsRefresh reports whether a refresh token is present and the token has
// consumed proactiveRefreshFraction of its lifetime (or is outright
// expired) as of now, and should be refreshed before its next use rather
// than reactively after a 401. A token with no refresh token never needs
// refresh, however expired, since there is nothing to refresh it with.
func (t *UserOAuthToken) NeedsRefresh(now time.Time) bool {
	if t.RefreshToken == "" {
		return false
	}
	if t.IsExpired(now) {
		return true
	}
	if t.ExpiresAt.IsZero() || t.IssuedAt.IsZero() {
		return false
	}
	lifetime := t.ExpiresAt.Sub(t.IssuedAt)
	if lifetime <= 0 {
		return true
	}
	threshold := t.IssuedAt.Add(time.Duration(float64(lifetime) * proactiveRefreshFraction))
	return !now.Before(threshold)
}

// UserConnectorConfig is the per-user, per-provider enablement and
// visibility record.
type UserConnectorConfig struct {
	UserID       string
	ProviderID   string
	Enabled      bool
	ChatVisible  bool
	EnabledTools []string // empty means "all discovered tools visible"
}

// ConnectorTool is one invocable operation exposed by a connector, after
// discovery (MCP) or static declaration (REST).
type ConnectorTool struct {
	ProviderID    string
	Name          string
	Description   string
	InputSchema   map[string]any
	RequiresAuth  bool
}

// ConnectorMetadata is the provider-level descriptive information surfaced
// to a client deciding which connectors to offer a user.
type ConnectorMetadata struct {
	ProviderID  string
	DisplayName string
	Description string
	IconURL     string
	Adapter     Adapter
}

// TransientState is the short-lived record created at authorize-init time
// and consumed at callback time. It never holds a token, only what's needed
// to complete the code exchange and verify the callback belongs to the
// session that started it.
type TransientState struct {
	State        string
	UserID       string
	ProviderID   string
	CodeVerifier string
	RedirectURI  string
	CreatedAt    time.Time
}

// StatusProjection is the derived, client-facing view of a connector's
// current lifecycle state for one user. It is never persisted; it is
// recomputed from UserOAuthToken and UserConnectorConfig on every read.
type StatusProjection struct {
	ProviderID     string
	State          ConnectorState
	IsCustomMCP    bool
	RequiresAuth   bool
	HasRefreshToken bool
	ChatVisible    bool
	LastError      string
}
