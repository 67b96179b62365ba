package config

// Config is the top-level configuration for the connector runtime process.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Store     StoreConfig      `yaml:"store"`
	Providers []ProviderConfig `yaml:"providers"`
}

// ServerConfig configures the HTTP surface (§6 of the spec).
type ServerConfig struct {
	Host string `yaml:"host,omitempty"` // default: localhost
	Port int    `yaml:"port,omitempty"` // default: 8080

	// CallbackBaseURL is prefixed to provider redirect_uri values, e.g.
	// "https://agents.example.com". Required for any provider without an
	// explicit RedirectURI override.
	CallbackBaseURL string `yaml:"callbackBaseUrl,omitempty"`

	// UICallbackURL is where /connectors/{id}/callback redirects the user's
	// browser after exchange, with ?success or ?error appended.
	UICallbackURL string `yaml:"uiCallbackUrl,omitempty"`
}

// StoreConfig configures the credential store's Valkey/Redis backend and
// at-rest encryption.
type StoreConfig struct {
	Address  string `yaml:"address,omitempty"` // default: localhost:6379
	Password string `yaml:"password,omitempty"`
	// PasswordFile, if set and Password is empty, is read at load time.
	PasswordFile string `yaml:"passwordFile,omitempty"`
	DB           int    `yaml:"db,omitempty"`
	KeyPrefix    string `yaml:"keyPrefix,omitempty"` // default: "connrt:"

	// EncryptionKey is a 32-byte AES-256 key, base64 encoded.
	EncryptionKey string `yaml:"encryptionKey,omitempty"`
	// EncryptionKeyFile, if set and EncryptionKey is empty, is read at load time.
	EncryptionKeyFile string `yaml:"encryptionKeyFile,omitempty"`
}

// ProviderConfig is the on-disk representation of an OAuthConfig (§3) plus
// the adapter-selection and provider-quirk fields needed to build the
// corresponding Connector at startup.
type ProviderConfig struct {
	ProviderID   string            `yaml:"providerId"`
	DisplayName  string            `yaml:"displayName"`
	Description  string            `yaml:"description,omitempty"`
	IconURL      string            `yaml:"iconUrl,omitempty"`
	Adapter      string            `yaml:"adapter"` // "rest" or "mcp"
	ClientID     string            `yaml:"clientId"`
	ClientSecret string            `yaml:"clientSecret,omitempty"`
	ClientSecretFile string        `yaml:"clientSecretFile,omitempty"`
	AuthorizeURL string            `yaml:"authorizeUrl,omitempty"`
	TokenURL     string            `yaml:"tokenUrl,omitempty"`
	RevokeURL    string            `yaml:"revokeUrl,omitempty"`
	UserinfoURL  string            `yaml:"userinfoUrl,omitempty"`
	RedirectURI  string            `yaml:"redirectUri,omitempty"`
	Scopes       []string          `yaml:"scopes,omitempty"`
	UsePKCE      *bool             `yaml:"usePkce,omitempty"` // default true
	AdditionalParams map[string]string `yaml:"additionalParams,omitempty"`

	// RotatingRefresh marks a provider whose refresh responses always issue
	// a new refresh token; a refresh that omits one is treated as terminal.
	RotatingRefresh bool `yaml:"rotatingRefresh,omitempty"`
	// ForceConsent appends prompt=consent to the authorize URL.
	ForceConsent bool `yaml:"forceConsent,omitempty"`
	// RequireOfflineAccess appends "offline_access" to scopes if absent.
	RequireOfflineAccess bool `yaml:"requireOfflineAccess,omitempty"`
	// ResourceDiscoveryURL, if set, is fetched once per user after auth to
	// discover a tenant/cloud id, cached in the token's ResourceID.
	ResourceDiscoveryURL string `yaml:"resourceDiscoveryUrl,omitempty"`
	// APIBaseURL is the base URL tool invocations are sent to. Only
	// meaningful for the REST adapter.
	APIBaseURL string `yaml:"apiBaseUrl,omitempty"`

	// MCPServerURL and Transport configure the MCP adapter.
	MCPServerURL string `yaml:"mcpServerUrl,omitempty"`
	Transport    string `yaml:"transport,omitempty"` // sse | http | streamable_http
	UseDiscovery bool   `yaml:"useDiscovery,omitempty"`
	// ProbeBeforeBuild, if set false, skips the tool-listing smoke test the
	// MCP adapter otherwise runs before materializing tools.
	ProbeBeforeBuild *bool `yaml:"probeBeforeBuild,omitempty"` // default true

	Tools []ToolConfig `yaml:"tools,omitempty"`
}

// ToolConfig is the static declaration of a REST adapter's ConnectorTool.
// MCP adapters ignore this — their tool catalog is dynamic (§4.5).
type ToolConfig struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	Description        string `yaml:"description"`
	ParametersSchemaJSON string `yaml:"parametersSchema"`
	RequiresAuth       bool   `yaml:"requiresAuth,omitempty"`
}
