package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/sambanova-oss/connectorrt/internal/credstore"
	"github.com/sambanova-oss/connectorrt/pkg/oauth"
)

// Registry holds every connector the runtime can dispatch to: the
// system-wide set configured at process start, plus per-user custom MCP
// connectors registered at runtime. The system set is replaced wholesale
// on reload (swap-on-write) rather than mutated in place, so a reader
// holding the old map never observes a half-updated registry.
type Registry struct {
	store      credstore.Store
	oauthClient *oauth.Client
	httpClient *http.Client

	systemMu    sync.RWMutex
	system      map[string]Connector // providerID -> connector
	systemOrder []string             // registration order, for deterministic tool concatenation

	userMu sync.RWMutex
	user   map[string]map[string]Connector // userID -> providerID -> connector
}

// NewRegistry builds an empty Registry. Load populates the system set.
func NewRegistry(store credstore.Store, oauthClient *oauth.Client, httpClient *http.Client) *Registry {
	return &Registry{
		store:       store,
		oauthClient: oauthClient,
		httpClient:  httpClient,
		system:      make(map[string]Connector),
		user:        make(map[string]map[string]Connector),
	}
}

// Load builds a Connector for each OAuthConfig and atomically replaces the
// system-wide registry. Tools is consulted only for REST providers, whose
// catalog is statically declared rather than discovered.
func (r *Registry) Load(configs []OAuthConfig, toolsByProvider map[string][]ConnectorTool) error {
	next := make(map[string]Connector, len(configs))
	order := make([]string, 0, len(configs))
	for _, cfg := range configs {
		c, err := r.build(cfg, toolsByProvider[cfg.ProviderID])
		if err != nil {
			return fmt.Errorf("build connector %s: %w", cfg.ProviderID, err)
		}
		next[cfg.ProviderID] = c
		order = append(order, cfg.ProviderID)
	}

	r.systemMu.Lock()
	r.system = next
	r.systemOrder = order
	r.systemMu.Unlock()
	return nil
}

func (r *Registry) build(cfg OAuthConfig, tools []ConnectorTool) (Connector, error) {
	switch cfg.Adapter {
	case AdapterREST:
		return NewRESTConnector(cfg, tools, r.store, r.oauthClient, r.httpClient), nil
	case AdapterMCP:
		return NewMCPConnector(cfg, r.store, r.oauthClient, r.httpClient)
	default:
		return nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}
}

// Get returns userID's custom connector for providerID if one is
// registered, checked first, falling back to the system-wide connector for
// providerID (§4.1's forUser precedence): a user's own custom connector
// shadows a system connector that happens to share its providerID.
func (r *Registry) Get(ctx context.Context, userID, providerID string) (Connector, error) {
	if c, ok := r.userConnector(userID, providerID); ok {
		return c, nil
	}

	c, err := r.loadUserConnector(ctx, userID, providerID)
	if err == nil {
		return c, nil
	}
	if err != ErrUnknownProvider {
		return nil, err
	}

	r.systemMu.RLock()
	sys, ok := r.system[providerID]
	r.systemMu.RUnlock()
	if !ok {
		return nil, ErrUnknownProvider
	}
	return sys, nil
}

// Metadata returns every system-wide connector's descriptive metadata, for
// GET /connectors/available.
func (r *Registry) Metadata() []ConnectorMetadata {
	r.systemMu.RLock()
	defer r.systemMu.RUnlock()

	out := make([]ConnectorMetadata, 0, len(r.systemOrder))
	for _, id := range r.systemOrder {
		out = append(out, r.system[id].Metadata())
	}
	return out
}

// SystemProviderIDs returns the configured provider ids in registration
// order, for iterating a user's status and materializing tools
// deterministically across every known connector.
func (r *Registry) SystemProviderIDs() []string {
	r.systemMu.RLock()
	defer r.systemMu.RUnlock()

	ids := make([]string, len(r.systemOrder))
	copy(ids, r.systemOrder)
	return ids
}

func (r *Registry) userConnector(userID, providerID string) (Connector, bool) {
	r.userMu.RLock()
	defer r.userMu.RUnlock()
	byProvider, ok := r.user[userID]
	if !ok {
		return nil, false
	}
	c, ok := byProvider[providerID]
	return c, ok
}

// customMCPDefinition is the persisted shape of a user-registered MCP
// connector, stored at user:{userId}:custom_mcp:{providerId}.
type customMCPDefinition struct {
	ProviderID   string   `json:"provider_id"`
	DisplayName  string   `json:"display_name"`
	ServerURL    string   `json:"server_url"`
	Transport    string   `json:"transport"`
	Scopes       []string `json:"scopes"`
	UseDiscovery bool     `json:"use_discovery"`
}

// loadUserConnector lazily builds a Connector from a user's persisted
// custom MCP connector definition and caches it under that user's
// namespace in the registry.
func (r *Registry) loadUserConnector(ctx context.Context, userID, providerID string) (Connector, error) {
	raw, err := r.store.Get(ctx, credstore.CustomMCPKey(userID, providerID), userID)
	if err != nil {
		if err == credstore.ErrNotFound {
			return nil, ErrUnknownProvider
		}
		return nil, fmt.Errorf("load custom MCP definition: %w", err)
	}

	var def customMCPDefinition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, fmt.Errorf("decode custom MCP definition: %w", err)
	}

	cfg := OAuthConfig{
		ProviderID:   def.ProviderID,
		DisplayName:  def.DisplayName,
		Adapter:      AdapterMCP,
		MCPServerURL: def.ServerURL,
		Transport:    def.Transport,
		Scopes:       def.Scopes,
		UsePKCE:      true,
		UseDiscovery: def.UseDiscovery,
	}

	c, err := NewMCPConnector(cfg, r.store, r.oauthClient, r.httpClient)
	if err != nil {
		return nil, err
	}
	if cfg.UseDiscovery {
		if err := c.DiscoverOAuthConfig(ctx); err != nil {
			return nil, fmt.Errorf("discover OAuth config for custom connector %s: %w", providerID, err)
		}
	}

	r.userMu.Lock()
	if r.user[userID] == nil {
		r.user[userID] = make(map[string]Connector)
	}
	r.user[userID][providerID] = c
	r.userMu.Unlock()

	return c, nil
}

// RegisterUserConnector persists a new custom MCP connector for userID and
// evicts any cached build, so the next Get call reloads it with the new
// definition.
func (r *Registry) RegisterUserConnector(ctx context.Context, userID string, def customMCPDefinition) error {
	blob, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal custom MCP definition: %w", err)
	}
	if err := r.store.Set(ctx, credstore.CustomMCPKey(userID, def.ProviderID), string(blob), userID); err != nil {
		return fmt.Errorf("store custom MCP definition: %w", err)
	}

	r.userMu.Lock()
	delete(r.user[userID], def.ProviderID)
	r.userMu.Unlock()
	return nil
}
