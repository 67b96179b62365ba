package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sambanova-oss/connectorrt/internal/credstore"
	"github.com/sambanova-oss/connectorrt/pkg/logging"
)

// toolCacheTTL bounds how long Manager.ToolsFor reuses a previously-built
// tool set before rebuilding it from the registry.
const toolCacheTTL = 300 * time.Second

// Manager orchestrates per-user connector state on top of a Registry:
// enablement, tool visibility, and the materialized tool set the agent
// runtime consumes. Its tool cache is one map under a single mutex, keyed
// by user and by (user, provider); the mutex is held only for lookups and
// writes, never while a tool set is being built.
type Manager struct {
	registry *Registry
	store    credstore.Store

	cacheMu sync.Mutex
	cache   map[string]toolCacheEntry // key: userID or userID+"\x00"+providerID
}

type toolCacheEntry struct {
	tools     []Tool
	fetchedAt time.Time
}

// NewManager builds a Manager over registry.
func NewManager(registry *Registry, store credstore.Store) *Manager {
	return &Manager{
		registry: registry,
		store:    store,
		cache:    make(map[string]toolCacheEntry),
	}
}

func cacheKeyAll(userID string) string { return userID }
func cacheKeyProvider(userID, providerID string) string {
	return userID + "\x00" + providerID
}

// invalidate drops both the (userID, providerID)-specific and (userID,
// "all") cache entries, synchronously with whatever mutation triggered it,
// so a subsequent read never observes stale output.
func (m *Manager) invalidate(userID, providerID string) {
	m.cacheMu.Lock()
	delete(m.cache, cacheKeyProvider(userID, providerID))
	delete(m.cache, cacheKeyAll(userID))
	m.cacheMu.Unlock()
}

func (m *Manager) loadConfig(ctx context.Context, userID, providerID string) (*UserConnectorConfig, error) {
	raw, err := m.store.Get(ctx, credstore.ConnectorConfigKey(userID, providerID), userID)
	if err != nil {
		if err == credstore.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("load connector config: %w", err)
	}
	var cfg UserConnectorConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode connector config: %w", err)
	}
	return &cfg, nil
}

func (m *Manager) saveConfig(ctx context.Context, cfg *UserConnectorConfig) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal connector config: %w", err)
	}
	if err := m.store.Set(ctx, credstore.ConnectorConfigKey(cfg.UserID, cfg.ProviderID), string(blob), cfg.UserID); err != nil {
		return fmt.Errorf("store connector config: %w", err)
	}
	return nil
}

// EnableForUser turns on a connector the user has already authorized.
// Requires a token to exist; does not require the token to be currently
// unexpired, since an expired-but-refreshable token is still reportable as
// connected.
func (m *Manager) EnableForUser(ctx context.Context, userID, providerID string) error {
	c, err := m.registry.Get(ctx, userID, providerID)
	if err != nil {
		return err
	}
	// Any token row qualifies, even one that's expired or refresh-rejected;
	// only the complete absence of a token blocks enablement. This is a
	// read, so it must not trigger an auto-refresh as a side effect.
	if _, err := c.GetToken(ctx, userID, false); err == ErrNotAuthenticated {
		return ErrNotAuthenticated
	}

	cfg, err := m.loadConfig(ctx, userID, providerID)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &UserConnectorConfig{UserID: userID, ProviderID: providerID, ChatVisible: true}
	}
	cfg.Enabled = true

	if err := m.saveConfig(ctx, cfg); err != nil {
		return err
	}
	m.invalidate(userID, providerID)
	return nil
}

// DisableForUser turns off a connector without touching its token.
func (m *Manager) DisableForUser(ctx context.Context, userID, providerID string) error {
	cfg, err := m.loadConfig(ctx, userID, providerID)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &UserConnectorConfig{UserID: userID, ProviderID: providerID}
	}
	cfg.Enabled = false

	if err := m.saveConfig(ctx, cfg); err != nil {
		return err
	}
	m.invalidate(userID, providerID)
	return nil
}

// DisconnectForUser revokes the token (best-effort) and deletes both the
// connector config and any user-registered custom MCP record.
func (m *Manager) DisconnectForUser(ctx context.Context, userID, providerID string) error {
	c, err := m.registry.Get(ctx, userID, providerID)
	if err == nil {
		if revokeErr := c.Revoke(ctx, userID); revokeErr != nil {
			logging.Warn(logSubsystem, "revoke failed during disconnect for provider %s user %s: %v", providerID, userID, revokeErr)
		}
	}

	if err := m.store.Delete(ctx, credstore.ConnectorConfigKey(userID, providerID)); err != nil {
		return fmt.Errorf("delete connector config: %w", err)
	}
	if err := m.store.Delete(ctx, credstore.CustomMCPKey(userID, providerID)); err != nil {
		return fmt.Errorf("delete custom MCP record: %w", err)
	}

	m.invalidate(userID, providerID)
	return nil
}

// UpdateUserTools persists enabledIDs as the visible tool subset for
// (userID, providerID). Precondition: enabledIDs is a subset of the
// connector's currently advertised tool ids; any id outside that set fails
// the whole call with ErrInvalidTool and mutates nothing.
func (m *Manager) UpdateUserTools(ctx context.Context, userID, providerID string, enabledIDs []string) error {
	c, err := m.registry.Get(ctx, userID, providerID)
	if err != nil {
		return err
	}
	available, err := c.ListTools(ctx, userID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(available))
	for _, t := range available {
		known[t.Name] = true
	}
	for _, id := range enabledIDs {
		if !known[id] {
			return fmt.Errorf("%w: %s", ErrInvalidTool, id)
		}
	}

	cfg, err := m.loadConfig(ctx, userID, providerID)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &UserConnectorConfig{UserID: userID, ProviderID: providerID}
	}
	cfg.EnabledTools = enabledIDs

	if err := m.saveConfig(ctx, cfg); err != nil {
		return err
	}
	m.invalidate(userID, providerID)
	return nil
}

// ToggleChatVisibility flips whether a connector's tools are offered to
// the agent at all, independent of Enabled.
func (m *Manager) ToggleChatVisibility(ctx context.Context, userID, providerID string, visible bool) error {
	cfg, err := m.loadConfig(ctx, userID, providerID)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &UserConnectorConfig{UserID: userID, ProviderID: providerID}
	}
	cfg.ChatVisible = visible

	if err := m.saveConfig(ctx, cfg); err != nil {
		return err
	}
	m.invalidate(userID, providerID)
	return nil
}

// UserConnectors returns the status projection of every system connector
// for userID. User-registered custom MCP connectors are not listed.
func (m *Manager) UserConnectors(ctx context.Context, userID string) ([]StatusProjection, error) {
	providerIDs := m.registry.SystemProviderIDs()

	out := make([]StatusProjection, 0, len(providerIDs))
	for _, providerID := range providerIDs {
		proj, err := m.statusFor(ctx, userID, providerID, false)
		if err != nil {
			logging.Warn(logSubsystem, "status projection failed for provider %s user %s: %v", providerID, userID, err)
			continue
		}
		out = append(out, proj)
	}
	return out, nil
}

func (m *Manager) statusFor(ctx context.Context, userID, providerID string, isCustomMCP bool) (StatusProjection, error) {
	c, err := m.registry.Get(ctx, userID, providerID)
	if err != nil {
		return StatusProjection{}, err
	}
	cfg, err := m.loadConfig(ctx, userID, providerID)
	if err != nil {
		return StatusProjection{}, err
	}

	proj := StatusProjection{
		ProviderID:  providerID,
		IsCustomMCP: isCustomMCP,
		State:       StateNotConfigured,
	}
	if cfg != nil {
		proj.ChatVisible = cfg.ChatVisible
	}

	// Status is derived from the stored token's own fields (§4.3's
	// "Derived status" table), never from attempting a refresh: a status
	// read must not itself rotate or invalidate a refresh token.
	token, err := c.GetToken(ctx, userID, false)
	switch {
	case err == ErrNotAuthenticated:
		proj.State = StateNotConfigured
		proj.RequiresAuth = true
	case err != nil:
		proj.State = StateError
		proj.LastError = err.Error()
	case token.RefreshInvalid:
		proj.State = StateNeedsReauth
		proj.RequiresAuth = true
		proj.HasRefreshToken = token.RefreshToken != ""
	case token.IsExpired(time.Now()) && token.RefreshToken == "":
		proj.State = StateError
		proj.RequiresAuth = true
		proj.LastError = "token expired and no refresh token available"
	default:
		proj.State = StateConnected
		proj.HasRefreshToken = token.RefreshToken != ""
	}

	return proj, nil
}

// RefreshAllUserTokens refreshes every connector whose token needsRefresh,
// best-effort: a failure on one provider doesn't stop the others.
func (m *Manager) RefreshAllUserTokens(ctx context.Context, userID string) map[string]bool {
	results := make(map[string]bool)
	for _, providerID := range m.registry.SystemProviderIDs() {
		c, err := m.registry.Get(ctx, userID, providerID)
		if err != nil {
			continue
		}
		if _, err := c.GetToken(ctx, userID, true); err != nil {
			results[providerID] = false
			continue
		}
		results[providerID] = true
	}
	return results
}

// ToolsFor materializes the agent-visible tool set for userID: every
// system connector the user has enabled, with chat visibility on,
// contributes its enabled tools in registration order. User-registered
// custom MCP connectors are not included. Results are cached for
// toolCacheTTL unless forceRefresh is set.
func (m *Manager) ToolsFor(ctx context.Context, userID string, forceRefresh bool) ([]Tool, error) {
	if !forceRefresh {
		m.cacheMu.Lock()
		entry, ok := m.cache[cacheKeyAll(userID)]
		m.cacheMu.Unlock()
		if ok && time.Since(entry.fetchedAt) < toolCacheTTL {
			return entry.tools, nil
		}
	}

	var all []Tool
	for _, providerID := range m.registry.SystemProviderIDs() {
		tools, err := m.toolsForProvider(ctx, userID, providerID)
		if err != nil {
			logging.Warn(logSubsystem, "skipping provider %s for user %s: %v", providerID, userID, err)
			continue
		}
		all = append(all, tools...)
	}

	m.cacheMu.Lock()
	m.cache[cacheKeyAll(userID)] = toolCacheEntry{tools: all, fetchedAt: time.Now()}
	m.cacheMu.Unlock()

	return all, nil
}

func (m *Manager) toolsForProvider(ctx context.Context, userID, providerID string) ([]Tool, error) {
	m.cacheMu.Lock()
	entry, ok := m.cache[cacheKeyProvider(userID, providerID)]
	m.cacheMu.Unlock()
	if ok && time.Since(entry.fetchedAt) < toolCacheTTL {
		return entry.tools, nil
	}

	cfg, err := m.loadConfig(ctx, userID, providerID)
	if err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.Enabled || !cfg.ChatVisible {
		return nil, nil
	}

	c, err := m.registry.Get(ctx, userID, providerID)
	if err != nil {
		return nil, err
	}
	if _, err := c.GetToken(ctx, userID, true); err != nil {
		return nil, nil
	}

	available, err := c.ListTools(ctx, userID)
	if err != nil {
		return nil, err
	}

	toolIDs := cfg.EnabledTools
	if len(toolIDs) == 0 {
		toolIDs = make([]string, 0, len(available))
		for _, t := range available {
			toolIDs = append(toolIDs, t.Name)
		}
	}

	tools, err := c.BuildTools(ctx, userID, toolIDs)
	if err != nil {
		logging.Warn(logSubsystem, "batch BuildTools failed for %s/%s, falling back to per-tool construction: %v", userID, providerID, err)
		tools = m.buildToolsOneByOne(ctx, c, userID, toolIDs)
	}

	m.cacheMu.Lock()
	m.cache[cacheKeyProvider(userID, providerID)] = toolCacheEntry{tools: tools, fetchedAt: time.Now()}
	m.cacheMu.Unlock()

	return tools, nil
}

// buildToolsOneByOne is the per-tool fallback for a failed batch BuildTools
// call: each tool is materialized independently so one bad tool doesn't
// sink the whole provider's tool set. Individual failures are logged and
// the tool is omitted, not raised.
func (m *Manager) buildToolsOneByOne(ctx context.Context, c Connector, userID string, toolIDs []string) []Tool {
	built := make([]Tool, 0, len(toolIDs))
	for _, id := range toolIDs {
		tools, err := c.BuildTools(ctx, userID, []string{id})
		if err != nil {
			logging.Warn(logSubsystem, "omitting tool %s for %s: %v", id, userID, err)
			continue
		}
		built = append(built, tools...)
	}
	return built
}
