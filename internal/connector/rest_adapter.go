package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sambanova-oss/connectorrt/internal/credstore"
	"github.com/sambanova-oss/connectorrt/pkg/logging"
	"github.com/sambanova-oss/connectorrt/pkg/oauth"
)

// RESTConnector adapts one statically-declared REST API provider (its tools
// are fixed at configuration time, unlike the MCP adapter's discovered
// catalog) onto the Connector interface.
type RESTConnector struct {
	*BaseConnector
	tools      []ConnectorTool
	httpClient *http.Client
}

// NewRESTConnector builds a REST adapter for providerCfg. tools is the
// static tool catalog declared in configuration; a REST provider can't be
// introspected for its operations the way an MCP server can.
func NewRESTConnector(cfg OAuthConfig, tools []ConnectorTool, store credstore.Store, oauthClient *oauth.Client, httpClient *http.Client) *RESTConnector {
	r := &RESTConnector{tools: tools, httpClient: httpClient}
	var discover func(context.Context, *UserOAuthToken) (string, error)
	if cfg.ResourceDiscoveryURL != "" {
		discover = r.discoverResource
	}
	r.BaseConnector = NewBaseConnector(cfg, store, oauthClient, discover)

	if cfg.RequireOfflineAccess && !cfg.ForceConsent {
		logging.Warn(logSubsystem, "provider %s requires offline access but does not force consent; some providers only grant a refresh token on the first consent screen", cfg.ProviderID)
	}

	return r
}

// discoverResourceResponse is the minimal shape expected back from a
// ResourceDiscoveryURL: a tenant or cloud identifier the REST API needs on
// every subsequent call.
type discoverResourceResponse struct {
	ResourceID string `json:"resource_id"`
	TenantID   string `json:"tenant_id"`
	CloudID    string `json:"cloud_id"`
}

func (r *RESTConnector) discoverResource(ctx context.Context, token *UserOAuthToken) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.ResourceDiscoveryURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resource discovery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resource discovery returned status %d", resp.StatusCode)
	}

	var parsed discoverResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode resource discovery response: %w", err)
	}

	switch {
	case parsed.ResourceID != "":
		return parsed.ResourceID, nil
	case parsed.TenantID != "":
		return parsed.TenantID, nil
	case parsed.CloudID != "":
		return parsed.CloudID, nil
	default:
		return "", fmt.Errorf("resource discovery response had no recognizable identifier field")
	}
}

// ListTools returns the statically-configured tool catalog. userID is
// accepted for interface symmetry with the MCP adapter but unused: a REST
// provider's operations don't vary per user.
func (r *RESTConnector) ListTools(ctx context.Context, userID string) ([]ConnectorTool, error) {
	return r.tools, nil
}

// BuildTools resolves userID's token once and returns executable Tools for
// toolIDs, each closing over that same token. If the token refreshes mid-
// session, these closures keep using the captured token until the
// Manager's 300s tool cache expires and rebuilds them.
func (r *RESTConnector) BuildTools(ctx context.Context, userID string, toolIDs []string) ([]Tool, error) {
	token, err := r.GetToken(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(toolIDs))
	for _, id := range toolIDs {
		wanted[id] = true
	}

	built := make([]Tool, 0, len(toolIDs))
	for i := range r.tools {
		tool := r.tools[i]
		if !wanted[tool.Name] {
			continue
		}
		built = append(built, Tool{
			ProviderID:  r.cfg.ProviderID,
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				return r.callTool(ctx, tool, token, args)
			},
		})
	}
	return built, nil
}

func (r *RESTConnector) callTool(ctx context.Context, tool ConnectorTool, token *UserOAuthToken, args map[string]any) (string, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal tool arguments: %w", err)
	}

	reqURL := toolRequestURL(r.cfg, tool.Name, token.ResourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read tool response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: tool %s returned status %d: %s", ErrUpstream, tool.Name, resp.StatusCode, string(respBody))
	}

	return string(respBody), nil
}

func toolRequestURL(cfg OAuthConfig, toolName, resourceID string) string {
	base := cfg.APIBaseURL
	if resourceID != "" {
		return fmt.Sprintf("%s/%s/tools/%s", base, resourceID, toolName)
	}
	return fmt.Sprintf("%s/tools/%s", base, toolName)
}
