package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sambanova-oss/connectorrt/internal/credstore"
	"github.com/sambanova-oss/connectorrt/pkg/logging"
	"github.com/sambanova-oss/connectorrt/pkg/oauth"
)

const mcpLogSubsystem = "mcp"

// toolCatalogTTL bounds how long a discovered MCP tool catalog is reused
// before the adapter re-fetches it from the server.
const toolCatalogTTL = 300 * time.Second

// MCPConnector adapts a remote MCP JSON-RPC server (reached over HTTP, SSE,
// or streamable-HTTP) onto the Connector interface. Unlike the REST
// adapter's static tool list, its catalog is discovered on demand from the
// server and cached briefly.
type MCPConnector struct {
	*BaseConnector
	httpClient *http.Client
	transport  string

	catalogMu      sync.Mutex
	catalogByUser  map[string]mcpCatalogEntry
}

type mcpCatalogEntry struct {
	tools     []ConnectorTool
	fetchedAt time.Time
}

// NewMCPConnector builds an MCP adapter using cfg's AuthorizeURL/TokenURL.
// It does not run discovery itself: DiscoverOAuthConfig fills those in from
// the server's metadata, and only Registry.loadUserConnector calls it, for
// user-registered connectors with UseDiscovery set.
func NewMCPConnector(cfg OAuthConfig, store credstore.Store, oauthClient *oauth.Client, httpClient *http.Client) (*MCPConnector, error) {
	transport := negotiateTransport(cfg.Transport)
	if transport == "unknown" {
		return nil, fmt.Errorf("connector %s: unsupported MCP transport %q", cfg.ProviderID, cfg.Transport)
	}

	m := &MCPConnector{
		httpClient:    httpClient,
		transport:     transport,
		catalogByUser: make(map[string]mcpCatalogEntry),
	}
	m.BaseConnector = NewBaseConnector(cfg, store, oauthClient, nil)
	return m, nil
}

// negotiateTransport maps the configured transport name onto the adapter's
// two internal routing modes. stdio is a local-process transport and is
// out of scope for this server-side core.
func negotiateTransport(configured string) string {
	switch configured {
	case "", "http", "streamable-http", "streamable_http":
		return "streamable_http"
	case "sse":
		return "sse"
	default:
		return "unknown"
	}
}

// DiscoverOAuthConfig implements the RFC 9728 → RFC 8414/OIDC discovery
// chain for an MCP server that doesn't have a pre-configured authorization
// server: fetch the server's protected-resource metadata, then the
// authorization server's own metadata, and fill in cfg's endpoints.
func (m *MCPConnector) DiscoverOAuthConfig(ctx context.Context) error {
	prm, err := m.fetchProtectedResourceMetadata(ctx)
	if err != nil {
		return fmt.Errorf("discover protected resource metadata: %w", err)
	}
	if len(prm.AuthorizationServers) == 0 {
		return fmt.Errorf("protected resource metadata for %s lists no authorization servers", m.cfg.MCPServerURL)
	}

	authServer := prm.AuthorizationServers[0]
	metadata, err := m.oauthClient.DiscoverMetadata(ctx, authServer)
	if err != nil {
		return fmt.Errorf("discover authorization server metadata for %s: %w", authServer, err)
	}

	m.cfg.AuthorizeURL = metadata.AuthorizationEndpoint
	m.cfg.TokenURL = metadata.TokenEndpoint
	if m.cfg.AdditionalParams == nil {
		m.cfg.AdditionalParams = map[string]string{}
	}
	// RFC 8707: bind the issued token to this specific resource server.
	m.cfg.AdditionalParams["resource"] = m.cfg.MCPServerURL
	return nil
}

// protectedResourceWellKnownURL builds the RFC 9728 discovery URL for an MCP
// server's resource path: the well-known segment is inserted ahead of any
// non-root path component rather than simply appended to the origin, e.g.
// "https://mcp.example/x" -> "https://mcp.example/.well-known/oauth-protected-resource/x".
func protectedResourceWellKnownURL(serverURL string) string {
	base := oauth.NormalizeServerURL(serverURL)
	u, err := url.Parse(base)
	if err != nil || u.Path == "" || u.Path == "/" {
		return base + "/.well-known/oauth-protected-resource"
	}
	path := strings.TrimSuffix(u.Path, "/")
	u.Path = "/.well-known/oauth-protected-resource" + path
	return u.String()
}

func (m *MCPConnector) fetchProtectedResourceMetadata(ctx context.Context) (*oauth.ProtectedResourceMetadata, error) {
	url := protectedResourceWellKnownURL(m.cfg.MCPServerURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d fetching %s", resp.StatusCode, url)
	}

	var prm oauth.ProtectedResourceMetadata
	if err := json.NewDecoder(resp.Body).Decode(&prm); err != nil {
		return nil, fmt.Errorf("decode protected resource metadata: %w", err)
	}
	return &prm, nil
}

// ListTools fetches the server's current tool catalog, using a 300s
// process-local cache keyed by userID (tool availability can in principle
// vary per user's granted scopes).
func (m *MCPConnector) ListTools(ctx context.Context, userID string) ([]ConnectorTool, error) {
	m.catalogMu.Lock()
	if entry, ok := m.catalogByUser[userID]; ok && time.Since(entry.fetchedAt) < toolCatalogTTL {
		m.catalogMu.Unlock()
		return entry.tools, nil
	}
	m.catalogMu.Unlock()

	token, err := m.GetToken(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	tools, err := m.fetchToolCatalog(ctx, token)
	if err != nil {
		return nil, err
	}

	m.catalogMu.Lock()
	m.catalogByUser[userID] = mcpCatalogEntry{tools: tools, fetchedAt: time.Now()}
	m.catalogMu.Unlock()

	return tools, nil
}

// probeConnection smoke-tests the tool-listing endpoint ahead of a batch
// BuildTools call, so an unreachable server yields an empty, logged tool
// set instead of an error.
func (m *MCPConnector) probeConnection(ctx context.Context, userID string) bool {
	token, err := m.GetToken(ctx, userID, true)
	if err != nil {
		return false
	}
	_, err = m.fetchToolCatalog(ctx, token)
	return err == nil
}

func (m *MCPConnector) fetchToolCatalog(ctx context.Context, token *UserOAuthToken) ([]ConnectorTool, error) {
	url := strings.TrimSuffix(m.cfg.MCPServerURL, "/") + "/mcp/v1/tools"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tool catalog request returned status %d", ErrUpstream, resp.StatusCode)
	}

	// The catalog is decoded into mcp.Tool, the same descriptor type used
	// throughout the ecosystem for MCP tool metadata, rather than a
	// bespoke struct, so its InputSchema shape matches what any MCP client
	// would see from this server.
	var descriptors []mcp.Tool
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return nil, fmt.Errorf("decode tool catalog: %w", err)
	}

	tools := make([]ConnectorTool, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, ConnectorTool{
			ProviderID:  m.cfg.ProviderID,
			Name:        d.Name,
			Description: d.Description,
			InputSchema: toolInputSchemaToMap(d.InputSchema),
		})
	}
	return tools, nil
}

// toolInputSchemaToMap flattens mcp.ToolInputSchema into the plain
// map[string]any shape CoerceInput and the REST adapter's static schemas
// both already use.
func toolInputSchemaToMap(schema mcp.ToolInputSchema) map[string]any {
	out := map[string]any{"type": schema.Type}
	if len(schema.Properties) > 0 {
		out["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}
	return out
}

// BuildTools materializes toolIDs from the current catalog as executable
// Tools. Unlike the REST adapter, each Tool resolves its token fresh on
// every invocation, matching executeTool's "resolve token (auto-refresh)"
// step.
func (m *MCPConnector) BuildTools(ctx context.Context, userID string, toolIDs []string) ([]Tool, error) {
	if m.cfg.ProbeBeforeBuild && !m.probeConnection(ctx, userID) {
		logging.Warn(mcpLogSubsystem, "connection probe failed for %s/%s, returning no tools", m.cfg.ProviderID, userID)
		return nil, nil
	}

	catalog, err := m.ListTools(ctx, userID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(toolIDs))
	for _, id := range toolIDs {
		wanted[id] = true
	}

	built := make([]Tool, 0, len(toolIDs))
	for _, tool := range catalog {
		if !wanted[tool.Name] {
			continue
		}
		tool := tool
		built = append(built, Tool{
			ProviderID:  m.cfg.ProviderID,
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				return m.executeTool(ctx, userID, tool.Name, args)
			},
		})
	}
	return built, nil
}

// InvokeToolRaw is the entry point for callers holding a raw string
// argument rather than a parsed map: it coerces rawArgs against the tool's
// schema (see CoerceInput) and invokes the tool. The HTTP surface has no
// tool-invoke endpoint and does not call it.
func (m *MCPConnector) InvokeToolRaw(ctx context.Context, userID, toolName, rawArgs string) (string, error) {
	catalog, err := m.ListTools(ctx, userID)
	if err != nil {
		return "", err
	}
	var schema map[string]any
	found := false
	for _, tool := range catalog {
		if tool.Name == toolName {
			schema = tool.InputSchema
			found = true
			break
		}
	}
	if !found {
		return "", ErrUnknownTool
	}

	args, err := CoerceInput(rawArgs, schema)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTool, err)
	}

	return m.executeTool(ctx, userID, toolName, args)
}

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  jsonRPCParams  `json:"params"`
	ID      string         `json:"id"`
}

type jsonRPCParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type jsonRPCResponse struct {
	Result *jsonRPCResult `json:"result"`
	Error  *jsonRPCError  `json:"error"`
}

type jsonRPCResult struct {
	Content any    `json:"content"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// executeTool resolves userID's token (refreshing if needed) and invokes
// toolName over the negotiated transport's JSON-RPC endpoint.
func (m *MCPConnector) executeTool(ctx context.Context, userID, toolName string, args map[string]any) (string, error) {
	token, err := m.GetToken(ctx, userID, true)
	if err != nil {
		return "", err
	}

	envelope := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  jsonRPCParams{Name: toolName, Arguments: args},
		ID:      uuid.NewString(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("marshal JSON-RPC request: %w", err)
	}

	invokePath := "/mcp/v1/invoke"
	if m.transport == "sse" {
		invokePath = "/execute"
	}
	url := strings.TrimSuffix(m.cfg.MCPServerURL, "/") + invokePath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build tool invocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var raw bytes.Buffer
		raw.ReadFrom(resp.Body)
		return fmt.Sprintf(`{"success":false,"error":"HTTP %d: %s"}`, resp.StatusCode, raw.String()), nil
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return "", fmt.Errorf("decode JSON-RPC response: %w", err)
	}

	if rpcResp.Error != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, rpcResp.Error.Message), nil
	}
	if rpcResp.Result == nil {
		return "", fmt.Errorf("%w: JSON-RPC response had neither result nor error", ErrUpstream)
	}

	return formatToolResult(rpcResp.Result), nil
}

// formatToolResult flattens a JSON-RPC result into the string the agent
// runtime expects, preferring content, then text, then message; dict-shaped
// content is rendered as "k: v" lines.
func formatToolResult(result *jsonRPCResult) string {
	switch content := result.Content.(type) {
	case string:
		return content
	case map[string]any:
		lines := make([]string, 0, len(content))
		for k, v := range content {
			lines = append(lines, fmt.Sprintf("%s: %v", k, v))
		}
		return strings.Join(lines, "\n")
	case nil:
		if result.Text != "" {
			return result.Text
		}
		return result.Message
	default:
		blob, err := json.Marshal(content)
		if err != nil {
			return fmt.Sprintf("%v", content)
		}
		return string(blob)
	}
}
