package app

import (
	"encoding/json"
	"fmt"

	"github.com/sambanova-oss/connectorrt/internal/config"
	"github.com/sambanova-oss/connectorrt/internal/connector"
)

// toOAuthConfigs translates the on-disk provider declarations into the
// Connector package's runtime OAuthConfig plus a REST provider's static tool
// catalog. MCP providers discover their tool catalog live and ignore
// ToolConfig entirely.
func toOAuthConfigs(providers []config.ProviderConfig) ([]connector.OAuthConfig, map[string][]connector.ConnectorTool, error) {
	configs := make([]connector.OAuthConfig, 0, len(providers))
	toolsByProvider := make(map[string][]connector.ConnectorTool, len(providers))

	for _, p := range providers {
		cfg, err := toOAuthConfig(p)
		if err != nil {
			return nil, nil, fmt.Errorf("provider %s: %w", p.ProviderID, err)
		}
		configs = append(configs, cfg)

		if cfg.Adapter == connector.AdapterREST {
			tools, err := toConnectorTools(p)
			if err != nil {
				return nil, nil, fmt.Errorf("provider %s tools: %w", p.ProviderID, err)
			}
			toolsByProvider[p.ProviderID] = tools
		}
	}

	return configs, toolsByProvider, nil
}

func toOAuthConfig(p config.ProviderConfig) (connector.OAuthConfig, error) {
	adapter := connector.AdapterREST
	if p.Adapter == "mcp" {
		adapter = connector.AdapterMCP
	} else if p.Adapter != "" && p.Adapter != "rest" {
		return connector.OAuthConfig{}, fmt.Errorf("unknown adapter %q", p.Adapter)
	}

	usePKCE := true
	if p.UsePKCE != nil {
		usePKCE = *p.UsePKCE
	}
	probeBeforeBuild := true
	if p.ProbeBeforeBuild != nil {
		probeBeforeBuild = *p.ProbeBeforeBuild
	}

	return connector.OAuthConfig{
		ProviderID:           p.ProviderID,
		DisplayName:          p.DisplayName,
		Description:          p.Description,
		IconURL:              p.IconURL,
		Adapter:              adapter,
		ClientID:             p.ClientID,
		ClientSecret:         p.ClientSecret,
		AuthorizeURL:         p.AuthorizeURL,
		TokenURL:             p.TokenURL,
		RevokeURL:            p.RevokeURL,
		UserinfoURL:          p.UserinfoURL,
		RedirectURI:          p.RedirectURI,
		Scopes:               p.Scopes,
		UsePKCE:              usePKCE,
		RotatingRefresh:      p.RotatingRefresh,
		ForceConsent:         p.ForceConsent,
		RequireOfflineAccess: p.RequireOfflineAccess,
		AdditionalParams:     p.AdditionalParams,
		ResourceDiscoveryURL: p.ResourceDiscoveryURL,
		APIBaseURL:           p.APIBaseURL,
		MCPServerURL:         p.MCPServerURL,
		Transport:            p.Transport,
		UseDiscovery:         p.UseDiscovery,
		ProbeBeforeBuild:     probeBeforeBuild,
	}, nil
}

func toConnectorTools(p config.ProviderConfig) ([]connector.ConnectorTool, error) {
	tools := make([]connector.ConnectorTool, 0, len(p.Tools))
	for _, t := range p.Tools {
		var schema map[string]any
		if t.ParametersSchemaJSON != "" {
			if err := json.Unmarshal([]byte(t.ParametersSchemaJSON), &schema); err != nil {
				return nil, fmt.Errorf("tool %s: invalid parametersSchema: %w", t.ID, err)
			}
		}
		tools = append(tools, connector.ConnectorTool{
			ProviderID:   p.ProviderID,
			Name:         t.Name,
			Description:  t.Description,
			InputSchema:  schema,
			RequiresAuth: t.RequiresAuth,
		})
	}
	return tools, nil
}
