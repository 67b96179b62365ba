package credstore

import "fmt"

// TransientStateTTLSeconds bounds how long an in-flight authorization-code
// exchange may sit unclaimed before its state token is garbage.
const TransientStateTTLSeconds = 600

// TokenKey is the persistent-namespace key for a user's OAuth token on a
// given provider.
func TokenKey(userID, providerID string) string {
	return fmt.Sprintf("user:%s:connector:%s:token", userID, providerID)
}

// ConnectorConfigKey is the persistent-namespace key for a user's
// per-connector configuration (enabled state, tool visibility).
func ConnectorConfigKey(userID, providerID string) string {
	return fmt.Sprintf("user:%s:connector:%s:config", userID, providerID)
}

// CustomMCPKey is the persistent-namespace key for a user-registered custom
// MCP server connector definition.
func CustomMCPKey(userID, providerID string) string {
	return fmt.Sprintf("user:%s:custom_mcp:%s", userID, providerID)
}

// TransientStateKey is the transient-namespace key for an in-flight
// authorization-code exchange, keyed by the random state value minted at
// authorize-init time.
func TransientStateKey(state string) string {
	return "oauth:state:" + state
}
