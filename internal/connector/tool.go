package connector

import "context"

// Tool is an executable operation handed to the agent runtime: a stable
// name, a natural-language description, its argument schema, and an
// invoke closure. The agent treats Invoke as opaque — it never sees
// whether the underlying connector is REST or MCP, or how the closure
// captured its credentials.
type Tool struct {
	ProviderID  string
	Name        string
	Description string
	InputSchema map[string]any
	Invoke      func(ctx context.Context, args map[string]any) (string, error)
}
