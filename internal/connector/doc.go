// Package connector implements the per-(user, provider) OAuth connector
// domain model: the system-wide connector Registry, the per-user Manager
// that tracks enablement and tool visibility, and the Connector state
// machine (shared by the REST and MCP adapters) that drives the
// authorization-code-with-PKCE flow and proactive token refresh.
//
// internal/credstore is the only persistence dependency; pkg/oauth supplies
// the protocol-level PKCE and discovery primitives this package wraps with
// per-user bookkeeping.
package connector
