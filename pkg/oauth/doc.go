// Package oauth provides protocol-level OAuth 2.1 primitives shared by the
// REST and MCP connector adapters: PKCE generation, authorization-server
// metadata discovery (RFC 8414 / OIDC discovery), WWW-Authenticate header
// parsing, and the token-exchange HTTP client.
//
// # Core Components
//
//   - Token: OAuth token representation with expiry checking
//   - Metadata: OAuth/OIDC server metadata (RFC 8414)
//   - ProtectedResourceMetadata: RFC 9728 protected-resource metadata
//   - AuthChallenge: Parsed WWW-Authenticate header information
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636)
//   - Client: discovery and token-exchange operations, with metadata caching
//
// internal/connector builds the per-(user,provider) domain model and state
// machine on top of these primitives; this package knows nothing about
// users, providers, or credential storage.
//
//	challenge, err := oauth.ParseWWWAuthenticate(header)
//	pkce, err := oauth.GeneratePKCE()
//	client := oauth.NewClient()
//	metadata, err := client.DiscoverMetadata(ctx, issuer)
package oauth
