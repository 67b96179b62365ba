// Package credstore is the encrypted credential store backing the connector
// runtime: per-user OAuth tokens, per-user connector configuration, and the
// short-lived transient state used during the authorization-code exchange.
//
// Two namespaces share one Valkey/Redis-compatible keyspace but carry
// different sensitivity:
//
//   - persistent namespace (user:{userId}:connector:{providerId}:*) holds
//     tokens and is encrypted at rest with AES-256-GCM.
//   - transient namespace (oauth:state:{state}) holds only a PKCE verifier
//     and the initiating user/provider for the few minutes an authorization
//     round trip takes; it is stored as plain JSON with a 600s TTL.
//
// internal/connector depends on the Store interface only; it never talks to
// Valkey directly.
package credstore
