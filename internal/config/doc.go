// Package config loads the static configuration for the connector runtime:
// the set of registered OAuth providers, the credential store connection,
// and the HTTP server bind address.
//
// Configuration is immutable after load — per spec, OAuthConfig entries are
// "created at process start from static configuration; destroyed at
// shutdown." There is no hot-reload.
//
// Secrets (client secrets, the credential-store encryption key, the Valkey
// password) may be supplied inline or via a `*File` path; when both are
// empty the corresponding feature is disabled or the zero value is used,
// except the encryption key, which Validate requires in every loaded file.
// File-based secrets are preferred for production deployments, keeping
// secret material out of the config file and environment.
package config
