// Package app bootstraps the connector runtime process: loading
// configuration, constructing the credential store, building the connector
// registry and manager, and starting the HTTP surface. It is the single
// place that wires internal/config, internal/credstore, internal/connector,
// and internal/server together.
package app
