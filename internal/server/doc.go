// Package server exposes the connector runtime over HTTP: the endpoint list
// a chat UI or agent backend uses to let a user connect, inspect, and manage
// their OAuth connectors. It holds no OAuth or token logic itself — every
// handler is a thin adapter over internal/connector's Registry and Manager.
package server
