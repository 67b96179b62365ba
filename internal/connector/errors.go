package connector

import "errors"

var (
	// ErrUnknownProvider is returned when a provider id has no registered
	// OAuthConfig in the Registry.
	ErrUnknownProvider = errors.New("connector: unknown provider")

	// ErrUnknownTool is returned when a tool name doesn't match any tool
	// currently cataloged for a user's connector.
	ErrUnknownTool = errors.New("connector: unknown tool")

	// ErrInvalidTool is returned when a tool invocation's arguments fail
	// coercion against the tool's declared input schema, and when
	// UpdateUserTools is given an enabled-tool id outside the connector's
	// currently advertised catalog.
	ErrInvalidTool = errors.New("connector: invalid tool arguments")

	// ErrInvalidState is returned when an OAuth callback's state parameter
	// doesn't match any pending transient state record (missing, expired,
	// or already consumed).
	ErrInvalidState = errors.New("connector: invalid or expired state")

	// ErrStateUserMismatch is returned when an OAuth callback's state
	// resolves to a transient record owned by a different user than the
	// one completing the callback.
	ErrStateUserMismatch = errors.New("connector: state does not belong to this user")

	// ErrNotAuthenticated is returned when a connector operation requires a
	// token and none exists for the (user, provider) pair.
	ErrNotAuthenticated = errors.New("connector: not authenticated")

	// ErrNeedsReauth is returned when a refresh attempt fails in a way that
	// indicates the refresh token itself is no longer valid (revoked,
	// expired, or rejected by the provider) and the user must re-authorize.
	ErrNeedsReauth = errors.New("connector: reauthorization required")

	// ErrNoRefreshCapability is returned when a token is expired and the
	// provider issued no refresh token at all, distinct from ErrNeedsReauth
	// (which means a refresh was attempted and rejected).
	ErrNoRefreshCapability = errors.New("connector: token expired and no refresh token available")

	// ErrUpstream wraps a failure reported by the provider's authorization,
	// token, or resource server.
	ErrUpstream = errors.New("connector: upstream error")

	// ErrDisabled is returned when an operation targets a connector the
	// user has explicitly disabled.
	ErrDisabled = errors.New("connector: connector disabled for user")

	// ErrCoercion is returned when the MCP input-coercion ladder exhausts
	// every strategy without producing a valid argument map.
	ErrCoercion = errors.New("connector: unable to coerce input")
)
