package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sambanova-oss/connectorrt/internal/credstore"
	"github.com/sambanova-oss/connectorrt/pkg/logging"
	"github.com/sambanova-oss/connectorrt/pkg/oauth"
)

const logSubsystem = "connector"

// Connector is the dynamic-dispatch boundary between the per-user OAuth
// lifecycle (shared by every provider) and the protocol-specific tool
// surface (REST endpoints vs. MCP JSON-RPC). The Manager holds one
// Connector per configured provider and never branches on adapter kind
// itself; RESTConnector and MCPConnector each embed *BaseConnector for the
// shared state machine and implement ListTools/BuildTools independently.
type Connector interface {
	ProviderID() string
	Metadata() ConnectorMetadata

	BuildAuthURL(ctx context.Context, userID string) (authURL string, state string, err error)
	HandleCallback(ctx context.Context, userID, state, code string) (*UserOAuthToken, error)

	// GetToken returns the current token for userID. When autoRefresh is
	// true and the token NeedsRefresh, it is refreshed (a network call and
	// a store write) before returning; when false, the stored token is
	// returned exactly as read, so status/listing reads never mutate state.
	GetToken(ctx context.Context, userID string, autoRefresh bool) (*UserOAuthToken, error)
	RefreshToken(ctx context.Context, userID string) (*UserOAuthToken, error)
	Revoke(ctx context.Context, userID string) error

	// ListTools returns the full tool catalog available to userID, for
	// display and for validating a requested enabled-tool-ids subset. It
	// does not bind credentials.
	ListTools(ctx context.Context, userID string) ([]ConnectorTool, error)

	// BuildTools materializes toolIDs as executable Tools for userID. Each
	// adapter decides its own credential-capture policy: the REST adapter
	// resolves the token once here and every returned Tool's Invoke
	// closure reuses it; the MCP adapter resolves the token fresh inside
	// each Tool's Invoke call.
	BuildTools(ctx context.Context, userID string, toolIDs []string) ([]Tool, error)
}

// clock is overridden in tests to control time-dependent expiry/refresh
// decisions without sleeping.
type clock func() time.Time

// BaseConnector implements the OAuth authorization-code-with-PKCE state
// machine shared by every adapter: building the authorize URL, exchanging
// the callback code, proactive and reactive refresh, and revocation. It is
// embedded by RESTConnector and MCPConnector, which add their own
// ListTools/BuildTools.
type BaseConnector struct {
	cfg         OAuthConfig
	store       credstore.Store
	oauthClient *oauth.Client
	now         clock

	// discoverResource is called once, right after a successful code
	// exchange, when cfg.ResourceDiscoveryURL is set. Go embedding can't
	// give HandleCallback a virtual-method override, so adapters inject
	// their resource-discovery strategy as a function instead.
	discoverResource func(ctx context.Context, token *UserOAuthToken) (string, error)
}

// NewBaseConnector constructs the shared OAuth state machine for one
// provider configuration. discoverResource may be nil if cfg has no
// ResourceDiscoveryURL.
func NewBaseConnector(cfg OAuthConfig, store credstore.Store, oauthClient *oauth.Client, discoverResource func(ctx context.Context, token *UserOAuthToken) (string, error)) *BaseConnector {
	return &BaseConnector{
		cfg:              cfg,
		store:            store,
		oauthClient:      oauthClient,
		now:              time.Now,
		discoverResource: discoverResource,
	}
}

func (b *BaseConnector) ProviderID() string { return b.cfg.ProviderID }

func (b *BaseConnector) Metadata() ConnectorMetadata {
	return ConnectorMetadata{
		ProviderID:  b.cfg.ProviderID,
		DisplayName: b.cfg.DisplayName,
		Description: b.cfg.Description,
		IconURL:     b.cfg.IconURL,
		Adapter:     b.cfg.Adapter,
	}
}

// BuildAuthURL mints a state token and, if the provider requires PKCE, a
// code verifier; stores both as transient state with a 600s TTL; and
// returns the fully composed authorization URL.
func (b *BaseConnector) BuildAuthURL(ctx context.Context, userID string) (string, string, error) {
	state, err := oauth.GenerateState()
	if err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}

	transient := TransientState{
		State:       state,
		UserID:      userID,
		ProviderID:  b.cfg.ProviderID,
		RedirectURI: b.cfg.RedirectURI,
		CreatedAt:   b.now(),
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", b.cfg.ClientID)
	params.Set("redirect_uri", b.cfg.RedirectURI)
	params.Set("state", state)
	scopes := b.cfg.Scopes
	if b.cfg.RequireOfflineAccess {
		hasOffline := false
		for _, s := range scopes {
			if s == "offline_access" {
				hasOffline = true
				break
			}
		}
		if !hasOffline {
			scopes = append(append([]string{}, scopes...), "offline_access")
		}
	}
	if len(scopes) > 0 {
		params.Set("scope", joinScopes(scopes))
	}
	if b.cfg.ForceConsent {
		params.Set("prompt", "consent")
		params.Set("access_type", "offline")
	} else if b.cfg.RequireOfflineAccess {
		params.Set("access_type", "offline")
	}
	for k, v := range b.cfg.AdditionalParams {
		params.Set(k, v)
	}

	if b.cfg.UsePKCE {
		pkce, err := oauth.GeneratePKCE()
		if err != nil {
			return "", "", fmt.Errorf("generate PKCE: %w", err)
		}
		transient.CodeVerifier = pkce.CodeVerifier
		params.Set("code_challenge", pkce.CodeChallenge)
		params.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}

	blob, err := json.Marshal(transient)
	if err != nil {
		return "", "", fmt.Errorf("marshal transient state: %w", err)
	}
	if err := b.store.SetEX(ctx, credstore.TransientStateKey(state), credstore.TransientStateTTLSeconds, string(blob)); err != nil {
		return "", "", fmt.Errorf("store transient state: %w", err)
	}

	authURL := b.cfg.AuthorizeURL + "?" + params.Encode()
	return authURL, state, nil
}

// HandleCallback resolves the state token against the stored transient
// record, verifies it belongs to userID, exchanges the authorization code
// for a token, persists it, and deletes the transient record so it cannot
// be replayed.
func (b *BaseConnector) HandleCallback(ctx context.Context, userID, state, code string) (*UserOAuthToken, error) {
	raw, err := b.store.Get(ctx, credstore.TransientStateKey(state), "")
	if err != nil {
		if err == credstore.ErrNotFound {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("load transient state: %w", err)
	}

	var transient TransientState
	if err := json.Unmarshal([]byte(raw), &transient); err != nil {
		return nil, fmt.Errorf("decode transient state: %w", err)
	}
	// Single-use: delete immediately, before the network round trip, so a
	// concurrent replay of the same callback URL can't also succeed.
	_ = b.store.Delete(ctx, credstore.TransientStateKey(state))

	if transient.ProviderID != b.cfg.ProviderID {
		return nil, ErrInvalidState
	}
	if transient.UserID != userID {
		return nil, ErrStateUserMismatch
	}

	protoToken, err := b.oauthClient.ExchangeCode(ctx, oauth.ExchangeCodeParams{
		TokenURL:     b.cfg.TokenURL,
		ClientID:     b.cfg.ClientID,
		ClientSecret: b.cfg.ClientSecret,
		Code:         code,
		RedirectURI:  transient.RedirectURI,
		CodeVerifier: transient.CodeVerifier,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	token := b.tokenFromProtocol(transient.UserID, protoToken)
	if b.cfg.RequireOfflineAccess && token.RefreshToken == "" {
		logging.Warn(logSubsystem, "provider %s returned no refresh_token for user %s despite offline access being requested", b.cfg.ProviderID, logging.TruncateSessionID(transient.UserID))
	}

	if b.cfg.ResourceDiscoveryURL != "" && b.discoverResource != nil {
		resourceID, err := b.discoverResource(ctx, token)
		if err != nil {
			logging.Warn(logSubsystem, "resource discovery failed for provider %s user %s: %v", b.cfg.ProviderID, transient.UserID, err)
		} else {
			token.ResourceID = resourceID
		}
	}

	if err := b.saveToken(ctx, token); err != nil {
		return nil, err
	}

	logging.Audit(logging.AuditEvent{
		Action:  "oauth_callback",
		Outcome: "success",
		UserID:  logging.TruncateSessionID(transient.UserID),
		Target:  b.cfg.ProviderID,
	})

	return token, nil
}

// GetToken returns the current token for userID. With autoRefresh, it
// transparently refreshes the token first if NeedsRefresh reports true and
// the token is not marked RefreshInvalid; status and enablement checks pass autoRefresh=false to read the stored
// token as-is, per the derived-status rule that a status read must never
// itself rotate or invalidate a refresh token.
func (b *BaseConnector) GetToken(ctx context.Context, userID string, autoRefresh bool) (*UserOAuthToken, error) {
	token, err := b.loadToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	if autoRefresh && !token.RefreshInvalid && token.NeedsRefresh(b.now()) {
		refreshed, err := b.RefreshToken(ctx, userID)
		if err != nil {
			if token.IsExpired(b.now()) {
				return nil, err
			}
			// Proactive refresh failed but the current token is still
			// live within its buffer; serve it and let the next call retry.
			logging.Warn(logSubsystem, "proactive refresh failed for provider %s user %s, serving existing token: %v", b.cfg.ProviderID, userID, err)
			return token, nil
		}
		return refreshed, nil
	}

	return token, nil
}

// RefreshToken exchanges the stored refresh token for a new access token.
// Providers with RotatingRefresh issue a new refresh token on every
// refresh; the old one is invalidated atomically by overwriting the stored
// record. A rejected refresh token means reauthorization is required, not
// a transient error.
func (b *BaseConnector) RefreshToken(ctx context.Context, userID string) (*UserOAuthToken, error) {
	current, err := b.loadToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.RefreshToken == "" {
		return nil, ErrNoRefreshCapability
	}

	protoToken, err := b.oauthClient.RefreshToken(ctx, oauth.RefreshTokenParams{
		TokenURL:     b.cfg.TokenURL,
		ClientID:     b.cfg.ClientID,
		ClientSecret: b.cfg.ClientSecret,
		RefreshToken: current.RefreshToken,
	})
	if err != nil {
		// "Invalid refresh token" semantics: keep the record (metadata
		// stays readable) but mark it so further auto-refresh stops.
		current.RefreshInvalid = true
		if saveErr := b.saveToken(ctx, current); saveErr != nil {
			logging.Warn(logSubsystem, "failed to persist refresh_invalid flag for provider %s user %s: %v", b.cfg.ProviderID, userID, saveErr)
		}

		logging.Audit(logging.AuditEvent{
			Action:  "oauth_refresh",
			Outcome: "failure",
			UserID:  logging.TruncateSessionID(userID),
			Target:  b.cfg.ProviderID,
			Error:   err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrNeedsReauth, err)
	}

	updated := b.tokenFromProtocol(userID, protoToken)
	if updated.RefreshToken == "" {
		if b.cfg.RotatingRefresh {
			// A rotating provider that didn't send a new refresh token is
			// treated as an invalid refresh, not a silent carry-over.
			current.RefreshInvalid = true
			if saveErr := b.saveToken(ctx, current); saveErr != nil {
				logging.Warn(logSubsystem, "failed to persist refresh_invalid flag for provider %s user %s: %v", b.cfg.ProviderID, userID, saveErr)
			}
			return nil, ErrNeedsReauth
		}
		updated.RefreshToken = current.RefreshToken
	}
	updated.ResourceID = current.ResourceID

	if err := b.saveToken(ctx, updated); err != nil {
		return nil, err
	}

	logging.Audit(logging.AuditEvent{
		Action:  "oauth_refresh",
		Outcome: "success",
		UserID:  logging.TruncateSessionID(userID),
		Target:  b.cfg.ProviderID,
	})

	return updated, nil
}

// Revoke calls the provider's revocation endpoint (if configured) and
// deletes the stored token regardless of whether the upstream call
// succeeds, since a local disconnect must not be blocked by a flaky
// provider.
func (b *BaseConnector) Revoke(ctx context.Context, userID string) error {
	token, err := b.loadToken(ctx, userID)
	if err != nil && err != ErrNotAuthenticated {
		return err
	}

	if token != nil && b.cfg.RevokeURL != "" {
		if err := b.oauthClient.Revoke(ctx, oauth.RevokeParams{
			RevokeURL:    b.cfg.RevokeURL,
			ClientID:     b.cfg.ClientID,
			ClientSecret: b.cfg.ClientSecret,
			Token:        token.AccessToken,
		}); err != nil {
			logging.Warn(logSubsystem, "revoke call failed for provider %s user %s: %v", b.cfg.ProviderID, userID, err)
		}
	}

	if err := b.store.Delete(ctx, credstore.TokenKey(userID, b.cfg.ProviderID)); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:  "oauth_disconnect",
		Outcome: "success",
		UserID:  logging.TruncateSessionID(userID),
		Target:  b.cfg.ProviderID,
	})

	return nil
}

// loadToken reads the token hash at user:{userID}:connector:{providerID}:token
// field-by-field (§6: stored as a hash, not a single blob, so a field-level
// reader like an ops hgetall against Valkey sees the same record we do).
func (b *BaseConnector) loadToken(ctx context.Context, userID string) (*UserOAuthToken, error) {
	fields, err := b.store.HGetAll(ctx, credstore.TokenKey(userID, b.cfg.ProviderID), userID)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotAuthenticated
	}

	token, err := tokenFromFields(userID, b.cfg.ProviderID, fields)
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return token, nil
}

func (b *BaseConnector) saveToken(ctx context.Context, token *UserOAuthToken) error {
	if err := b.store.HSet(ctx, credstore.TokenKey(token.UserID, b.cfg.ProviderID), tokenToFields(token), token.UserID); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// tokenToFields serializes token into the hash-field layout §6 specifies:
// one string field per UserOAuthToken attribute, timestamps as RFC3339.
// Every field is always present, even when empty: HSET only ever touches
// the fields given to it, so a save that omitted a now-cleared field (e.g.
// refresh_invalid after a successful reauth) would leave its previous
// value stuck in the hash forever.
func tokenToFields(token *UserOAuthToken) map[string]string {
	fields := map[string]string{
		"access_token":    token.AccessToken,
		"refresh_token":   token.RefreshToken,
		"token_type":      token.TokenType,
		"scope":           token.Scope,
		"resource_id":     token.ResourceID,
		"issued_at":       "",
		"expires_at":      "",
		"refresh_invalid": "false",
	}
	if !token.IssuedAt.IsZero() {
		fields["issued_at"] = token.IssuedAt.Format(time.RFC3339)
	}
	if !token.ExpiresAt.IsZero() {
		fields["expires_at"] = token.ExpiresAt.Format(time.RFC3339)
	}
	if token.RefreshInvalid {
		fields["refresh_invalid"] = "true"
	}
	return fields
}

// tokenFromFields is the inverse of tokenToFields. A blank or unparseable
// timestamp field is treated as zero-value rather than an error, since a
// record written by an older schema may simply be missing it.
func tokenFromFields(userID, providerID string, fields map[string]string) (*UserOAuthToken, error) {
	if fields["access_token"] == "" {
		return nil, fmt.Errorf("token record for %s/%s has no access_token", userID, providerID)
	}
	token := &UserOAuthToken{
		UserID:         userID,
		ProviderID:     providerID,
		AccessToken:    fields["access_token"],
		RefreshToken:   fields["refresh_token"],
		TokenType:      fields["token_type"],
		Scope:          fields["scope"],
		ResourceID:     fields["resource_id"],
		RefreshInvalid: fields["refresh_invalid"] == "true",
	}
	if v := fields["issued_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			token.IssuedAt = t
		}
	}
	if v := fields["expires_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			token.ExpiresAt = t
		}
	}
	return token, nil
}

func (b *BaseConnector) tokenFromProtocol(userID string, t *oauth.Token) *UserOAuthToken {
	issuedAt := b.now()
	t.SetExpiresAtFromExpiresIn()
	return &UserOAuthToken{
		UserID:       userID,
		ProviderID:   b.cfg.ProviderID,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Scope:        t.Scope,
		IssuedAt:     issuedAt,
		ExpiresAt:    t.ExpiresAt,
	}
}

func joinScopes(scopes []string) string {
	out := scopes[0]
	for _, s := range scopes[1:] {
		out += " " + s
	}
	return out
}
