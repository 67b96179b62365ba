package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sambanova-oss/connectorrt/internal/connector"
	"github.com/sambanova-oss/connectorrt/pkg/logging"
)

const logSubsystem = "connectorhttp"

// userIDHeader is the header an upstream auth layer is expected to set after
// authenticating the caller. This package does not authenticate callers
// itself; it only requires that identity be established upstream.
const userIDHeader = "X-User-Id"

// Config controls the HTTP surface: where a completed or failed OAuth
// callback should redirect the user's browser.
type Config struct {
	// CallbackRedirectURL is the UI page the browser is sent to after
	// /connectors/{providerId}/callback completes. "?success=true" or
	// "?error=<reason>" is appended.
	CallbackRedirectURL string
}

// Server wires the connector Registry and Manager onto an HTTP mux.
type Server struct {
	cfg      Config
	registry *connector.Registry
	manager  *connector.Manager
}

// New builds a Server. registry and manager must already be loaded.
func New(cfg Config, registry *connector.Registry, manager *connector.Manager) *Server {
	return &Server{cfg: cfg, registry: registry, manager: manager}
}

// Mux returns the configured http.Handler. Every route below /connectors
// requires userIDHeader to be set by whatever sits in front of this mux.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /connectors/available", s.requireUser(s.handleAvailable))
	mux.HandleFunc("GET /connectors/user", s.requireUser(s.handleUserConnectors))
	mux.HandleFunc("POST /connectors/{providerId}/auth/init", s.requireUser(s.handleAuthInit))
	mux.HandleFunc("GET /connectors/{providerId}/callback", s.handleCallback)
	mux.HandleFunc("POST /connectors/{providerId}/refresh", s.requireUser(s.handleRefresh))
	mux.HandleFunc("DELETE /connectors/{providerId}/disconnect", s.requireUser(s.handleDisconnect))
	mux.HandleFunc("POST /connectors/{providerId}/enable", s.requireUser(s.handleEnable))
	mux.HandleFunc("POST /connectors/{providerId}/disable", s.requireUser(s.handleDisable))
	mux.HandleFunc("POST /connectors/{providerId}/tools/update", s.requireUser(s.handleToolsUpdate))
	mux.HandleFunc("POST /connectors/{providerId}/toggle-chat", s.requireUser(s.handleToggleChat))

	return mux
}

// requireUser wraps a handler that needs an authenticated user id, rejecting
// the request with 401 if userIDHeader is absent. The OAuth callback route
// deliberately does not use this: the provider redirecting the browser back
// has no way to set custom headers, so the callback recovers the user id
// from the transient state record instead.
func (s *Server) requireUser(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing_user", "no authenticated user")
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request, userID string) {
	writeJSON(w, http.StatusOK, map[string]any{"connectors": s.registry.Metadata()})
}

func (s *Server) handleUserConnectors(w http.ResponseWriter, r *http.Request, userID string) {
	projections, err := s.manager.UserConnectors(r.Context(), userID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connectors": projections})
}

func (s *Server) handleAuthInit(w http.ResponseWriter, r *http.Request, userID string) {
	providerID := r.PathValue("providerId")
	c, err := s.registry.Get(r.Context(), userID, providerID)
	if err != nil {
		writeConnectorError(w, err)
		return
	}

	authURL, state, err := c.BuildAuthURL(r.Context(), userID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"authorization_url": authURL,
		"state":             state,
		"provider_id":       providerID,
	})
}

// handleCallback is reached directly by the provider's redirect, so it
// carries no user-id header; HandleCallback recovers and validates the
// owning user from the transient state record it consumes.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("providerId")
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		s.redirectCallback(w, r, false, providerErr)
		return
	}

	state := query.Get("state")
	code := query.Get("code")
	if state == "" || code == "" {
		s.redirectCallback(w, r, false, "missing_code_or_state")
		return
	}

	// The provider's redirect carries no custom header, so the caller
	// identity here comes from whatever session mechanism survives a
	// cross-site redirect (e.g. a cookie set before auth/init) rather than
	// userIDHeader. HandleCallback rejects a mismatch against the user id
	// recorded in the transient state at auth/init time regardless of how
	// this value was obtained.
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		if cookie, err := r.Cookie("connector_user_id"); err == nil {
			userID = cookie.Value
		}
	}

	c, err := s.registry.Get(r.Context(), userID, providerID)
	if err != nil {
		s.redirectCallback(w, r, false, "unknown_provider")
		return
	}

	if _, err := c.HandleCallback(r.Context(), userID, state, code); err != nil {
		logging.Warn(logSubsystem, "callback failed for provider %s: %v", providerID, err)
		s.redirectCallback(w, r, false, callbackErrorReason(err))
		return
	}

	s.redirectCallback(w, r, true, "")
}

func callbackErrorReason(err error) string {
	switch {
	case errors.Is(err, connector.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, connector.ErrStateUserMismatch):
		return "state_user_mismatch"
	case errors.Is(err, connector.ErrUpstream):
		return "upstream_error"
	default:
		return "callback_failed"
	}
}

func (s *Server) redirectCallback(w http.ResponseWriter, r *http.Request, success bool, reason string) {
	if s.cfg.CallbackRedirectURL == "" {
		if success {
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		} else {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": reason})
		}
		return
	}

	target := s.cfg.CallbackRedirectURL
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	if success {
		target += sep + "success=true"
	} else {
		target += sep + "error=" + reason
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, userID string) {
	providerID := r.PathValue("providerId")
	c, err := s.registry.Get(r.Context(), userID, providerID)
	if err != nil {
		writeConnectorError(w, err)
		return
	}

	token, err := c.RefreshToken(r.Context(), userID)
	if err != nil {
		writeConnectorError(w, err)
		return
	}

	expiresIn := 0
	if !token.ExpiresAt.IsZero() {
		if d := token.ExpiresAt.Sub(time.Now()); d > 0 {
			expiresIn = int(d.Seconds())
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"expires_in_seconds": expiresIn})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request, userID string) {
	providerID := r.PathValue("providerId")
	if err := s.manager.DisconnectForUser(r.Context(), userID, providerID); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request, userID string) {
	providerID := r.PathValue("providerId")
	if err := s.manager.EnableForUser(r.Context(), userID, providerID); err != nil {
		writeConnectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request, userID string) {
	providerID := r.PathValue("providerId")
	if err := s.manager.DisableForUser(r.Context(), userID, providerID); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type toolsUpdateRequest struct {
	EnabledToolIDs []string `json:"enabled_tool_ids"`
}

func (s *Server) handleToolsUpdate(w http.ResponseWriter, r *http.Request, userID string) {
	providerID := r.PathValue("providerId")

	var body toolsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}

	// UpdateUserTools itself validates enabledIds against the connector's
	// advertised catalog and rejects with ErrInvalidTool; this handler just
	// maps that onto a 400.
	if err := s.manager.UpdateUserTools(r.Context(), userID, providerID, body.EnabledToolIDs); err != nil {
		writeConnectorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type toggleChatRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleToggleChat(w http.ResponseWriter, r *http.Request, userID string) {
	providerID := r.PathValue("providerId")

	var body toggleChatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}

	if err := s.manager.ToggleChatVisibility(r.Context(), userID, providerID, body.Enabled); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func writeInternalError(w http.ResponseWriter, err error) {
	logging.Error(logSubsystem, err, "unhandled error")
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

// writeConnectorError maps the connector package's sentinel error taxonomy
// onto HTTP status codes.
func writeConnectorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, connector.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, "unknown_provider", err.Error())
	case errors.Is(err, connector.ErrUnknownTool):
		writeError(w, http.StatusNotFound, "unknown_tool", err.Error())
	case errors.Is(err, connector.ErrInvalidTool):
		writeError(w, http.StatusBadRequest, "invalid_tool", err.Error())
	case errors.Is(err, connector.ErrInvalidState), errors.Is(err, connector.ErrStateUserMismatch):
		writeError(w, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, connector.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, connector.ErrNeedsReauth), errors.Is(err, connector.ErrNoRefreshCapability):
		writeError(w, http.StatusConflict, "needs_reauth", err.Error())
	case errors.Is(err, connector.ErrDisabled):
		writeError(w, http.StatusForbidden, "disabled", err.Error())
	case errors.Is(err, connector.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		writeInternalError(w, err)
	}
}

