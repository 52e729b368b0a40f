package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// The OAuth endpoints are discovery stubs. Some MCP clients probe for an
// authorization server before connecting; these handlers satisfy that probe
// without gating any functionality behind the issued credentials.

// handleOAuthMetadata serves OAuth 2.1 authorization server metadata with
// endpoints derived from the request host.
func (s *HTTPServer) handleOAuthMetadata(w http.ResponseWriter, r *http.Request) {
	issuer := baseURL(r)
	metadata := map[string]interface{}{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/auth",
		"token_endpoint":                        issuer + "/token",
		"registration_endpoint":                 issuer + "/register",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"none"},
		"scopes_supported":                      []string{"read", "write"},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_ = json.NewEncoder(w).Encode(metadata)
}

// handleAuthorize issues an authorization code and redirects back to the
// client. The code is opaque and accepted unconditionally by handleToken.
func (s *HTTPServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		http.Error(w, "Missing redirect_uri", http.StatusBadRequest)
		return
	}
	target, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "Invalid redirect_uri", http.StatusBadRequest)
		return
	}

	params := target.Query()
	params.Set("code", uuid.NewString())
	if state := q.Get("state"); state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// handleToken exchanges any authorization code for a bearer token.
func (s *HTTPServer) handleToken(w http.ResponseWriter, r *http.Request) {
	token := map[string]interface{}{
		"access_token": strings.ReplaceAll(uuid.NewString(), "-", ""),
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        "read write",
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(token)
}

// handleRegister performs dynamic client registration by echoing the request
// back with a generated client id.
func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = map[string]interface{}{}
	}

	req["client_id"] = uuid.NewString()
	req["client_id_issued_at"] = s.clock.Now().Unix()
	req["token_endpoint_auth_method"] = "none"

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(req)
}

// baseURL reconstructs the external URL of this server from the request,
// honoring the forwarded proto header set by reverse proxies.
func baseURL(r *http.Request) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host
}
