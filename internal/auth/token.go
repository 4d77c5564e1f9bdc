// Package auth checks the shared secret that guards manual refreshes.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderRefreshToken carries the refresh secret
const HeaderRefreshToken = "X-Refresh-Token"

// defaultRealm is the protection space named in challenges
const defaultRealm = "placesync"

// TokenAuthorizer compares a request's refresh token with the configured secret.
// An empty secret disables the check.
type TokenAuthorizer struct {
	token []byte
	realm string
}

// NewTokenAuthorizer creates an authorizer for token
func NewTokenAuthorizer(token string) *TokenAuthorizer {
	return &TokenAuthorizer{token: []byte(token), realm: defaultRealm}
}

// Enabled reports whether a token is required
func (a *TokenAuthorizer) Enabled() bool {
	return len(a.token) > 0
}

// Authorized reports whether r carries the configured token
func (a *TokenAuthorizer) Authorized(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}

	presented := ExtractToken(r)
	if presented == "" {
		slog.Warn("Refresh token missing", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(presented), a.token) != 1 {
		slog.Warn("Refresh token rejected", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		return false
	}
	return true
}

// ExtractToken returns the X-Refresh-Token header, or the credentials of a
// Bearer Authorization header when that is absent
func ExtractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(HeaderRefreshToken)); token != "" {
		return token
	}

	scheme, credentials, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(credentials)
}

// sanitizeHeaderValue removes characters that could enable header injection
func sanitizeHeaderValue(s string) string {
	if !strings.ContainsAny(s, "\r\n\"") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.ReplaceAll(s, `"`, `\"`)
}

// WriteUnauthorized writes the 401 refresh response with an RFC 6750 challenge
func (a *TokenAuthorizer) WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="%s", error="invalid_token"`,
		sanitizeHeaderValue(a.realm)))
	w.WriteHeader(http.StatusUnauthorized)

	resp := struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}{
		OK:    false,
		Error: "unauthorized",
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
