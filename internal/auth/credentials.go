package auth

import (
	"net/http"
	"strings"
)

// CookieName is the cookie the web client stores its access token in.
const CookieName = "chat-app-auth"

// Source names where a credential was found.
type Source string

const (
	SourceCookie    Source = "cookie"
	SourceHandshake Source = "handshake"
	SourceHeader    Source = "header"
)

// ExtractCredential finds the caller's token. The cookie wins over the
// handshake token query parameter, which wins over a bearer header.
func ExtractCredential(r *http.Request) (string, Source, bool) {
	if c, err := r.Cookie(CookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), SourceCookie, true
	}
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, SourceHandshake, true
	}
	if token, ok := BearerToken(r.Header.Get("Authorization")); ok {
		return token, SourceHeader, true
	}
	return "", "", false
}

// BearerToken parses an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
