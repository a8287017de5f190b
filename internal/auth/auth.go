// Package auth resolves the caller's identity at the transport boundary.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/matheus3301/dmsync/internal/model"
)

// Where the shipped authenticator looks for the caller identity.
const (
	HeaderName = "X-User-ID"
	CookieName = "x-uid"
	QueryParam = "uid"
)

// Authenticator returns the identity of the participant making r.
type Authenticator interface {
	Auth(r *http.Request) (string, error)
}

// TrustingAuthenticator trusts an identity supplied by the caller. It checks
// the header, then the cookie, then the query parameter used by browser
// websocket clients. Session issuance happens upstream.
type TrustingAuthenticator struct{}

// Auth implements Authenticator.
func (TrustingAuthenticator) Auth(r *http.Request) (string, error) {
	uid := strings.TrimSpace(r.Header.Get(HeaderName))
	if uid == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			uid = c.Value
		}
	}
	if uid == "" {
		uid = r.URL.Query().Get(QueryParam)
	}
	if uid == "" {
		return "", fmt.Errorf("no %s header, %s cookie or %s param", HeaderName, CookieName, QueryParam)
	}
	if !model.ValidIdentity(uid) {
		return "", fmt.Errorf("malformed identity %q: %w", uid, model.ErrInvalid)
	}
	return uid, nil
}
