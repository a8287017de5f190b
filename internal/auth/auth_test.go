package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustingAuthenticatorSources(t *testing.T) {
	id := uuid.NewString()
	var a TrustingAuthenticator

	header := httptest.NewRequest(http.MethodGet, "/", nil)
	header.Header.Set(HeaderName, id)

	cookie := httptest.NewRequest(http.MethodGet, "/", nil)
	cookie.AddCookie(&http.Cookie{Name: CookieName, Value: id})

	query := httptest.NewRequest(http.MethodGet, "/ws?uid="+id, nil)

	for name, r := range map[string]*http.Request{"header": header, "cookie": cookie, "query": query} {
		t.Run(name, func(t *testing.T) {
			got, err := a.Auth(r)
			require.NoError(t, err)
			assert.Equal(t, id, got)
		})
	}
}

func TestTrustingAuthenticatorHeaderWins(t *testing.T) {
	id := uuid.NewString()
	r := httptest.NewRequest(http.MethodGet, "/?uid="+uuid.NewString(), nil)
	r.Header.Set(HeaderName, id)

	got, err := TrustingAuthenticator{}.Auth(r)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestTrustingAuthenticatorRejects(t *testing.T) {
	missing := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := TrustingAuthenticator{}.Auth(missing)
	assert.Error(t, err)

	malformed := httptest.NewRequest(http.MethodGet, "/", nil)
	malformed.Header.Set(HeaderName, "42")
	_, err = TrustingAuthenticator{}.Auth(malformed)
	assert.Error(t, err)
}

func TestTrustingAuthenticatorRejectsAliases(t *testing.T) {
	id := uuid.NewString()
	for _, alias := range []string{"{" + id + "}", "urn:uuid:" + id, strings.ToUpper(id)} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderName, alias)
		_, err := TrustingAuthenticator{}.Auth(r)
		assert.Error(t, err, alias)
	}
}
