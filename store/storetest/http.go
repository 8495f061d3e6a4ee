package storetest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	remember "github.com/goliatone/go-remember"
	"github.com/stretchr/testify/require"
)

func issue(t *testing.T, m *remember.PersistentMechanism) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := m.Issue(rec, httptest.NewRequest(http.MethodPost, "/login", nil), "alice")
	require.NoError(t, err)
	return find(rec, m.CookieName())
}

func autoLogin(t *testing.T, m *remember.PersistentMechanism, c *http.Cookie) (*remember.Authentication, *http.Cookie) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	rec := httptest.NewRecorder()
	auth, _ := m.AutoLogin(rec, req)
	next := find(rec, m.CookieName())
	if next != nil && next.Value == "" {
		next = nil
	}
	return auth, next
}

func find(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}
