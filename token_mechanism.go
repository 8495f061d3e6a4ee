package remember

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	_ Mechanism     = (*TokenMechanism)(nil)
	_ LogoutHandler = (*TokenMechanism)(nil)
)

// TokenMechanism is the stateless remember-me mechanism. The cookie
// carries the username, an expiry and an HMAC over both plus the user's
// password hash, so nothing is stored server side. Changing the key or
// the password invalidates every outstanding cookie.
type TokenMechanism struct {
	cookieMechanism
}

func NewTokenMechanism(key string, users UserLookup, opts ...MechanismOption) *TokenMechanism {
	return &TokenMechanism{
		cookieMechanism: newCookieMechanism("remember.token_mechanism", key, users, opts),
	}
}

// SlidingExpiration reports whether valid cookies are reissued
func (m *TokenMechanism) SlidingExpiration() bool {
	return m.slidingExpiration
}

func (m *TokenMechanism) AutoLogin(w http.ResponseWriter, r *http.Request) (*Authentication, error) {
	value := m.extractCookie(r)
	if value == "" {
		return nil, nil
	}

	auth, err := m.processCookie(w, r, value)
	if err != nil {
		m.logger.Debug("remember-me cookie rejected", "error", err)
		m.cancelCookie(w, r)
		return nil, err
	}
	return auth, nil
}

func (m *TokenMechanism) processCookie(w http.ResponseWriter, r *http.Request, value string) (*Authentication, error) {
	fields, err := decodeCookie(value)
	if err != nil {
		return nil, err
	}
	if len(fields) != 3 {
		return nil, failure(ErrInvalidCookie, map[string]any{"reason": "expected 3 fields", "fields": len(fields)})
	}

	username, rawExpiry, signature := fields[0], fields[1], fields[2]
	if strings.TrimSpace(username) == "" {
		return nil, failure(ErrInvalidCookie, map[string]any{"reason": "empty username"})
	}

	expiryMillis, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return nil, failure(ErrInvalidCookie, map[string]any{"reason": "expiry is not a number"})
	}
	if m.now().After(time.UnixMilli(expiryMillis)) {
		return nil, failure(ErrCookieExpired, map[string]any{"username": username})
	}

	user, err := m.loadUser(r.Context(), username)
	if err != nil {
		return nil, err
	}

	expected := m.signature(username, expiryMillis, user.Password())
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, failure(ErrSignatureMismatch, map[string]any{"username": username})
	}

	if m.slidingExpiration {
		m.issue(w, r, user)
	}

	return rememberMeAuthentication(m.key, user), nil
}

func (m *TokenMechanism) LoginFail(w http.ResponseWriter, r *http.Request) {
	m.cancelCookie(w, r)
}

func (m *TokenMechanism) LoginSuccess(w http.ResponseWriter, r *http.Request, auth *Authentication) {
	if auth == nil || !m.rememberMeRequested(r) {
		return
	}

	user := auth.Principal
	if user == nil || user.Password() == "" {
		loaded, err := m.loadUser(r.Context(), auth.Name)
		if err != nil {
			m.logger.Warn("unable to load user for remember-me cookie", "username", auth.Name, "error", err)
			return
		}
		user = loaded
	}
	if user.Username() == "" || user.Password() == "" {
		m.logger.Debug("remember-me cookie not issued, missing username or password")
		return
	}

	m.issue(w, r, user)
}

func (m *TokenMechanism) Logout(w http.ResponseWriter, r *http.Request, _ *Authentication) {
	m.cancelCookie(w, r)
}

// Issue writes a fresh cookie for user, regardless of the request
// parameter.
func (m *TokenMechanism) Issue(w http.ResponseWriter, r *http.Request, user UserDetails) {
	m.issue(w, r, user)
}

func (m *TokenMechanism) issue(w http.ResponseWriter, r *http.Request, user UserDetails) {
	expiry := m.now().Add(m.effectiveValidity()).UnixMilli()
	signature := m.signature(user.Username(), expiry, user.Password())
	m.setCookie(w, r, []string{user.Username(), strconv.FormatInt(expiry, 10), signature}, m.cookieMaxAge())
}

func (m *TokenMechanism) signature(username string, expiryMillis int64, password string) string {
	mac := hmac.New(sha256.New, []byte(m.key))
	mac.Write([]byte(escapeField(username)))
	mac.Write([]byte(cookieDelimiter))
	mac.Write([]byte(strconv.FormatInt(expiryMillis, 10)))
	mac.Write([]byte(cookieDelimiter))
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}
