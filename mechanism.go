package remember

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

const (
	// DefaultParameter is the login form field that asks to be remembered
	DefaultParameter = "remember-me"
	// DefaultCookieName is the remember-me cookie name
	DefaultCookieName = "remember-me"
	// DefaultTokenValidity is two weeks
	DefaultTokenValidity = 14 * 24 * time.Hour

	cookieDelimiter = ":"
)

// cookieEncoding is strict so every distinct cookie value decodes to
// distinct bytes.
var cookieEncoding = base64.RawURLEncoding.Strict()

// MechanismOption configures a token mechanism at construction time
type MechanismOption func(*cookieMechanism)

// WithParameter sets the request parameter that asks to be remembered
func WithParameter(name string) MechanismOption {
	return func(m *cookieMechanism) {
		if name = strings.TrimSpace(name); name != "" {
			m.parameter = name
		}
	}
}

// WithCookieName sets the remember-me cookie name
func WithCookieName(name string) MechanismOption {
	return func(m *cookieMechanism) {
		if name = strings.TrimSpace(name); name != "" {
			m.cookieName = name
		}
	}
}

// WithCookieDomain sets the cookie domain
func WithCookieDomain(domain string) MechanismOption {
	return func(m *cookieMechanism) {
		m.cookieDomain = strings.TrimSpace(domain)
	}
}

// WithTokenValidity sets how long a token is valid. A negative value
// issues browser session cookies while tokens stay valid for
// DefaultTokenValidity.
func WithTokenValidity(d time.Duration) MechanismOption {
	return func(m *cookieMechanism) {
		if d != 0 {
			m.tokenValidity = d
		}
	}
}

// WithSecureCookie forces the Secure flag on or off. When unset the
// flag follows the request TLS state.
func WithSecureCookie(secure bool) MechanismOption {
	return func(m *cookieMechanism) {
		m.useSecureCookie = &secure
	}
}

// WithAlwaysRemember issues cookies without checking the parameter
func WithAlwaysRemember(always bool) MechanismOption {
	return func(m *cookieMechanism) {
		m.alwaysRemember = always
	}
}

// WithSlidingExpiration controls whether the stateless mechanism
// reissues a cookie with a fresh expiry on each successful validation.
func WithSlidingExpiration(enabled bool) MechanismOption {
	return func(m *cookieMechanism) {
		m.slidingExpiration = enabled
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) MechanismOption {
	return func(m *cookieMechanism) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMechanismLogger sets the mechanism logger
func WithMechanismLogger(logger Logger) MechanismOption {
	return func(m *cookieMechanism) {
		m.logger = logger
	}
}

// WithMechanismLoggerProvider sets the mechanism logger provider
func WithMechanismLoggerProvider(provider LoggerProvider) MechanismOption {
	return func(m *cookieMechanism) {
		m.loggerProvider = provider
	}
}

// cookieMechanism holds the cookie handling shared by both token
// mechanisms. It is read-only once built.
type cookieMechanism struct {
	key               string
	users             UserLookup
	parameter         string
	cookieName        string
	cookieDomain      string
	tokenValidity     time.Duration
	useSecureCookie   *bool
	alwaysRemember    bool
	slidingExpiration bool
	now               func() time.Time
	logger            Logger
	loggerProvider    LoggerProvider
}

func newCookieMechanism(name, key string, users UserLookup, opts []MechanismOption) cookieMechanism {
	m := cookieMechanism{
		key:               key,
		users:             users,
		parameter:         DefaultParameter,
		cookieName:        DefaultCookieName,
		tokenValidity:     DefaultTokenValidity,
		slidingExpiration: true,
		now:               time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	m.loggerProvider, m.logger = ResolveLogger(name, m.loggerProvider, m.logger)
	return m
}

// Key returns the key tokens are bound to
func (m *cookieMechanism) Key() string { return m.key }

// Parameter returns the request parameter name
func (m *cookieMechanism) Parameter() string { return m.parameter }

// CookieName returns the cookie name
func (m *cookieMechanism) CookieName() string { return m.cookieName }

// TokenValidity returns the configured validity window
func (m *cookieMechanism) TokenValidity() time.Duration { return m.tokenValidity }

// UserLookup returns the user lookup used to load remembered users
func (m *cookieMechanism) UserLookup() UserLookup { return m.users }

// SecureCookie reports the forced Secure flag, if any
func (m *cookieMechanism) SecureCookie() (secure bool, forced bool) {
	if m.useSecureCookie == nil {
		return false, false
	}
	return *m.useSecureCookie, true
}

// effectiveValidity is the token lifetime used for expiry checks
func (m *cookieMechanism) effectiveValidity() time.Duration {
	if m.tokenValidity < 0 {
		return DefaultTokenValidity
	}
	return m.tokenValidity
}

func (m *cookieMechanism) rememberMeRequested(r *http.Request) bool {
	if m.alwaysRemember {
		return true
	}
	value := r.FormValue(m.parameter)
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "on", "yes", "1":
		return true
	}
	m.logger.Debug("remember-me not requested", "parameter", m.parameter)
	return false
}

// extractCookie returns the raw cookie value, or "" when absent
func (m *cookieMechanism) extractCookie(r *http.Request) string {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c == nil {
		return ""
	}
	return c.Value
}

func (m *cookieMechanism) setCookie(w http.ResponseWriter, r *http.Request, fields []string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     m.cookieName,
		Value:    encodeCookie(fields),
		Path:     "/",
		Domain:   m.cookieDomain,
		HttpOnly: true,
		Secure:   m.secure(r),
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge / time.Second)
		cookie.Expires = m.now().Add(maxAge)
	}
	http.SetCookie(w, cookie)
}

func (m *cookieMechanism) cancelCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.cookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *cookieMechanism) secure(r *http.Request) bool {
	if m.useSecureCookie != nil {
		return *m.useSecureCookie
	}
	return r != nil && r.TLS != nil
}

// cookieMaxAge is the Max-Age for issued cookies, zero for session cookies
func (m *cookieMechanism) cookieMaxAge() time.Duration {
	if m.tokenValidity < 0 {
		return 0
	}
	return m.tokenValidity
}

func (m *cookieMechanism) loadUser(ctx context.Context, username string) (UserDetails, error) {
	user, err := m.users.LoadUserByUsername(ctx, username)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, failure(ErrInvalidCookie, map[string]any{"reason": "unknown user"})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load remembered user")
	}
	if user == nil {
		return nil, failure(ErrInvalidCookie, map[string]any{"reason": "unknown user"})
	}
	if !user.Enabled() {
		return nil, failure(ErrUserDisabled, map[string]any{"username": username})
	}
	return user, nil
}

// escapeField escapes a single cookie field so it never contains the
// delimiter.
func escapeField(field string) string {
	return url.QueryEscape(field)
}

// encodeCookie escapes each field, joins them with ':' and base64url
// encodes the result.
func encodeCookie(fields []string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = escapeField(f)
	}
	return cookieEncoding.EncodeToString([]byte(strings.Join(escaped, cookieDelimiter)))
}

func decodeCookie(value string) ([]string, error) {
	raw, err := cookieEncoding.DecodeString(value)
	if err != nil {
		return nil, failure(ErrInvalidCookie, map[string]any{"reason": "not base64"})
	}
	parts := strings.Split(string(raw), cookieDelimiter)
	for i, p := range parts {
		unescaped, err := url.QueryUnescape(p)
		if err != nil {
			return nil, failure(ErrInvalidCookie, map[string]any{"reason": "bad field encoding"})
		}
		parts[i] = unescaped
	}
	// query escaping accepts several spellings of the same text ('+' and
	// "%20", "%2b" and "%2B"); only the canonical one is valid.
	if encodeCookie(parts) != value {
		return nil, failure(ErrInvalidCookie, map[string]any{"reason": "non canonical encoding"})
	}
	return parts, nil
}
