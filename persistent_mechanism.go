package remember

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"sync"

	"github.com/goliatone/go-errors"
)

const (
	// DefaultSeriesLength random bytes in a series identifier
	DefaultSeriesLength = 16
	// DefaultTokenLength random bytes in a token value
	DefaultTokenLength = 16
)

var (
	_ Mechanism     = (*PersistentMechanism)(nil)
	_ LogoutHandler = (*PersistentMechanism)(nil)
)

// PersistentMechanism issues an opaque series identifier plus a one
// time token backed by a TokenStore. Every successful login rotates the
// token while keeping the series; presenting a stale token for a live
// series is treated as cookie theft and the series is removed.
type PersistentMechanism struct {
	cookieMechanism
	store   TokenStore
	rotator TokenRotator
	locks   *seriesLocks
}

func NewPersistentMechanism(key string, users UserLookup, store TokenStore, opts ...MechanismOption) *PersistentMechanism {
	m := &PersistentMechanism{
		cookieMechanism: newCookieMechanism("remember.persistent_mechanism", key, users, opts),
		store:           store,
	}
	if rotator, ok := store.(TokenRotator); ok {
		m.rotator = rotator
	} else {
		m.locks = newSeriesLocks()
	}
	return m
}

// TokenStore returns the backing store
func (m *PersistentMechanism) TokenStore() TokenStore {
	return m.store
}

func (m *PersistentMechanism) AutoLogin(w http.ResponseWriter, r *http.Request) (*Authentication, error) {
	value := m.extractCookie(r)
	if value == "" {
		return nil, nil
	}

	auth, err := m.processCookie(w, r, value)
	if err != nil {
		switch {
		case IsTheftDetected(err):
			m.logger.Warn("remember-me cookie theft detected, series invalidated", "error", err)
		case IsValidationFailure(err):
			m.logger.Debug("remember-me cookie rejected", "error", err)
		default:
			m.logger.Error("remember-me token store failure", "error", err)
		}
		m.cancelCookie(w, r)
		return nil, err
	}
	return auth, nil
}

func (m *PersistentMechanism) processCookie(w http.ResponseWriter, r *http.Request, value string) (*Authentication, error) {
	ctx := r.Context()

	fields, err := decodeCookie(value)
	if err != nil {
		return nil, err
	}
	if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
		return nil, failure(ErrInvalidCookie, map[string]any{"reason": "expected series and token", "fields": len(fields)})
	}
	series, presented := fields[0], fields[1]

	next, err := randomValue(DefaultTokenLength)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate remember-me token")
	}

	stored, err := m.rotate(ctx, series, presented, next)
	if err != nil {
		return nil, err
	}

	user, err := m.loadUser(ctx, stored.Username)
	if err != nil {
		return nil, err
	}

	m.setCookie(w, r, []string{series, next}, m.cookieMaxAge())
	return rememberMeAuthentication(m.key, user), nil
}

// rotate validates presented against the stored series and swaps in
// next. It returns the stored entry as it was before rotation.
func (m *PersistentMechanism) rotate(ctx context.Context, series, presented, next string) (PersistentToken, error) {
	if m.locks != nil {
		unlock := m.locks.lock(series)
		defer unlock()
	}

	stored, ok, err := m.store.GetTokenForSeries(ctx, series)
	if err != nil {
		return PersistentToken{}, errors.Wrap(err, errors.CategoryInternal, "failed to load remember-me series")
	}
	if !ok {
		return PersistentToken{}, failure(ErrSeriesNotFound, map[string]any{"series": series})
	}

	if subtle.ConstantTimeCompare([]byte(stored.Token), []byte(presented)) != 1 {
		return PersistentToken{}, m.theft(ctx, stored)
	}

	now := m.now()
	if stored.LastUsed.Add(m.effectiveValidity()).Before(now) {
		return PersistentToken{}, failure(ErrCookieExpired, map[string]any{"username": stored.Username})
	}

	if m.rotator != nil {
		if err := m.rotator.RotateToken(ctx, series, presented, next, now); err != nil {
			switch {
			case IsTokenMismatch(err):
				return PersistentToken{}, m.theft(ctx, stored)
			case IsSeriesNotFound(err):
				return PersistentToken{}, failure(ErrSeriesNotFound, map[string]any{"series": series})
			}
			return PersistentToken{}, errors.Wrap(err, errors.CategoryInternal, "failed to rotate remember-me token")
		}
		return stored, nil
	}

	if err := m.store.UpdateToken(ctx, series, next, now); err != nil {
		return PersistentToken{}, errors.Wrap(err, errors.CategoryInternal, "failed to update remember-me token")
	}
	return stored, nil
}

func (m *PersistentMechanism) theft(ctx context.Context, stored PersistentToken) error {
	if err := m.store.RemoveSeries(ctx, stored.Series); err != nil {
		m.logger.Error("failed to invalidate remember-me series", "series", stored.Series, "error", err)
	}
	return failure(ErrCookieTheft, map[string]any{"username": stored.Username, "series": stored.Series})
}

func (m *PersistentMechanism) LoginFail(w http.ResponseWriter, r *http.Request) {
	m.cancelCookie(w, r)
}

func (m *PersistentMechanism) LoginSuccess(w http.ResponseWriter, r *http.Request, auth *Authentication) {
	if auth == nil || !m.rememberMeRequested(r) {
		return
	}
	if _, err := m.Issue(w, r, auth.Name); err != nil {
		m.logger.Error("failed to persist remember-me token", "username", auth.Name, "error", err)
	}
}

// Issue creates a new series for username and writes its cookie
func (m *PersistentMechanism) Issue(w http.ResponseWriter, r *http.Request, username string) (PersistentToken, error) {
	series, err := randomValue(DefaultSeriesLength)
	if err != nil {
		return PersistentToken{}, errors.Wrap(err, errors.CategoryInternal, "failed to generate remember-me series")
	}
	token, err := randomValue(DefaultTokenLength)
	if err != nil {
		return PersistentToken{}, errors.Wrap(err, errors.CategoryInternal, "failed to generate remember-me token")
	}

	entry := PersistentToken{
		Username: username,
		Series:   series,
		Token:    token,
		LastUsed: m.now(),
	}
	if err := m.store.CreateNewToken(r.Context(), entry); err != nil {
		return PersistentToken{}, errors.Wrap(err, errors.CategoryInternal, "failed to store remember-me token")
	}

	m.setCookie(w, r, []string{entry.Series, entry.Token}, m.cookieMaxAge())
	return entry, nil
}

// Logout removes every series of the user being logged out. Without an
// authentication the user is identified from the request cookie, which is
// checked but not rotated. A cookie whose token no longer matches only
// loses the series it names.
func (m *PersistentMechanism) Logout(w http.ResponseWriter, r *http.Request, auth *Authentication) {
	m.cancelCookie(w, r)

	ctx := r.Context()
	if auth != nil && auth.Name != "" {
		m.removeUserTokens(ctx, auth.Name)
		return
	}

	value := m.extractCookie(r)
	if value == "" {
		return
	}
	fields, err := decodeCookie(value)
	if err != nil || len(fields) != 2 || fields[0] == "" {
		return
	}
	series, presented := fields[0], fields[1]

	stored, ok, err := m.store.GetTokenForSeries(ctx, series)
	if err != nil {
		m.logger.Error("failed to load remember-me series on logout", "series", series, "error", err)
		return
	}
	if !ok {
		return
	}

	if subtle.ConstantTimeCompare([]byte(stored.Token), []byte(presented)) != 1 {
		if err := m.store.RemoveSeries(ctx, series); err != nil {
			m.logger.Error("failed to remove remember-me series", "series", series, "error", err)
		}
		return
	}
	m.removeUserTokens(ctx, stored.Username)
}

func (m *PersistentMechanism) removeUserTokens(ctx context.Context, username string) {
	if err := m.store.RemoveUserTokens(ctx, username); err != nil {
		m.logger.Error("failed to remove remember-me tokens", "username", username, "error", err)
	}
}

func randomValue(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// seriesLocks serializes rotation per series for stores that cannot
// compare-and-swap on their own.
type seriesLocks struct {
	mu    sync.Mutex
	locks map[string]*seriesLock
}

type seriesLock struct {
	mu   sync.Mutex
	refs int
}

func newSeriesLocks() *seriesLocks {
	return &seriesLocks{locks: make(map[string]*seriesLock)}
}

func (s *seriesLocks) lock(series string) func() {
	s.mu.Lock()
	l, ok := s.locks[series]
	if !ok {
		l = &seriesLock{}
		s.locks[series] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, series)
		}
		s.mu.Unlock()
	}
}
