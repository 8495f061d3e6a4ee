package remember_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	remember "github.com/goliatone/go-remember"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
}

func (l *captureLogger) Trace(message string, args ...any) { l.record("trace", message, args...) }
func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }
func (l *captureLogger) Fatal(message string, args ...any) { l.record("fatal", message, args...) }
func (l *captureLogger) WithContext(context.Context) remember.Logger {
	return l
}

func (l *captureLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.level)
	}
	return out
}

type loggerProviderSpy struct {
	logger remember.Logger
	names  []string
}

func (p *loggerProviderSpy) GetLogger(name string) remember.Logger {
	p.names = append(p.names, name)
	return p.logger
}

// MockTokenStore implements remember.TokenStore without rotation support
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) CreateNewToken(ctx context.Context, token remember.PersistentToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenStore) GetTokenForSeries(ctx context.Context, series string) (remember.PersistentToken, bool, error) {
	args := m.Called(ctx, series)
	return args.Get(0).(remember.PersistentToken), args.Bool(1), args.Error(2)
}

func (m *MockTokenStore) UpdateToken(ctx context.Context, series, tokenValue string, lastUsed time.Time) error {
	args := m.Called(ctx, series, tokenValue, lastUsed)
	return args.Error(0)
}

func (m *MockTokenStore) RemoveSeries(ctx context.Context, series string) error {
	args := m.Called(ctx, series)
	return args.Error(0)
}

func (m *MockTokenStore) RemoveUserTokens(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

// MockMechanism implements remember.Mechanism and remember.LogoutHandler
type MockMechanism struct {
	mock.Mock
}

func (m *MockMechanism) AutoLogin(w http.ResponseWriter, r *http.Request) (*remember.Authentication, error) {
	args := m.Called(w, r)
	auth, _ := args.Get(0).(*remember.Authentication)
	return auth, args.Error(1)
}

func (m *MockMechanism) LoginFail(w http.ResponseWriter, r *http.Request) {
	m.Called(w, r)
}

func (m *MockMechanism) LoginSuccess(w http.ResponseWriter, r *http.Request, auth *remember.Authentication) {
	m.Called(w, r, auth)
}

func (m *MockMechanism) Logout(w http.ResponseWriter, r *http.Request, auth *remember.Authentication) {
	m.Called(w, r, auth)
}

// bareMechanism has no cleanup capability
type bareMechanism struct{}

func (bareMechanism) AutoLogin(http.ResponseWriter, *http.Request) (*remember.Authentication, error) {
	return nil, nil
}
func (bareMechanism) LoginFail(http.ResponseWriter, *http.Request)                             {}
func (bareMechanism) LoginSuccess(http.ResponseWriter, *http.Request, *remember.Authentication) {}

// testClock is a settable time source
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testUsers() *remember.StaticUsers {
	return remember.NewStaticUsers(
		remember.User{Name: "alice", PasswordHash: "alice-hash", UserRoles: []string{"admin"}},
		remember.User{Name: "bob", PasswordHash: "bob-hash", UserRoles: []string{"user"}},
		remember.User{Name: "mallory", PasswordHash: "mallory-hash", Disabled: true},
	)
}

// rememberCookie returns the remember-me cookie set on rec, if any
func rememberCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

func requireIssuedCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	c := rememberCookie(t, rec, remember.DefaultCookieName)
	require.NotNil(t, c, "expected remember-me cookie")
	require.NotEmpty(t, c.Value)
	require.Greater(t, c.MaxAge, 0)
	return c
}

func requireCancelledCookie(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	c := rememberCookie(t, rec, remember.DefaultCookieName)
	require.NotNil(t, c, "expected cancelled remember-me cookie")
	require.Empty(t, c.Value)
	require.Less(t, c.MaxAge, 0)
}

func requestWithCookie(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if c != nil {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req
}
