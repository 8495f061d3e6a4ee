package remember

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

// UserDetails holds the attributes remember-me needs from a user record.
// Password is the credential verification material (usually a hash) and
// is bound into stateless token signatures, so changing it invalidates
// outstanding cookies.
type UserDetails interface {
	Username() string
	Password() string
	Roles() []string
	Enabled() bool
}

// UserLookup loads users by username
type UserLookup interface {
	LoadUserByUsername(ctx context.Context, username string) (UserDetails, error)
}

// UserLookupFunc adapts a function to UserLookup
type UserLookupFunc func(ctx context.Context, username string) (UserDetails, error)

func (f UserLookupFunc) LoadUserByUsername(ctx context.Context, username string) (UserDetails, error) {
	return f(ctx, username)
}

// Mechanism produces and validates the remember-me credential carried
// in a cookie.
//
// AutoLogin returns (nil, nil) when the request carries no remember-me
// cookie. Any validation failure is returned as an error and the cookie
// is cancelled; callers should treat it as "not authenticated".
type Mechanism interface {
	AutoLogin(w http.ResponseWriter, r *http.Request) (*Authentication, error)
	LoginFail(w http.ResponseWriter, r *http.Request)
	LoginSuccess(w http.ResponseWriter, r *http.Request, auth *Authentication)
}

// LogoutHandler cleans up state when a user logs out
type LogoutHandler interface {
	Logout(w http.ResponseWriter, r *http.Request, auth *Authentication)
}

// LogoutHandlerFunc adapts a function to LogoutHandler
type LogoutHandlerFunc func(w http.ResponseWriter, r *http.Request, auth *Authentication)

func (f LogoutHandlerFunc) Logout(w http.ResponseWriter, r *http.Request, auth *Authentication) {
	f(w, r, auth)
}

// SuccessHandler takes over the response after a successful
// remember-me login. When set, the filter does not call the next handler.
type SuccessHandler interface {
	OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, auth *Authentication)
}

// SuccessHandlerFunc adapts a function to SuccessHandler
type SuccessHandlerFunc func(w http.ResponseWriter, r *http.Request, auth *Authentication)

func (f SuccessHandlerFunc) OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, auth *Authentication) {
	f(w, r, auth)
}

// RedirectSuccessHandler sends remembered users to a fixed location
func RedirectSuccessHandler(location string) SuccessHandler {
	return SuccessHandlerFunc(func(w http.ResponseWriter, r *http.Request, _ *Authentication) {
		http.Redirect(w, r, location, http.StatusFound)
	})
}

// PersistentToken is a single series entry held by a TokenStore
type PersistentToken struct {
	Username string
	Series   string
	Token    string
	LastUsed time.Time
}

// TokenStore persists remember-me series. The store is owned by the
// caller; mechanisms only hold a reference to it.
type TokenStore interface {
	CreateNewToken(ctx context.Context, token PersistentToken) error
	// GetTokenForSeries returns false when the series is unknown.
	GetTokenForSeries(ctx context.Context, series string) (PersistentToken, bool, error)
	UpdateToken(ctx context.Context, series, tokenValue string, lastUsed time.Time) error
	RemoveSeries(ctx context.Context, series string) error
	RemoveUserTokens(ctx context.Context, username string) error
}

// TokenRotator is implemented by stores that can swap a series token
// atomically. RotateToken must only replace the stored value when it
// still equals presented, returning ErrTokenMismatch otherwise and
// ErrSeriesNotFound when the series is gone.
type TokenRotator interface {
	RotateToken(ctx context.Context, series, presented, next string, lastUsed time.Time) error
}

// ExpiredTokenPurger is implemented by stores that can bulk delete
// series not used since cutoff.
type ExpiredTokenPurger interface {
	RemoveTokensUsedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
