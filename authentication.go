package remember

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/goliatone/go-errors"
)

type AuthenticationKind string

const (
	KindRememberMe AuthenticationKind = "remember-me"
	KindPassword   AuthenticationKind = "password"
)

// Authentication is both an authentication request and, once a provider
// accepts it, the authenticated result.
type Authentication struct {
	Kind          AuthenticationKind
	Name          string
	Principal     UserDetails
	Roles         []string
	Credentials   string
	KeyHash       string
	Authenticated bool
}

// Provider authenticates the requests it supports
type Provider interface {
	Supports(auth *Authentication) bool
	Authenticate(ctx context.Context, auth *Authentication) (*Authentication, error)
}

// Dispatcher routes authentication requests to providers
type Dispatcher interface {
	Authenticate(ctx context.Context, auth *Authentication) (*Authentication, error)
}

// ProviderManager is the default Dispatcher. Providers are tried in
// registration order; the first success wins.
type ProviderManager struct {
	providers []Provider
	logger    Logger
}

func NewProviderManager(providers ...Provider) *ProviderManager {
	_, logger := ResolveLogger("remember.dispatcher", nil, nil)
	return &ProviderManager{
		providers: append([]Provider(nil), providers...),
		logger:    logger,
	}
}

func (m *ProviderManager) WithLogger(logger Logger) *ProviderManager {
	_, m.logger = ResolveLogger("remember.dispatcher", nil, logger)
	return m
}

func (m *ProviderManager) Providers() []Provider {
	return append([]Provider(nil), m.providers...)
}

func (m *ProviderManager) Authenticate(ctx context.Context, auth *Authentication) (*Authentication, error) {
	if auth == nil {
		return nil, ErrBadCredentials
	}

	var lastErr error
	for _, provider := range m.providers {
		if !provider.Supports(auth) {
			continue
		}
		result, err := provider.Authenticate(ctx, auth)
		if err != nil {
			m.logger.Debug("provider rejected authentication", "kind", auth.Kind, "name", auth.Name, "error", err)
			lastErr = err
			continue
		}
		if result != nil {
			result.Credentials = ""
			return result, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, failure(ErrNoProvider, map[string]any{"kind": string(auth.Kind)})
}

// HashKey is the digest stored on remember-me authentications so the
// key itself never travels with them.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// RememberMeProvider accepts remember-me authentications produced with
// the same key.
type RememberMeProvider struct {
	keyHash string
}

func NewRememberMeProvider(key string) *RememberMeProvider {
	return &RememberMeProvider{keyHash: HashKey(key)}
}

func (p *RememberMeProvider) Supports(auth *Authentication) bool {
	return auth != nil && auth.Kind == KindRememberMe
}

func (p *RememberMeProvider) Authenticate(_ context.Context, auth *Authentication) (*Authentication, error) {
	if subtle.ConstantTimeCompare([]byte(p.keyHash), []byte(auth.KeyHash)) != 1 {
		return nil, ErrKeyMismatch
	}
	out := *auth
	out.Authenticated = true
	return &out, nil
}

// PasswordProvider checks a username and password against a UserLookup
// whose passwords are bcrypt hashes.
type PasswordProvider struct {
	users  UserLookup
	logger Logger
}

func NewPasswordProvider(users UserLookup) *PasswordProvider {
	_, logger := ResolveLogger("remember.password_provider", nil, nil)
	return &PasswordProvider{users: users, logger: logger}
}

func (p *PasswordProvider) WithLogger(logger Logger) *PasswordProvider {
	_, p.logger = ResolveLogger("remember.password_provider", nil, logger)
	return p
}

func (p *PasswordProvider) Supports(auth *Authentication) bool {
	return auth != nil && auth.Kind == KindPassword
}

func (p *PasswordProvider) Authenticate(ctx context.Context, auth *Authentication) (*Authentication, error) {
	username := strings.TrimSpace(auth.Name)
	if username == "" || auth.Credentials == "" {
		return nil, ErrBadCredentials
	}

	user, err := p.users.LoadUserByUsername(ctx, username)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrBadCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user during password authentication")
	}
	if user == nil {
		return nil, ErrBadCredentials
	}

	if err := ComparePasswordAndHash(auth.Credentials, user.Password()); err != nil {
		p.logger.Debug("password mismatch", "username", username)
		return nil, ErrBadCredentials
	}

	if !user.Enabled() {
		return nil, failure(ErrUserDisabled, map[string]any{"username": username})
	}

	return &Authentication{
		Kind:          KindPassword,
		Name:          user.Username(),
		Principal:     user,
		Roles:         user.Roles(),
		Authenticated: true,
	}, nil
}

func rememberMeAuthentication(key string, user UserDetails) *Authentication {
	return &Authentication{
		Kind:      KindRememberMe,
		Name:      user.Username(),
		Principal: user,
		Roles:     user.Roles(),
		KeyHash:   HashKey(key),
	}
}
