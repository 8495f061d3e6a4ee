package remember

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	_ Configurer = (*RememberMe)(nil)
)

// RememberMe configures remember-me authentication for a pipeline.
//
// Settings are changed with the With* methods before the pipeline is
// built. The first resolution freezes them: Init resolves the mechanism,
// publishes it under MechanismKey, hands the cleanup step to a
// registered LogoutCoordinator and registers a RememberMeProvider bound
// to Key(). Configure builds the RememberMeFilter.
//
// Without a token store a stateless TokenMechanism is built, otherwise
// a PersistentMechanism backed by the store.
type RememberMe struct {
	key                  string
	tokenValiditySeconds *int
	useSecureCookie      *bool
	parameter            string
	cookieName           string
	cookieDomain         string
	alwaysRemember       bool
	slidingExpiration    *bool
	now                  func() time.Time

	mechanism       Mechanism
	mechanismLogout LogoutHandler
	logoutHandler   LogoutHandler
	tokenStore      TokenStore
	users           UserLookup
	successHandler  SuccessHandler
	resolved        Mechanism
	frozen          bool
	err             error
	filter          *RememberMeFilter
	logger          Logger
	loggerProvider  LoggerProvider
}

func NewRememberMe() *RememberMe {
	provider, logger := ResolveLogger("remember.configurator", nil, nil)
	return &RememberMe{
		parameter:      DefaultParameter,
		cookieName:     DefaultCookieName,
		logger:         logger,
		loggerProvider: provider,
	}
}

// WithTokenValiditySeconds sets how long tokens are valid
func (c *RememberMe) WithTokenValiditySeconds(seconds int) *RememberMe {
	if c.guard("token_validity_seconds") {
		c.tokenValiditySeconds = &seconds
	}
	return c
}

// WithSecureCookie forces the Secure cookie flag. When never called the
// flag follows the request TLS state.
func (c *RememberMe) WithSecureCookie(secure bool) *RememberMe {
	if c.guard("use_secure_cookie") {
		c.useSecureCookie = &secure
	}
	return c
}

// WithUserLookup sets the user lookup. When not set the lookup
// published under UserLookupKey is used.
func (c *RememberMe) WithUserLookup(users UserLookup) *RememberMe {
	if c.guard("user_lookup") {
		c.users = users
	}
	return c
}

// WithTokenStore selects the persistent mechanism backed by store
func (c *RememberMe) WithTokenStore(store TokenStore) *RememberMe {
	if c.guard("token_store") {
		c.tokenStore = store
	}
	return c
}

// WithKey sets the key identifying tokens. Default is a random key.
func (c *RememberMe) WithKey(key string) *RememberMe {
	if c.guard("key") {
		c.key = strings.TrimSpace(key)
	}
	return c
}

// WithSuccessHandler sets the handler invoked after a remember-me login
func (c *RememberMe) WithSuccessHandler(h SuccessHandler) *RememberMe {
	if c.guard("success_handler") {
		c.successHandler = h
	}
	return c
}

// WithMechanism uses m instead of building one. If m also implements
// LogoutHandler it becomes the cleanup step unless WithLogoutHandler
// sets another.
func (c *RememberMe) WithMechanism(m Mechanism) *RememberMe {
	if !c.guard("mechanism") {
		return c
	}
	c.mechanism = m
	c.mechanismLogout = nil
	if lh, ok := m.(LogoutHandler); ok {
		c.mechanismLogout = lh
	}
	return c
}

// WithLogoutHandler sets the cleanup step handed to the logout coordinator
func (c *RememberMe) WithLogoutHandler(h LogoutHandler) *RememberMe {
	if c.guard("logout_handler") {
		c.logoutHandler = h
	}
	return c
}

// WithParameter sets the login parameter name
func (c *RememberMe) WithParameter(name string) *RememberMe {
	if c.guard("parameter") {
		if name = strings.TrimSpace(name); name != "" {
			c.parameter = name
		}
	}
	return c
}

// WithCookieName sets the cookie name
func (c *RememberMe) WithCookieName(name string) *RememberMe {
	if c.guard("cookie_name") {
		if name = strings.TrimSpace(name); name != "" {
			c.cookieName = name
		}
	}
	return c
}

// WithCookieDomain sets the cookie domain
func (c *RememberMe) WithCookieDomain(domain string) *RememberMe {
	if c.guard("cookie_domain") {
		c.cookieDomain = strings.TrimSpace(domain)
	}
	return c
}

// WithAlwaysRemember remembers every login regardless of the parameter
func (c *RememberMe) WithAlwaysRemember(always bool) *RememberMe {
	if c.guard("always_remember") {
		c.alwaysRemember = always
	}
	return c
}

// WithSlidingExpiration toggles cookie reissue on stateless validation
func (c *RememberMe) WithSlidingExpiration(enabled bool) *RememberMe {
	if c.guard("sliding_expiration") {
		c.slidingExpiration = &enabled
	}
	return c
}

// WithClock overrides the time source of built mechanisms
func (c *RememberMe) WithClock(now func() time.Time) *RememberMe {
	if c.guard("clock") {
		c.now = now
	}
	return c
}

func (c *RememberMe) WithLogger(logger Logger) *RememberMe {
	c.loggerProvider, c.logger = ResolveLogger("remember.configurator", c.loggerProvider, logger)
	return c
}

func (c *RememberMe) WithLoggerProvider(provider LoggerProvider) *RememberMe {
	c.loggerProvider, c.logger = ResolveLogger("remember.configurator", provider, c.logger)
	return c
}

// WithConfig applies the non zero values of cfg
func (c *RememberMe) WithConfig(cfg Config) *RememberMe {
	if cfg.Key != "" {
		c.WithKey(cfg.Key)
	}
	if cfg.TokenValiditySeconds != 0 {
		c.WithTokenValiditySeconds(cfg.TokenValiditySeconds)
	}
	if cfg.UseSecureCookie != nil {
		c.WithSecureCookie(*cfg.UseSecureCookie)
	}
	if cfg.Parameter != "" {
		c.WithParameter(cfg.Parameter)
	}
	if cfg.CookieName != "" {
		c.WithCookieName(cfg.CookieName)
	}
	if cfg.CookieDomain != "" {
		c.WithCookieDomain(cfg.CookieDomain)
	}
	if cfg.AlwaysRemember {
		c.WithAlwaysRemember(true)
	}
	if cfg.SlidingExpiration != nil {
		c.WithSlidingExpiration(*cfg.SlidingExpiration)
	}
	return c
}

// guard reports whether settings can still change, recording a sticky
// error otherwise.
func (c *RememberMe) guard(setting string) bool {
	if !c.frozen {
		return true
	}
	c.logger.Error("remember-me setting changed after resolution", "setting", setting)
	if c.err == nil {
		c.err = failure(ErrConfiguratorFrozen, map[string]any{"setting": setting})
	}
	return false
}

// Key returns the key tokens are bound to. When none was set a random
// key is generated on first read and kept for the configurator lifetime.
func (c *RememberMe) Key() string {
	if c.key == "" {
		c.key = uuid.NewString()
	}
	return c.key
}

// Parameter returns the login parameter name
func (c *RememberMe) Parameter() string {
	return c.parameter
}

// CookieName returns the cookie name
func (c *RememberMe) CookieName() string {
	return c.cookieName
}

// Mechanism returns the resolved mechanism, or nil before resolution
func (c *RememberMe) Mechanism() Mechanism {
	return c.resolved
}

// LogoutHandler returns the cleanup step, known after resolution
func (c *RememberMe) LogoutHandler() LogoutHandler {
	return c.logoutHandler
}

// Filter returns the filter built by Configure
func (c *RememberMe) Filter() *RememberMeFilter {
	return c.filter
}

// Resolve builds the mechanism on first call and returns the same
// instance afterwards. Settings changed after the first call make every
// later call fail.
func (c *RememberMe) Resolve(shared *Registry) (Mechanism, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.resolved != nil {
		return c.resolved, nil
	}

	if c.mechanism != nil {
		if c.logoutHandler == nil {
			c.logoutHandler = c.mechanismLogout
		}
		c.resolved = c.mechanism
		c.frozen = true
		c.logger.Debug("using supplied remember-me mechanism")
		return c.resolved, nil
	}

	key := c.Key()

	users := c.users
	if users == nil {
		users, _ = Get(shared, UserLookupKey)
	}
	if users == nil {
		return nil, ErrMissingUserLookup
	}
	c.users = users

	opts := c.mechanismOptions()

	var built interface {
		Mechanism
		LogoutHandler
	}
	if c.tokenStore != nil {
		built = NewPersistentMechanism(key, users, c.tokenStore, opts...)
		c.logger.Debug("built persistent remember-me mechanism", "cookie", c.cookieName)
	} else {
		built = NewTokenMechanism(key, users, opts...)
		c.logger.Debug("built stateless remember-me mechanism", "cookie", c.cookieName)
	}

	c.resolved = built
	c.logoutHandler = built
	c.frozen = true
	return c.resolved, nil
}

func (c *RememberMe) mechanismOptions() []MechanismOption {
	opts := []MechanismOption{
		WithParameter(c.parameter),
		WithCookieName(c.cookieName),
		WithCookieDomain(c.cookieDomain),
		WithAlwaysRemember(c.alwaysRemember),
		WithMechanismLoggerProvider(c.loggerProvider),
	}
	if c.tokenValiditySeconds != nil {
		opts = append(opts, WithTokenValidity(time.Duration(*c.tokenValiditySeconds)*time.Second))
	}
	if c.useSecureCookie != nil {
		opts = append(opts, WithSecureCookie(*c.useSecureCookie))
	}
	if c.slidingExpiration != nil {
		opts = append(opts, WithSlidingExpiration(*c.slidingExpiration))
	}
	if c.now != nil {
		opts = append(opts, WithClock(c.now))
	}
	return opts
}

func (c *RememberMe) Init(sec *HTTPSecurity) error {
	mechanism, err := c.Resolve(sec.Shared())
	if err != nil {
		return err
	}

	if err := Set(sec.Shared(), MechanismKey, mechanism); err != nil {
		return err
	}

	if coordinator, ok := Get(sec.Shared(), LogoutCoordinatorKey); ok && c.logoutHandler != nil {
		coordinator.AddLogoutHandler(c.logoutHandler)
	}

	sec.AuthenticationProvider(NewRememberMeProvider(c.Key()))
	return nil
}

func (c *RememberMe) Configure(sec *HTTPSecurity) error {
	if c.resolved == nil {
		return ErrNotResolved
	}

	dispatcher, err := sec.AuthenticationDispatcher()
	if err != nil {
		return err
	}

	filter := NewRememberMeFilter(dispatcher, c.resolved).WithLogger(c.logger)
	if c.successHandler != nil {
		filter.WithSuccessHandler(c.successHandler)
	}
	c.filter = filter
	return sec.AddFilter(filter)
}
