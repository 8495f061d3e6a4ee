package remember_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	remember "github.com/goliatone/go-remember"
	"github.com/goliatone/go-remember/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRememberMeWithoutUserLookupFailsInit(t *testing.T) {
	sec := remember.NewHTTPSecurity()
	require.NoError(t, sec.Apply(remember.NewRememberMe()))

	chain, err := sec.Build()
	require.Error(t, err)
	assert.Nil(t, chain)
	assert.True(t, remember.IsConfigurationError(err))
	assert.Equal(t, remember.TextCodeMissingUserLookup, textCodeOf(err))
}

func TestRememberMeSelectsMechanism(t *testing.T) {
	t.Run("stateless without token store", func(t *testing.T) {
		rm := remember.NewRememberMe().WithUserLookup(testUsers())
		m, err := rm.Resolve(remember.NewRegistry())
		require.NoError(t, err)
		assert.IsType(t, &remember.TokenMechanism{}, m)
	})

	t.Run("persistent with token store", func(t *testing.T) {
		store := memory.NewStore()
		rm := remember.NewRememberMe().WithUserLookup(testUsers()).WithTokenStore(store)
		m, err := rm.Resolve(remember.NewRegistry())
		require.NoError(t, err)
		require.IsType(t, &remember.PersistentMechanism{}, m)
		assert.Same(t, store, m.(*remember.PersistentMechanism).TokenStore())
	})
}

func TestRememberMeResolveIsIdempotent(t *testing.T) {
	rm := remember.NewRememberMe().WithUserLookup(testUsers())
	reg := remember.NewRegistry()

	first, err := rm.Resolve(reg)
	require.NoError(t, err)
	second, err := rm.Resolve(reg)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, rm.Mechanism())
}

func TestRememberMeKeys(t *testing.T) {
	a := remember.NewRememberMe()
	b := remember.NewRememberMe()

	assert.NotEmpty(t, a.Key())
	assert.Equal(t, a.Key(), a.Key())
	assert.NotEqual(t, a.Key(), b.Key())

	explicit := remember.NewRememberMe().WithKey("  app-secret ")
	assert.Equal(t, "app-secret", explicit.Key())
}

func TestRememberMeMechanismUsesConfiguredSettings(t *testing.T) {
	users := testUsers()
	rm := remember.NewRememberMe().
		WithUserLookup(users).
		WithKey("configured").
		WithParameter("stay").
		WithCookieName("keep-me").
		WithTokenValiditySeconds(600).
		WithSecureCookie(true)

	m, err := rm.Resolve(remember.NewRegistry())
	require.NoError(t, err)
	tm := m.(*remember.TokenMechanism)

	assert.Equal(t, "configured", tm.Key())
	assert.Equal(t, "stay", tm.Parameter())
	assert.Equal(t, "keep-me", tm.CookieName())
	assert.Equal(t, 10*time.Minute, tm.TokenValidity())
	assert.Same(t, users, tm.UserLookup())
	secure, forced := tm.SecureCookie()
	assert.True(t, secure)
	assert.True(t, forced)
}

func TestRememberMeUsesSharedUserLookup(t *testing.T) {
	users := testUsers()
	reg := remember.NewRegistry()
	require.NoError(t, remember.Set[remember.UserLookup](reg, remember.UserLookupKey, users))

	rm := remember.NewRememberMe()
	m, err := rm.Resolve(reg)
	require.NoError(t, err)
	assert.Same(t, users, m.(*remember.TokenMechanism).UserLookup())
}

func TestRememberMeExplicitUserLookupWinsOverShared(t *testing.T) {
	shared := testUsers()
	explicit := remember.NewStaticUsers()
	reg := remember.NewRegistry()
	require.NoError(t, remember.Set[remember.UserLookup](reg, remember.UserLookupKey, shared))

	m, err := remember.NewRememberMe().WithUserLookup(explicit).Resolve(reg)
	require.NoError(t, err)
	assert.Same(t, explicit, m.(*remember.TokenMechanism).UserLookup())
}

func TestRememberMeSettingsFreezeAfterResolution(t *testing.T) {
	rm := remember.NewRememberMe().WithUserLookup(testUsers())
	_, err := rm.Resolve(remember.NewRegistry())
	require.NoError(t, err)

	rm.WithCookieName("changed")

	_, err = rm.Resolve(remember.NewRegistry())
	require.Error(t, err)
	assert.True(t, remember.IsConfigurationError(err))
	assert.Equal(t, remember.TextCodeConfiguratorFrozen, textCodeOf(err))
	assert.Equal(t, remember.DefaultCookieName, rm.CookieName())
}

func TestRememberMeExplicitMechanism(t *testing.T) {
	t.Run("adopts cleanup capability", func(t *testing.T) {
		mech := new(MockMechanism)
		rm := remember.NewRememberMe().WithMechanism(mech)

		m, err := rm.Resolve(remember.NewRegistry())
		require.NoError(t, err)
		assert.Same(t, mech, m)
		assert.Same(t, mech, rm.LogoutHandler())
	})

	t.Run("configured cleanup wins", func(t *testing.T) {
		mech := new(MockMechanism)
		cleanup := remember.LogoutHandlerFunc(func(http.ResponseWriter, *http.Request, *remember.Authentication) {})
		rm := remember.NewRememberMe().WithMechanism(mech).WithLogoutHandler(cleanup)

		_, err := rm.Resolve(remember.NewRegistry())
		require.NoError(t, err)
		assert.NotNil(t, rm.LogoutHandler())
		_, isMock := rm.LogoutHandler().(*MockMechanism)
		assert.False(t, isMock)
	})

	t.Run("mechanism without cleanup", func(t *testing.T) {
		rm := remember.NewRememberMe().WithMechanism(bareMechanism{})
		_, err := rm.Resolve(remember.NewRegistry())
		require.NoError(t, err)
		assert.Nil(t, rm.LogoutHandler())
	})

	t.Run("needs no user lookup", func(t *testing.T) {
		sec := remember.NewHTTPSecurity()
		require.NoError(t, sec.Apply(remember.NewRememberMe().WithMechanism(bareMechanism{})))
		_, err := sec.Build()
		assert.NoError(t, err)
	})
}

func TestRememberMeInitPublishesAndRegisters(t *testing.T) {
	logout := remember.NewLogout()
	rm := remember.NewRememberMe().WithUserLookup(testUsers()).WithTokenStore(memory.NewStore())

	sec := remember.NewHTTPSecurity()
	require.NoError(t, sec.Apply(logout))
	require.NoError(t, sec.Apply(rm))

	chain, err := sec.Build()
	require.NoError(t, err)

	published, ok := remember.Get(sec.Shared(), remember.MechanismKey)
	require.True(t, ok)
	assert.Same(t, rm.Mechanism(), published)

	handlers := logout.Handlers()
	require.Len(t, handlers, 1)
	assert.Same(t, rm.Mechanism(), handlers[0])

	manager, ok := chain.Dispatcher().(*remember.ProviderManager)
	require.True(t, ok)
	providers := manager.Providers()
	require.Len(t, providers, 1)
	assert.IsType(t, &remember.RememberMeProvider{}, providers[0])

	require.NotNil(t, rm.Filter())
	assert.Same(t, rm.Mechanism(), rm.Filter().Mechanism())
}

func TestRememberMeInitWithoutLogoutCoordinator(t *testing.T) {
	rm := remember.NewRememberMe().WithUserLookup(testUsers())
	sec := remember.NewHTTPSecurity()
	require.NoError(t, sec.Apply(rm))

	_, err := sec.Build()
	require.NoError(t, err)
	assert.False(t, sec.Shared().Has(remember.LogoutCoordinatorKey.String()))
	assert.NotNil(t, rm.LogoutHandler())
}

func TestRememberMeConfigureBeforeInit(t *testing.T) {
	rm := remember.NewRememberMe().WithUserLookup(testUsers())
	err := rm.Configure(remember.NewHTTPSecurity())
	require.Error(t, err)
	assert.Equal(t, remember.TextCodeNotResolved, textCodeOf(err))
}

func TestRememberMeConfigureWithoutDispatcher(t *testing.T) {
	rm := remember.NewRememberMe().WithUserLookup(testUsers())
	sec := remember.NewHTTPSecurity()
	require.NoError(t, rm.Init(sec))

	err := rm.Configure(sec)
	require.Error(t, err)
	assert.True(t, remember.IsConfigurationError(err))
	assert.Equal(t, remember.TextCodeDispatcherUnavailable, textCodeOf(err))
}

func TestRememberMeProviderBoundToKey(t *testing.T) {
	users := testUsers()
	rm := remember.NewRememberMe().WithUserLookup(users).WithKey("bound")
	sec := remember.NewHTTPSecurity()
	require.NoError(t, sec.Apply(rm))
	chain, err := sec.Build()
	require.NoError(t, err)

	user, _ := users.LoadUserByUsername(t.Context(), "alice")
	good := &remember.Authentication{Kind: remember.KindRememberMe, Name: "alice", Principal: user, KeyHash: remember.HashKey("bound")}
	auth, err := chain.Dispatcher().Authenticate(t.Context(), good)
	require.NoError(t, err)
	assert.True(t, auth.Authenticated)

	forged := &remember.Authentication{Kind: remember.KindRememberMe, Name: "alice", Principal: user, KeyHash: remember.HashKey("other")}
	_, err = chain.Dispatcher().Authenticate(t.Context(), forged)
	require.Error(t, err)
	assert.Equal(t, remember.TextCodeKeyMismatch, textCodeOf(err))
}

func TestRememberMeSuccessHandler(t *testing.T) {
	users := testUsers()
	clock := newTestClock()
	rm := remember.NewRememberMe().
		WithUserLookup(users).
		WithKey("k").
		WithClock(clock.Now).
		WithSuccessHandler(remember.RedirectSuccessHandler("/home"))

	sec := remember.NewHTTPSecurity()
	require.NoError(t, sec.Apply(rm))
	chain, err := sec.Build()
	require.NoError(t, err)

	issuer := remember.NewTokenMechanism("k", users, remember.WithClock(clock.Now))
	cookie := issueTokenCookie(t, issuer, users, "alice")

	nextCalled := false
	handler := chain.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { nextCalled = true }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithCookie(cookie))
	assert.False(t, nextCalled)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))
}

func TestRememberMeWithConfig(t *testing.T) {
	secure := false
	sliding := false
	rm := remember.NewRememberMe().WithUserLookup(testUsers()).WithConfig(remember.Config{
		Key:                  "from-config",
		TokenValiditySeconds: 120,
		UseSecureCookie:      &secure,
		Parameter:            "remember",
		CookieName:           "session-keep",
		AlwaysRemember:       true,
		SlidingExpiration:    &sliding,
	})

	m, err := rm.Resolve(remember.NewRegistry())
	require.NoError(t, err)
	tm := m.(*remember.TokenMechanism)
	assert.Equal(t, "from-config", tm.Key())
	assert.Equal(t, 2*time.Minute, tm.TokenValidity())
	assert.Equal(t, "remember", tm.Parameter())
	assert.Equal(t, "session-keep", tm.CookieName())
	assert.False(t, tm.SlidingExpiration())
	secureFlag, forced := tm.SecureCookie()
	assert.False(t, secureFlag)
	assert.True(t, forced)
}

func TestRememberMeLoggerProvider(t *testing.T) {
	resolved := &captureLogger{}
	provider := &loggerProviderSpy{logger: resolved}

	rm := remember.NewRememberMe().WithLoggerProvider(provider).WithMechanism(new(MockMechanism))
	_, err := rm.Resolve(remember.NewRegistry())
	require.NoError(t, err)

	assert.Contains(t, provider.names, "remember.configurator")
	assert.Contains(t, resolved.levels(), "debug")
}

func TestRememberMeFilterIgnoresFailedAutoLogin(t *testing.T) {
	mech := new(MockMechanism)
	mech.On("AutoLogin", mock.Anything, mock.Anything).Return(nil, remember.ErrInvalidCookie).Once()

	sec := remember.NewHTTPSecurity()
	require.NoError(t, sec.Apply(remember.NewRememberMe().WithMechanism(mech)))
	chain, err := sec.Build()
	require.NoError(t, err)

	nextCalled := false
	chain.Wrap(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		nextCalled = true
		_, ok := remember.AuthenticationFrom(r.Context())
		assert.False(t, ok)
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, nextCalled)
	mech.AssertExpectations(t)
}

func TestRememberMeFilterCallsLoginFailWhenDispatcherRejects(t *testing.T) {
	mech := new(MockMechanism)
	candidate := &remember.Authentication{Kind: remember.KindRememberMe, Name: "alice", KeyHash: remember.HashKey("wrong")}
	mech.On("AutoLogin", mock.Anything, mock.Anything).Return(candidate, nil).Once()
	mech.On("LoginFail", mock.Anything, mock.Anything).Return().Once()

	sec := remember.NewHTTPSecurity()
	require.NoError(t, sec.Apply(remember.NewRememberMe().WithMechanism(mech).WithKey("right")))
	chain, err := sec.Build()
	require.NoError(t, err)

	nextCalled := false
	chain.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { nextCalled = true })).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, nextCalled)
	mech.AssertExpectations(t)
}

func TestRememberMeFilterSkipsAuthenticatedRequests(t *testing.T) {
	mech := new(MockMechanism)

	sec := remember.NewHTTPSecurity()
	require.NoError(t, sec.Apply(remember.NewRememberMe().WithMechanism(mech)))
	chain, err := sec.Build()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(remember.WithAuthentication(req.Context(), &remember.Authentication{Name: "alice", Authenticated: true}))

	chain.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(httptest.NewRecorder(), req)
	mech.AssertNotCalled(t, "AutoLogin", mock.Anything, mock.Anything)
}
