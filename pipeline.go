package remember

import (
	"net/http"
	"sort"
)

// Filter orders
const (
	OrderLogout     = 200
	OrderFormLogin  = 300
	OrderRememberMe = 500
)

// Filter is a single step of the request security chain
type Filter interface {
	Order() int
	Wrap(next http.Handler) http.Handler
}

// Configurer contributes to a pipeline in two phases. Init runs for
// every configurer before any Configure runs, so Init is where shared
// objects and providers are published and Configure is where filters
// are built from them.
type Configurer interface {
	Init(sec *HTTPSecurity) error
	Configure(sec *HTTPSecurity) error
}

// Publisher is implemented by configurers that must be discoverable in
// the shared registry before any Init runs.
type Publisher interface {
	Publish(shared *Registry) error
}

// SecurityOption configures an HTTPSecurity
type SecurityOption func(*HTTPSecurity)

// WithDispatcher replaces the default ProviderManager
func WithDispatcher(dispatcher Dispatcher) SecurityOption {
	return func(s *HTTPSecurity) {
		s.dispatcher = dispatcher
	}
}

// WithSharedUserLookup publishes users under UserLookupKey
func WithSharedUserLookup(users UserLookup) SecurityOption {
	return func(s *HTTPSecurity) {
		s.sharedUsers = users
	}
}

// WithSecurityLogger sets the pipeline logger
func WithSecurityLogger(logger Logger) SecurityOption {
	return func(s *HTTPSecurity) {
		s.logger = logger
	}
}

// WithSecurityLoggerProvider sets the pipeline logger provider
func WithSecurityLoggerProvider(provider LoggerProvider) SecurityOption {
	return func(s *HTTPSecurity) {
		s.loggerProvider = provider
	}
}

// HTTPSecurity assembles a security chain from configurers. It owns the
// shared registry for the build; a new HTTPSecurity starts from an
// empty registry.
type HTTPSecurity struct {
	shared         *Registry
	configurers    []Configurer
	providers      []Provider
	filters        []Filter
	dispatcher     Dispatcher
	dispatcherOK   bool
	sharedUsers    UserLookup
	built          bool
	err            error
	logger         Logger
	loggerProvider LoggerProvider
}

func NewHTTPSecurity(opts ...SecurityOption) *HTTPSecurity {
	s := &HTTPSecurity{shared: NewRegistry()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.loggerProvider, s.logger = ResolveLogger("remember.security", s.loggerProvider, s.logger)
	if s.sharedUsers != nil {
		s.err = Set(s.shared, UserLookupKey, s.sharedUsers)
	}
	return s
}

// Shared returns the registry used by this build
func (s *HTTPSecurity) Shared() *Registry {
	return s.shared
}

// Logger returns the pipeline logger
func (s *HTTPSecurity) Logger() Logger {
	return s.logger
}

// LoggerProvider returns the pipeline logger provider
func (s *HTTPSecurity) LoggerProvider() LoggerProvider {
	return s.loggerProvider
}

// Apply adds a configurer. Publishers are published immediately.
func (s *HTTPSecurity) Apply(c Configurer) error {
	if s.built {
		return ErrAlreadyBuilt
	}
	if c == nil {
		return nil
	}
	if p, ok := c.(Publisher); ok {
		if err := p.Publish(s.shared); err != nil {
			return err
		}
	}
	s.configurers = append(s.configurers, c)
	return nil
}

// AuthenticationProvider registers a provider with the dispatcher
func (s *HTTPSecurity) AuthenticationProvider(p Provider) {
	if p == nil {
		return
	}
	s.providers = append(s.providers, p)
}

// AuthenticationDispatcher returns the dispatcher. It is available once
// every configurer finished Init.
func (s *HTTPSecurity) AuthenticationDispatcher() (Dispatcher, error) {
	if !s.dispatcherOK || s.dispatcher == nil {
		return nil, ErrDispatcherUnavailable
	}
	return s.dispatcher, nil
}

// AddFilter adds a filter to the chain
func (s *HTTPSecurity) AddFilter(f Filter) error {
	if s.built {
		return ErrAlreadyBuilt
	}
	if f != nil {
		s.filters = append(s.filters, f)
	}
	return nil
}

// Build runs Init on every configurer, builds the dispatcher, runs
// Configure on every configurer and returns the ordered chain.
func (s *HTTPSecurity) Build() (*SecurityChain, error) {
	if s.built {
		return nil, ErrAlreadyBuilt
	}
	if s.err != nil {
		return nil, s.err
	}

	for _, c := range s.configurers {
		if err := c.Init(s); err != nil {
			s.logger.Error("security configurer init failed", "error", err)
			return nil, err
		}
	}

	if s.dispatcher == nil {
		s.dispatcher = NewProviderManager(s.providers...).WithLogger(s.logger)
	}
	s.dispatcherOK = true
	if err := Set(s.shared, DispatcherKey, s.dispatcher); err != nil {
		return nil, err
	}

	for _, c := range s.configurers {
		if err := c.Configure(s); err != nil {
			s.logger.Error("security configurer configure failed", "error", err)
			return nil, err
		}
	}

	filters := append([]Filter(nil), s.filters...)
	sort.SliceStable(filters, func(i, j int) bool {
		return filters[i].Order() < filters[j].Order()
	})

	s.built = true
	s.logger.Debug("security chain built", "filters", len(filters), "providers", len(s.providers))

	return &SecurityChain{filters: filters, dispatcher: s.dispatcher}, nil
}

// SecurityChain is the built, ordered list of filters
type SecurityChain struct {
	filters    []Filter
	dispatcher Dispatcher
}

// Filters returns the filters in execution order
func (c *SecurityChain) Filters() []Filter {
	return append([]Filter(nil), c.filters...)
}

// Dispatcher returns the authentication dispatcher the chain was built with
func (c *SecurityChain) Dispatcher() Dispatcher {
	return c.dispatcher
}

// Wrap runs the chain in front of next
func (c *SecurityChain) Wrap(next http.Handler) http.Handler {
	h := next
	for i := len(c.filters) - 1; i >= 0; i-- {
		h = c.filters[i].Wrap(h)
	}
	return h
}
