package remember

import (
	"net/http"
	"strings"
	"sync"
)

const (
	DefaultLogoutPath       = "/logout"
	DefaultLogoutSuccessURL = "/login?logout"
)

// LogoutCoordinator collects the cleanup steps run on logout
type LogoutCoordinator interface {
	AddLogoutHandler(h LogoutHandler)
}

var (
	_ Configurer        = (*Logout)(nil)
	_ Publisher         = (*Logout)(nil)
	_ LogoutCoordinator = (*Logout)(nil)
	_ Filter            = (*logoutFilter)(nil)
)

// Logout handles logout requests by running every registered cleanup
// step and redirecting. Applying it publishes the coordinator so that
// configurators registered later can contribute their cleanup.
type Logout struct {
	mu         sync.Mutex
	path       string
	successURL string
	handlers   []LogoutHandler
	logger     Logger
}

func NewLogout() *Logout {
	_, logger := ResolveLogger("remember.logout", nil, nil)
	return &Logout{
		path:       DefaultLogoutPath,
		successURL: DefaultLogoutSuccessURL,
		logger:     logger,
	}
}

// WithPath sets the logout endpoint path
func (l *Logout) WithPath(path string) *Logout {
	if path = strings.TrimSpace(path); path != "" {
		l.path = path
	}
	return l
}

// WithSuccessURL sets where users are sent after logout
func (l *Logout) WithSuccessURL(url string) *Logout {
	if url = strings.TrimSpace(url); url != "" {
		l.successURL = url
	}
	return l
}

func (l *Logout) WithLogger(logger Logger) *Logout {
	_, l.logger = ResolveLogger("remember.logout", nil, logger)
	return l
}

// AddLogoutHandler appends a cleanup step. Steps run in the order added.
func (l *Logout) AddLogoutHandler(h LogoutHandler) {
	if h == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Handlers returns the registered cleanup steps
func (l *Logout) Handlers() []LogoutHandler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogoutHandler(nil), l.handlers...)
}

func (l *Logout) Publish(shared *Registry) error {
	return Set[LogoutCoordinator](shared, LogoutCoordinatorKey, l)
}

func (l *Logout) Init(*HTTPSecurity) error {
	return nil
}

func (l *Logout) Configure(sec *HTTPSecurity) error {
	return sec.AddFilter(&logoutFilter{logout: l})
}

// Perform runs every cleanup step for the request
func (l *Logout) Perform(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthenticationFrom(r.Context())
	username := ""
	if auth != nil {
		username = auth.Name
	}
	handlers := l.Handlers()
	l.logger.Debug("running logout handlers", "username", username, "handlers", len(handlers))
	for _, h := range handlers {
		h.Logout(w, r, auth)
	}
}

type logoutFilter struct {
	logout *Logout
}

func (f *logoutFilter) Order() int {
	return OrderLogout
}

func (f *logoutFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != f.logout.path {
			next.ServeHTTP(w, r)
			return
		}
		f.logout.Perform(w, r)
		http.Redirect(w, r, f.logout.successURL, http.StatusSeeOther)
	})
}
