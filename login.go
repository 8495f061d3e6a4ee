package remember

import (
	"net/http"
	"strings"
)

const (
	DefaultLoginPath         = "/login"
	DefaultLoginSuccessURL   = "/"
	DefaultLoginFailureURL   = "/login?error"
	DefaultUsernameParameter = "username"
	DefaultPasswordParameter = "password"
)

var (
	_ Configurer = (*FormLogin)(nil)
	_ Filter     = (*formLoginFilter)(nil)
)

// FormLogin authenticates username and password form posts. When a
// remember-me mechanism is published in the registry it is told about
// the outcome, so a remember-me cookie is issued on request.
type FormLogin struct {
	path              string
	successURL        string
	failureURL        string
	usernameParameter string
	passwordParameter string
	users             UserLookup
	dispatcher        Dispatcher
	mechanism         Mechanism
	logger            Logger
}

func NewFormLogin() *FormLogin {
	_, logger := ResolveLogger("remember.form_login", nil, nil)
	return &FormLogin{
		path:              DefaultLoginPath,
		successURL:        DefaultLoginSuccessURL,
		failureURL:        DefaultLoginFailureURL,
		usernameParameter: DefaultUsernameParameter,
		passwordParameter: DefaultPasswordParameter,
		logger:            logger,
	}
}

func (f *FormLogin) WithPath(path string) *FormLogin {
	if path = strings.TrimSpace(path); path != "" {
		f.path = path
	}
	return f
}

func (f *FormLogin) WithSuccessURL(url string) *FormLogin {
	if url = strings.TrimSpace(url); url != "" {
		f.successURL = url
	}
	return f
}

func (f *FormLogin) WithFailureURL(url string) *FormLogin {
	if url = strings.TrimSpace(url); url != "" {
		f.failureURL = url
	}
	return f
}

func (f *FormLogin) WithUsernameParameter(name string) *FormLogin {
	if name = strings.TrimSpace(name); name != "" {
		f.usernameParameter = name
	}
	return f
}

func (f *FormLogin) WithPasswordParameter(name string) *FormLogin {
	if name = strings.TrimSpace(name); name != "" {
		f.passwordParameter = name
	}
	return f
}

// WithUserLookup sets the users checked by the password provider. When
// not set the lookup published under UserLookupKey is used.
func (f *FormLogin) WithUserLookup(users UserLookup) *FormLogin {
	f.users = users
	return f
}

func (f *FormLogin) WithLogger(logger Logger) *FormLogin {
	_, f.logger = ResolveLogger("remember.form_login", nil, logger)
	return f
}

func (f *FormLogin) Init(sec *HTTPSecurity) error {
	users := f.users
	if users == nil {
		users, _ = Get(sec.Shared(), UserLookupKey)
	}
	if users == nil {
		f.logger.Debug("form login without user lookup, relying on registered providers")
		return nil
	}
	sec.AuthenticationProvider(NewPasswordProvider(users).WithLogger(f.logger))
	return nil
}

func (f *FormLogin) Configure(sec *HTTPSecurity) error {
	dispatcher, err := sec.AuthenticationDispatcher()
	if err != nil {
		return err
	}
	f.dispatcher = dispatcher
	f.mechanism, _ = Get(sec.Shared(), MechanismKey)
	return sec.AddFilter(&formLoginFilter{login: f})
}

type formLoginFilter struct {
	login *FormLogin
}

func (f *formLoginFilter) Order() int {
	return OrderFormLogin
}

func (f *formLoginFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		login := f.login
		if r.Method != http.MethodPost || r.URL.Path != login.path {
			next.ServeHTTP(w, r)
			return
		}

		request := &Authentication{
			Kind:        KindPassword,
			Name:        strings.TrimSpace(r.FormValue(login.usernameParameter)),
			Credentials: r.FormValue(login.passwordParameter),
		}

		auth, err := login.dispatcher.Authenticate(r.Context(), request)
		if err != nil {
			login.logger.Debug("form login failed", "username", request.Name, "error", err)
			if login.mechanism != nil {
				login.mechanism.LoginFail(w, r)
			}
			http.Redirect(w, r, login.failureURL, http.StatusSeeOther)
			return
		}

		login.logger.Debug("form login succeeded", "username", auth.Name)
		if login.mechanism != nil {
			login.mechanism.LoginSuccess(w, r, auth)
		}
		http.Redirect(w, r, login.successURL, http.StatusSeeOther)
	})
}
