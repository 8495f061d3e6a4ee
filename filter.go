package remember

import (
	"net/http"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

var _ Filter = (*RememberMeFilter)(nil)

// RememberMeFilter authenticates requests that carry no authentication
// yet but present a valid remember-me cookie.
type RememberMeFilter struct {
	dispatcher     Dispatcher
	mechanism      Mechanism
	successHandler SuccessHandler
	logger         Logger
}

func NewRememberMeFilter(dispatcher Dispatcher, mechanism Mechanism) *RememberMeFilter {
	_, logger := ResolveLogger("remember.filter", nil, nil)
	return &RememberMeFilter{
		dispatcher: dispatcher,
		mechanism:  mechanism,
		logger:     logger,
	}
}

func (f *RememberMeFilter) WithSuccessHandler(h SuccessHandler) *RememberMeFilter {
	f.successHandler = h
	return f
}

func (f *RememberMeFilter) WithLogger(logger Logger) *RememberMeFilter {
	_, f.logger = ResolveLogger("remember.filter", nil, logger)
	return f
}

func (f *RememberMeFilter) Mechanism() Mechanism {
	return f.mechanism
}

func (f *RememberMeFilter) Order() int {
	return OrderRememberMe
}

func (f *RememberMeFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := AuthenticationFrom(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		candidate, err := f.mechanism.AutoLogin(w, r)
		if err != nil {
			f.logFailure("remember-me auto login failed", err)
			next.ServeHTTP(w, r)
			return
		}
		if candidate == nil {
			next.ServeHTTP(w, r)
			return
		}

		auth, err := f.dispatcher.Authenticate(r.Context(), candidate)
		if err != nil {
			f.logFailure("remember-me authentication rejected by dispatcher", err)
			f.mechanism.LoginFail(w, r)
			next.ServeHTTP(w, r)
			return
		}

		f.logger.Debug("request authenticated from remember-me cookie", "username", auth.Name)
		r = r.WithContext(WithAuthentication(r.Context(), auth))

		if f.successHandler != nil {
			f.successHandler.OnAuthenticationSuccess(w, r, auth)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *RememberMeFilter) logFailure(message string, err error) {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		f.logger.Debug(message,
			"error", richErr.Message,
			"text_code", richErr.TextCode,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
		return
	}
	f.logger.Debug(message, "error", err)
}
