package remembergin_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	remember "github.com/goliatone/go-remember"
	remembergin "github.com/goliatone/go-remember/adapters/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "gin-key"

func setupRouter(t *testing.T) (*gin.Engine, *remember.StaticUsers) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := remember.NewStaticUsers(remember.User{Name: "alice", PasswordHash: "hash", UserRoles: []string{"admin"}})

	sec := remember.NewHTTPSecurity(remember.WithSharedUserLookup(users))
	require.NoError(t, sec.Apply(remember.NewLogout()))
	require.NoError(t, sec.Apply(remember.NewRememberMe().WithKey(testKey)))
	chain, err := sec.Build()
	require.NoError(t, err)

	router := gin.New()
	router.Use(remembergin.Middleware(chain))
	router.GET("/public", func(c *gin.Context) {
		_, ok := remembergin.Authentication(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})
	router.GET("/private", remembergin.RequireAuthentication(), func(c *gin.Context) {
		auth, _ := remembergin.Authentication(c)
		c.JSON(http.StatusOK, gin.H{"username": auth.Name})
	})
	router.POST("/logout", func(c *gin.Context) {
		c.Status(http.StatusTeapot)
	})
	return router, users
}

func issueCookie(t *testing.T, users *remember.StaticUsers) *http.Cookie {
	t.Helper()
	user, err := users.LoadUserByUsername(t.Context(), "alice")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	remember.NewTokenMechanism(testKey, users).Issue(rec, httptest.NewRequest(http.MethodPost, "/login", nil), user)
	for _, c := range rec.Result().Cookies() {
		if c.Name == remember.DefaultCookieName {
			return c
		}
	}
	t.Fatal("remember-me cookie not issued")
	return nil
}

func TestMiddlewareAuthenticatesFromCookie(t *testing.T) {
	router, users := setupRouter(t)
	cookie := issueCookie(t, users)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"alice"}`, rec.Body.String())
}

func TestMiddlewareWithoutCookie(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsTamperedCookie(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: remember.DefaultCookieName, Value: "not-a-cookie"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var cancelled bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == remember.DefaultCookieName && c.MaxAge < 0 {
			cancelled = true
		}
	}
	assert.True(t, cancelled)
}

func TestMiddlewareAbortsWhenFilterResponds(t *testing.T) {
	router, users := setupRouter(t)
	cookie := issueCookie(t, users)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code, "logout filter answers before the gin handler")
	assert.Equal(t, remember.DefaultLogoutSuccessURL, rec.Header().Get("Location"))
}
