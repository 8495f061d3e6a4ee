// Package remembergin mounts a remember-me security chain on gin
package remembergin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	remember "github.com/goliatone/go-remember"
)

const authenticationKey = "remember.authentication"

// Middleware runs chain in front of the remaining gin handlers. When a
// filter answers the request itself (a login redirect, for example)
// the gin chain is aborted.
func Middleware(chain *remember.SecurityChain) gin.HandlerFunc {
	return func(c *gin.Context) {
		reached := false
		handler := chain.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			c.Request = r
			if auth, ok := remember.AuthenticationFrom(r.Context()); ok {
				c.Set(authenticationKey, auth)
			}
			c.Next()
		}))
		handler.ServeHTTP(c.Writer, c.Request)
		if !reached {
			c.Abort()
		}
	}
}

// Authentication returns the authentication established for the request
func Authentication(c *gin.Context) (*remember.Authentication, bool) {
	if v, ok := c.Get(authenticationKey); ok {
		if auth, ok := v.(*remember.Authentication); ok && auth != nil {
			return auth, true
		}
	}
	return remember.AuthenticationFrom(c.Request.Context())
}

// RequireAuthentication aborts with 401 unless the request is authenticated
func RequireAuthentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := Authentication(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}
