package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/collegeos/portal/internal/auth"
	"github.com/collegeos/portal/internal/routes"
)

const sessionKey = "session"

func setSession(c *gin.Context, sessionData *auth.SessionData) {
	c.Set(sessionKey, sessionData)
}

// GetSessionData returns the claims stored by RouteGuard
func GetSessionData(c *gin.Context) (*auth.SessionData, bool) {
	session, exists := c.Get(sessionKey)
	if !exists {
		return nil, false
	}

	sessionData, ok := session.(*auth.SessionData)
	return sessionData, ok
}

func redirect(c *gin.Context, path string) {
	c.Redirect(http.StatusFound, path)
	c.Abort()
}

// TokenVerifier checks a session token and returns its claims
type TokenVerifier interface {
	Verify(token string) (*auth.SessionData, error)
}

// RouteGuard runs before every page request. Guarded paths need a valid
// session cookie; admin paths additionally need the ADMIN role. Any failure
// while checking the token redirects to the login page.
func RouteGuard(table *routes.Table, verifier TokenVerifier, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		access := table.Classify(path)
		if access == routes.AccessPublic {
			c.Next()
			return
		}

		token, err := c.Cookie(auth.TokenCookieName)
		if err != nil || token == "" {
			log.Debug().Str("path", path).Msg("No session cookie, redirecting to login")
			redirect(c, table.LoginPath)
			return
		}

		sessionData, err := verifySafely(verifier, token)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Session token rejected, redirecting to login")
			redirect(c, table.LoginPath)
			return
		}

		if access == routes.AccessAdmin && !sessionData.Role.IsAdmin() {
			log.Info().
				Str("path", path).
				Str("user_id", sessionData.UserID).
				Str("role", string(sessionData.Role)).
				Msg("Non-admin denied admin page")
			redirect(c, table.LandingPath)
			return
		}

		setSession(c, sessionData)
		c.Next()
	}
}

func verifySafely(verifier TokenVerifier, token string) (data *auth.SessionData, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("token verification panicked: %v", r)
		}
	}()

	data, err = verifier.Verify(token)
	if err == nil && data == nil {
		err = auth.ErrInvalidToken
	}
	return data, err
}
