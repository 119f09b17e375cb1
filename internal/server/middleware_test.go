package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collegeos/portal/internal/auth"
	"github.com/collegeos/portal/internal/routes"
)

const testSecret = "portal-test-secret"

func guardedRouter(verifier TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RouteGuard(routes.Default(), verifier, zerolog.Nop()))
	r.NoRoute(func(c *gin.Context) {
		if data, ok := GetSessionData(c); ok {
			c.String(http.StatusOK, "page for "+data.UserID)
			return
		}
		c.String(http.StatusOK, "public page")
	})
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.TokenCookieName, Value: token})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, secret string, role auth.Role, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateToken(secret, "user-1", "user@college.edu", role, ttl)
	require.NoError(t, err)
	return tok
}

func TestRouteGuard_NoCookieRedirectsToLogin(t *testing.T) {
	r := guardedRouter(auth.NewVerifier(testSecret))

	for _, path := range []string{
		"/dashboard", "/profile", "/attendance", "/notices", "/exams",
		"/placements", "/chat/general", "/alerts", "/settings",
		"/admin", "/admin/users", "/marketplace", "/gigs/7",
	} {
		w := get(r, path, "")
		require.Equal(t, http.StatusFound, w.Code, "path=%s", path)
		require.Equal(t, "/login", w.Header().Get("Location"), "path=%s", path)
	}
}

func TestRouteGuard_PublicPathsPass(t *testing.T) {
	r := guardedRouter(auth.NewVerifier(testSecret))

	for _, path := range []string{"/", "/login", "/register", "/administer", "/assets/app.js"} {
		w := get(r, path, "")
		require.Equal(t, http.StatusOK, w.Code, "path=%s", path)
		require.Equal(t, "public page", w.Body.String())
	}
}

func TestRouteGuard_ValidSession(t *testing.T) {
	r := guardedRouter(auth.NewVerifier(testSecret))

	w := get(r, "/dashboard", token(t, testSecret, auth.RoleStudent, time.Hour))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "page for user-1", w.Body.String())

	w = get(r, "/admin/users", token(t, testSecret, auth.RoleAdmin, time.Hour))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouteGuard_NonAdminOnAdminPath(t *testing.T) {
	r := guardedRouter(auth.NewVerifier(testSecret))
	student := token(t, testSecret, auth.RoleStudent, time.Hour)

	for _, path := range []string{"/admin", "/admin/users", "/Admin/settings"} {
		w := get(r, path, student)
		require.Equal(t, http.StatusFound, w.Code, "path=%s", path)
		require.Equal(t, "/dashboard", w.Header().Get("Location"), "path=%s", path)
	}
}

func TestRouteGuard_RejectedTokens(t *testing.T) {
	r := guardedRouter(auth.NewVerifier(testSecret))

	tests := map[string]string{
		"wrong secret": token(t, "other-secret", auth.RoleAdmin, time.Hour),
		"expired":      token(t, testSecret, auth.RoleAdmin, -time.Minute),
		"garbage":      "definitely-not-a-jwt",
	}
	for name, tok := range tests {
		for _, path := range []string{"/admin/users", "/dashboard"} {
			w := get(r, path, tok)
			require.Equal(t, http.StatusFound, w.Code, "%s path=%s", name, path)
			require.Equal(t, "/login", w.Header().Get("Location"), "%s path=%s", name, path)
		}
	}
}

type panickingVerifier struct{}

func (panickingVerifier) Verify(string) (*auth.SessionData, error) {
	panic("verifier exploded")
}

type nilVerifier struct{}

func (nilVerifier) Verify(string) (*auth.SessionData, error) {
	return nil, nil
}

func TestRouteGuard_FailsClosed(t *testing.T) {
	for name, v := range map[string]TokenVerifier{
		"panic":        panickingVerifier{},
		"nil claims":   nilVerifier{},
		"empty secret": auth.NewVerifier(""),
	} {
		r := guardedRouter(v)
		w := get(r, "/admin", token(t, testSecret, auth.RoleAdmin, time.Hour))
		require.Equal(t, http.StatusFound, w.Code, name)
		require.Equal(t, "/login", w.Header().Get("Location"), name)
	}
}
