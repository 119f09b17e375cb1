// Package server is the College OS portal: it serves the web UI and guards
// every page request with the session route guard.
package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/collegeos/portal/internal/auth"
	"github.com/collegeos/portal/internal/config"
	"github.com/collegeos/portal/internal/routes"
)

// Identity headers forwarded to the upstream UI for guarded pages
const (
	HeaderUserID = "X-Portal-User-Id"
	HeaderRole   = "X-Portal-User-Role"
)

// Server represents the portal HTTP server
type Server struct {
	router   *gin.Engine
	config   *config.Config
	logger   zerolog.Logger
	routes   *routes.Table
	verifier TokenVerifier
	version  string
}

// New creates a new server instance
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	if err := cfg.ValidatePortal(); err != nil {
		return nil, err
	}

	table := routes.Default()
	if cfg.Portal.RoutesFile != "" {
		loaded, err := routes.Load(cfg.Portal.RoutesFile)
		if err != nil {
			return nil, err
		}
		table = loaded
		zlog.Info().Str("file", cfg.Portal.RoutesFile).Msg("Loaded route table")
	}

	ui, err := newUIHandler(cfg.Portal, zlog)
	if err != nil {
		return nil, err
	}

	server := &Server{
		config:   cfg,
		logger:   zlog,
		routes:   table,
		verifier: auth.NewVerifier(cfg.Portal.JWTSecret),
		version:  version,
	}
	server.setupRouter(ui)

	return server, nil
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter(ui gin.HandlerFunc) {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Portal.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.router.GET("/health", s.healthCheck)

	// Everything else is a UI page; the guard decides per path.
	s.router.Use(RouteGuard(s.routes, s.verifier, s.logger))
	s.router.NoRoute(ui)
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		event := s.logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "collegeos-portal",
		"version":   s.version,
	})
}

// newUIHandler proxies pages to the upstream frontend when one is configured
// and otherwise serves the built UI from disk.
func newUIHandler(cfg config.PortalConfig, log zerolog.Logger) (gin.HandlerFunc, error) {
	if cfg.UpstreamURL != "" {
		target, err := url.Parse(cfg.UpstreamURL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid PORTAL_UPSTREAM_URL %q", cfg.UpstreamURL)
		}
		return proxyHandler(target, log), nil
	}
	return staticHandler(cfg.StaticDir), nil
}

func proxyHandler(target *url.URL, log zerolog.Logger) gin.HandlerFunc {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Upstream UI unavailable")
		w.WriteHeader(http.StatusBadGateway)
	}

	return func(c *gin.Context) {
		// Never trust identity headers from the browser
		c.Request.Header.Del(HeaderUserID)
		c.Request.Header.Del(HeaderRole)
		if sessionData, ok := GetSessionData(c); ok {
			c.Request.Header.Set(HeaderUserID, sessionData.UserID)
			c.Request.Header.Set(HeaderRole, string(sessionData.Role))
		}
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}

// staticHandler serves files from dir, falling back to index.html so
// client-side routes resolve.
func staticHandler(dir string) gin.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusMethodNotAllowed)
			return
		}

		name := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+c.Request.URL.Path)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() && !strings.HasSuffix(c.Request.URL.Path, "/index.html") {
			files.ServeHTTP(c.Writer, c.Request)
			return
		}
		c.File(index)
	}
}

// Start starts the HTTP server and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	port := ":" + strings.TrimPrefix(s.config.Portal.Port, ":")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              port,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("port", port).Msg("Starting portal server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("portal server failed: %w", err)
	case <-sigChan:
	}
	s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}
