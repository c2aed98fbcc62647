package webserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chataru/craftsite/config"
)

// WebServer owns the echo instance and the /api route group.
type WebServer struct {
	root   *echo.Echo
	api    *echo.Group
	config *config.AppConfig
}

func NewWebServer(cfg *config.AppConfig) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.System.Debug
	e.JSONSerializer = &JSONSerializer{}
	e.Validator = NewValidator()
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			zap.L().Error("panic recovered",
				zap.String("path", c.Request().URL.Path),
				zap.Error(err),
				zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(requestLogger())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", maxUploadMB(cfg))))
	e.Use(session.Middleware(sessions.NewCookieStore(cookieKey(cfg))))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
	})

	e.Static(cfg.Upload.URLPrefix, cfg.Upload.Dir)
	e.Use(middleware.StaticWithConfig(middleware.StaticConfig{
		Root:  cfg.Web.PublicDir,
		Index: "index.html",
		HTML5: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return strings.HasPrefix(p, "/api/") || p == "/api" || p == "/health"
		},
	}))

	return &WebServer{
		root:   e,
		api:    e.Group("/api"),
		config: cfg,
	}
}

// Root exposes the echo instance, mostly for tests.
func (s *WebServer) Root() *echo.Echo {
	return s.root
}

func (s *WebServer) ApiGET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	s.api.GET(path, h, m...)
}

func (s *WebServer) ApiPOST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	s.api.POST(path, h, m...)
}

func (s *WebServer) ApiPUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	s.api.PUT(path, h, m...)
}

func (s *WebServer) ApiDELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	s.api.DELETE(path, h, m...)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *WebServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Web.Host, s.config.Web.Port)
	s.root.Server.ReadHeaderTimeout = 10 * time.Second
	s.root.Server.IdleTimeout = 60 * time.Second

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("web server listening", zap.String("addr", addr))
		if err := s.root.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "web server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	zap.L().Info("web server shutting down")
	return s.root.Shutdown(shutdownCtx)
}

func maxUploadMB(cfg *config.AppConfig) int {
	if cfg.Web.MaxUploadMB <= 0 {
		return 10
	}
	return cfg.Web.MaxUploadMB
}

// cookieKey signs the admin cookie. Without a configured secret a random
// key is used, so cookies do not survive a restart.
func cookieKey(cfg *config.AppConfig) []byte {
	if cfg.Web.CookieSecret != "" {
		return []byte(cfg.Web.CookieSecret)
	}
	zap.L().Warn("web.cookie_secret not set, using a per-process random key")
	return securecookie.GenerateRandomKey(32)
}
