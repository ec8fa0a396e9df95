package webserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/talkincode/chatgate/config"
)

// WebServer wraps the echo instance. Public routes (webhook, token) hang off
// the root; everything under /api requires a JWT.
type WebServer struct {
	root      *echo.Echo
	api       *echo.Group
	appConfig *config.AppConfig
}

var server *WebServer

// Init builds the process-wide web server.
func Init(appConfig *config.AppConfig) *WebServer {
	server = NewWebServer(appConfig)
	return server
}

func NewWebServer(appConfig *config.AppConfig) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	api := e.Group("/api")
	api.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(appConfig.Web.Secret),
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/token"
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token")
		},
	}))

	return &WebServer{root: e, api: api, appConfig: appConfig}
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			zap.L().Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("remote", c.RealIP()))
			return err
		}
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *WebServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.appConfig.Web.Host, s.appConfig.Web.Port)
	zap.L().Info("webserver: listening", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.root.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.root.Shutdown(sctx)
	}
}

// Echo exposes the underlying instance for tests.
func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

// Secret returns the JWT signing secret.
func Secret() string {
	return server.appConfig.Web.Secret
}

// ApiGET registers an authenticated GET route under /api.
func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

// ApiPOST registers an authenticated POST route under /api.
func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

// ApiPUT registers an authenticated PUT route under /api.
func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

// ApiDELETE registers an authenticated DELETE route under /api.
func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}

// PubGET registers an unauthenticated GET route.
func PubGET(path string, h echo.HandlerFunc) {
	server.root.GET(path, h)
}

// PubPOST registers an unauthenticated POST route.
func PubPOST(path string, h echo.HandlerFunc) {
	server.root.POST(path, h)
}
