// Package httpapi is the broker's HTTP surface: health and discovery
// endpoints, the Google sign-in pages, and the gateway-protected tool
// endpoints.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gsheetsmcp/internal/dbx"
	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/gateway"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/services"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/tools"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

type Server struct {
	address         string
	baseURL         string
	shutdownTimeout time.Duration

	echo     *echo.Echo
	db       dbx.Pinger
	login    *services.LoginService
	registry *tools.Registry
	gateway  *gateway.Gateway
	logger   logging.Logger
}

type Options struct {
	Address         string
	BaseURL         string
	ShutdownTimeout time.Duration
}

func NewHTTPServer(opts Options, db dbx.Pinger, login *services.LoginService, registry *tools.Registry,
	gw *gateway.Gateway, logger logging.Logger) *Server {

	s := &Server{
		address:         opts.Address,
		baseURL:         opts.BaseURL,
		shutdownTimeout: opts.ShutdownTimeout,
		db:              db,
		login:           login,
		registry:        registry,
		gateway:         gw,
		logger:          logger.With("module", "http_server"),
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURIPath:  true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug(c.Request().Context(), "http request",
				"method", v.Method, "path", v.URIPath, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s.echo = e
	s.registerRoutes(e)
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/health", s.HealthHandler)
	e.GET("/tools", s.ToolsHandler)

	e.GET("/auth/google", s.LoginHandler)
	e.GET("/auth/callback", s.CallbackHandler)
	e.GET("/dashboard", s.DashboardHandler)

	protected := echo.WrapMiddleware(s.gateway.Middleware)

	e.POST("/mcp/v1/call", s.CallHandler, protected)

	streamable := mcpserver.NewStreamableHTTPServer(s.registry.MCP(), mcpserver.WithStateLess(true))
	e.Any("/mcp", echo.WrapHandler(streamable), protected)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}
