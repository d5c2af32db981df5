package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/gateway"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/services"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 2 * time.Second

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// HealthHandler reports whether the database is reachable. It needs no token.
func (s *Server) HealthHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error(ctx, "health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy", "database": "connected"})
}

func (s *Server) ToolsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"tools": s.registry.Tools()})
}

// LoginHandler redirects the browser to the Google consent screen.
func (s *Server) LoginHandler(c echo.Context) error {
	ctx := c.Request().Context()

	target, err := s.login.Begin(ctx)
	if err != nil {
		if errors.Is(err, services.ErrLoginDisabled) {
			return c.JSON(http.StatusServiceUnavailable, errorBody("google login not configured"))
		}
		s.logger.Error(ctx, "login start failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("login failed"))
	}
	return c.Redirect(http.StatusFound, target)
}

// CallbackHandler completes the sign-in and sends the browser to the
// dashboard with its new session token.
func (s *Server) CallbackHandler(c echo.Context) error {
	ctx := c.Request().Context()

	if reason := c.QueryParam("error"); reason != "" {
		s.logger.Info(ctx, "login declined", "reason", reason)
		return c.JSON(http.StatusBadRequest, errorBody("login cancelled"))
	}

	res, err := s.login.Complete(ctx, c.QueryParam("code"), c.QueryParam("state"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidState):
			return c.JSON(http.StatusBadRequest, errorBody("invalid or expired login attempt"))
		case errors.Is(err, services.ErrLoginDisabled):
			return c.JSON(http.StatusServiceUnavailable, errorBody("google login not configured"))
		case errors.Is(err, common.ErrEmailConflict):
			s.logger.Warn(ctx, "login email already linked to another account")
			return c.JSON(http.StatusConflict, errorBody("this email is already linked to another Google account"))
		}
		s.logger.Error(ctx, "login completion failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("login failed"))
	}

	return c.Redirect(http.StatusFound, "/dashboard?token="+url.QueryEscape(res.SessionToken))
}

// DashboardHandler shows a signed-in user how to connect a client.
func (s *Server) DashboardHandler(c echo.Context) error {
	token := c.QueryParam("token")

	user, err := s.login.Dashboard(c.Request().Context(), token)
	if err != nil {
		s.logger.Info(c.Request().Context(), "dashboard rejected", "error", err)
		gateway.WriteUnauthorized(c.Response())
		return nil
	}

	return c.JSON(http.StatusOK, map[string]string{
		"email":   user.Email,
		"mcp_url": s.baseURL + "/mcp",
		"token":   token,
	})
}

type callRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CallHandler runs one tool. It sits behind the gateway, so the request
// context already carries the caller's handles.
func (s *Server) CallHandler(c echo.Context) error {
	ctx := c.Request().Context()
	log := logging.FromContext(ctx, s.logger)

	var req callRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid JSON body"))
	}
	if req.Tool == "" {
		return c.JSON(http.StatusBadRequest, errorBody("tool is required"))
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": req.Tool, "arguments": req.Arguments},
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid arguments"))
	}

	raw, err := json.Marshal(s.registry.MCP().HandleMessage(ctx, msg))
	if err != nil {
		log.Error(ctx, "encode tool reply", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}

	var reply rpcReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		log.Error(ctx, "decode tool reply", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}
	if reply.Error != nil {
		return c.JSON(http.StatusBadRequest, errorBody(reply.Error.Message))
	}

	return c.JSON(http.StatusOK, map[string]json.RawMessage{"result": reply.Result})
}
