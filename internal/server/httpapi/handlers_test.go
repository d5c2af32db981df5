package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gsheetsmcp/internal/cryptox"
	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/auth"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/gateway"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/identity"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/models"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/reqctx"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/services"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/tools"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type stubResolver struct {
	calls   int
	handles *reqctx.Handles
}

func (r *stubResolver) Resolve(_ context.Context, token string) (*identity.Identity, error) {
	r.calls++
	return &identity.Identity{User: &models.User{ID: "user-1"}, Handles: r.handles}, nil
}

type fixture struct {
	server   *Server
	resolver *stubResolver
	rm       *repomanager.MemoryRepositoryManager
	tokens   *auth.TokenService
}

// sheetsStub answers spreadsheets.get with a single "Data" sheet.
func sheetsStub(t *testing.T) *reqctx.Handles {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"sheets":[{"properties":{"sheetId":0,"title":"Data","index":0}}]}`)
	}))
	t.Cleanup(srv.Close)

	h, err := identity.GoogleClientFactory{Options: []option.ClientOption{option.WithEndpoint(srv.URL + "/")}}.
		NewHandles(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}))
	require.NoError(t, err)
	return h
}

func newFixture(t *testing.T, pingErr error, clientID string) *fixture {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rm := repomanager.NewMemoryRepositoryManager()
	cipher, err := cryptox.NewCipher(bytes.Repeat([]byte{2}, cryptox.MinKeySize))
	require.NoError(t, err)
	v, err := vault.New(cipher, rm.CredentialsRepo, logging.Nop{})
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("test-secret")
	require.NoError(t, err)

	states := services.NewMemoryStateStore()
	t.Cleanup(func() { _ = states.Close() })

	login := services.NewLoginService(db, rm, v, tokens, states, services.LoginConfig{
		ClientID:     clientID,
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8000/auth/callback",
	}, logging.Nop{})

	resolver := &stubResolver{handles: sheetsStub(t)}
	gw := gateway.New(resolver, reqctx.NewManager(logging.Nop{}), "", logging.Nop{})

	s := NewHTTPServer(Options{Address: "127.0.0.1:0", BaseURL: "http://localhost:8000"},
		fakePinger{err: pingErr}, login, tools.New(logging.Nop{}), gw, logging.Nop{})

	return &fixture{server: s, resolver: resolver, rm: rm, tokens: tokens}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, "cid")
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	f = newFixture(t, errors.New("down"), "cid")
	rec = f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestTools(t *testing.T) {
	f := newFixture(t, nil, "cid")
	rec := f.do(httptest.NewRequest(http.MethodGet, "/tools", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Tools, 18)
	assert.Equal(t, "get_sheet_data", body.Tools[0].Name)
}

func TestCall_RequiresToken(t *testing.T) {
	f := newFixture(t, nil, "cid")

	req := httptest.NewRequest(http.MethodPost, "/mcp/v1/call", strings.NewReader(`{"tool":"list_sheets"}`))
	rec := f.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
	assert.Zero(t, f.resolver.calls)
}

func TestCall_DispatchesTool(t *testing.T) {
	f := newFixture(t, nil, "cid")

	req := httptest.NewRequest(http.MethodPost, "/mcp/v1/call",
		strings.NewReader(`{"tool":"list_sheets","arguments":{"spreadsheet_id":"sid"}}`))
	req.Header.Set("Authorization", "Bearer session")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.resolver.calls)

	var body struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Result.Content)
	assert.False(t, body.Result.IsError)
	assert.Contains(t, body.Result.Content[0].Text, `"title": "Data"`)
}

func TestCall_MissingTool(t *testing.T) {
	f := newFixture(t, nil, "cid")

	req := httptest.NewRequest(http.MethodPost, "/mcp/v1/call", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer session")
	rec := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tool is required")
}

func TestStreamableMCP_RequiresToken(t *testing.T) {
	f := newFixture(t, nil, "cid")

	req := httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	rec := f.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.resolver.calls)
}

func TestLogin_Redirects(t *testing.T) {
	f := newFixture(t, nil, "cid")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", loc.Host)
	assert.Equal(t, "offline", loc.Query().Get("access_type"))
	assert.NotEmpty(t, loc.Query().Get("state"))
}

func TestLogin_Disabled(t *testing.T) {
	f := newFixture(t, nil, "")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCallback_InvalidState(t *testing.T) {
	f := newFixture(t, nil, "cid")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=forged", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "login cancelled")
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, nil, "cid")

	user, err := f.rm.UsersRepo.Upsert(context.Background(), &models.User{
		Email: "alice@example.com", ExternalSubject: "sub-1", Name: "Alice",
	})
	require.NoError(t, err)
	token, err := f.tokens.Issue(user.ID, user.Email)
	require.NoError(t, err)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/dashboard?token="+url.QueryEscape(token), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, "http://localhost:8000/mcp", body["mcp_url"])
	assert.Equal(t, token, body["token"])

	rec = f.do(httptest.NewRequest(http.MethodGet, "/dashboard?token=garbage", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
}
