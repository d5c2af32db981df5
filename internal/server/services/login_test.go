package services

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/dmitrijs2005/gsheetsmcp/internal/cryptox"
	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/auth"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/models"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// fakeGoogle serves the token and userinfo endpoints. The n-th code
// exchange returns access token "ga-n"; only the first carries a refresh
// token, like Google does for repeat consents without prompt=consent.
type fakeGoogle struct {
	exchanges atomic.Int32
	srv       *httptest.Server
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	g := &fakeGoogle{}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))

		n := g.exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			_, _ = w.Write([]byte(`{"access_token":"ga-1","refresh_token":"gr-1","token_type":"Bearer","expires_in":3600}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"ga-2","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"google-sub-1","email":"alice@example.com","name":"Alice"}`))
	})

	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

type loginFixture struct {
	svc    *LoginService
	rm     *repomanager.MemoryRepositoryManager
	vault  *vault.Vault
	tokens *auth.TokenService
	mock   sqlmock.Sqlmock
	google *fakeGoogle
}

func newLoginFixture(t *testing.T, clientID string) *loginFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rm := repomanager.NewMemoryRepositoryManager()

	cipher, err := cryptox.NewCipher(bytes.Repeat([]byte{1}, cryptox.MinKeySize))
	require.NoError(t, err)
	v, err := vault.New(cipher, rm.CredentialsRepo, logging.Nop{})
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("test-secret")
	require.NoError(t, err)

	states := NewMemoryStateStore()
	t.Cleanup(func() { _ = states.Close() })

	g := newFakeGoogle(t)
	svc := NewLoginService(db, rm, v, tokens, states, LoginConfig{
		ClientID:     clientID,
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8000/auth/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: g.srv.URL + "/auth", TokenURL: g.srv.URL + "/token"},
		UserInfo:     GoogleUserInfo{Options: []option.ClientOption{option.WithEndpoint(g.srv.URL + "/")}},
	}, logging.Nop{})

	return &loginFixture{svc: svc, rm: rm, vault: v, tokens: tokens, mock: mock, google: g}
}

func (f *loginFixture) begin(t *testing.T) string {
	t.Helper()

	raw, err := f.svc.Begin(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/spreadsheets")
	require.NotEmpty(t, q.Get("state"))
	return q.Get("state")
}

func TestLogin_FirstAndReturningUser(t *testing.T) {
	f := newLoginFixture(t, "client-id")
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	first, err := f.svc.Complete(ctx, "code-1", f.begin(t))
	require.NoError(t, err)
	assert.Equal(t, 1, f.rm.UsersRepo.Len())
	assert.Equal(t, 1, f.rm.CredentialsRepo.Len())

	claims, err := f.tokens.Validate(first.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)

	cred, err := f.vault.Load(ctx, first.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ga-1", cred.AccessToken)
	assert.Equal(t, "gr-1", cred.RefreshToken)
	assert.Equal(t, f.google.srv.URL+"/token", cred.TokenEndpoint)
	assert.Equal(t, "client-id", cred.ClientID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cred.Expiry, time.Minute)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	second, err := f.svc.Complete(ctx, "code-2", f.begin(t))
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, 1, f.rm.UsersRepo.Len())
	assert.Equal(t, 1, f.rm.CredentialsRepo.Len())

	cred, err = f.vault.Load(ctx, first.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ga-2", cred.AccessToken)
	assert.Equal(t, "gr-1", cred.RefreshToken)

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLogin_EmailOwnedByAnotherAccount(t *testing.T) {
	f := newLoginFixture(t, "client-id")
	ctx := context.Background()

	_, err := f.rm.UsersRepo.Upsert(ctx, &models.User{Email: "alice@example.com", ExternalSubject: "older-google-sub"})
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err = f.svc.Complete(ctx, "code-1", f.begin(t))
	require.ErrorIs(t, err, common.ErrEmailConflict)
	assert.Equal(t, 1, f.rm.UsersRepo.Len())
	assert.Zero(t, f.rm.CredentialsRepo.Len())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLogin_StateIsSingleUse(t *testing.T) {
	f := newLoginFixture(t, "client-id")
	state := f.begin(t)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := f.svc.Complete(context.Background(), "code-1", state)
	require.NoError(t, err)

	_, err = f.svc.Complete(context.Background(), "code-1", state)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, int32(1), f.google.exchanges.Load())
}

func TestLogin_UnknownStateNeverExchanges(t *testing.T) {
	f := newLoginFixture(t, "client-id")

	_, err := f.svc.Complete(context.Background(), "code", "forged")
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.Complete(context.Background(), "", "")
	require.ErrorIs(t, err, ErrInvalidState)

	assert.Zero(t, f.google.exchanges.Load())
	assert.Zero(t, f.rm.UsersRepo.Len())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLogin_Disabled(t *testing.T) {
	f := newLoginFixture(t, "")

	_, err := f.svc.Begin(context.Background())
	require.ErrorIs(t, err, ErrLoginDisabled)

	_, err = f.svc.Complete(context.Background(), "code", "state")
	require.ErrorIs(t, err, ErrLoginDisabled)
}

func TestDashboard(t *testing.T) {
	f := newLoginFixture(t, "client-id")

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	res, err := f.svc.Complete(context.Background(), "code-1", f.begin(t))
	require.NoError(t, err)

	user, err := f.svc.Dashboard(context.Background(), res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	_, err = f.svc.Dashboard(context.Background(), "garbage")
	require.ErrorIs(t, err, common.ErrTokenInvalid)

	orphan, err := f.tokens.Issue("00000000-0000-0000-0000-000000000000", "ghost@example.com")
	require.NoError(t, err)
	_, err = f.svc.Dashboard(context.Background(), orphan)
	require.ErrorIs(t, err, common.ErrTokenInvalid)
}
