// Package identity turns a session token into the caller's user record and a
// set of API clients bound to that user's OAuth credentials, refreshing an
// expired access token on the way. It is the only place refresh happens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/auth"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/models"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/repositories/users"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/reqctx"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// expirySkew treats access tokens this close to expiry as already expired.
const expirySkew = 30 * time.Second

type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

type CredentialStore interface {
	Load(ctx context.Context, userID string) (*models.Credential, error)
	Store(ctx context.Context, userID string, cred *models.Credential) error
}

// Identity is a fully resolved caller.
type Identity struct {
	User    *models.User
	Handles *reqctx.Handles
}

type Resolver struct {
	tokens         TokenValidator
	vault          CredentialStore
	users          users.Repository
	clients        ClientFactory
	folderID       string
	refreshTimeout time.Duration
	httpClient     *http.Client
	now            func() time.Time
	logger         logging.Logger
	group          singleflight.Group
}

type Option func(*Resolver)

func WithFolderID(id string) Option { return func(r *Resolver) { r.folderID = id } }

func WithRefreshTimeout(d time.Duration) Option { return func(r *Resolver) { r.refreshTimeout = d } }

func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

// WithHTTPClient sets the client used to reach token endpoints.
func WithHTTPClient(c *http.Client) Option { return func(r *Resolver) { r.httpClient = c } }

func NewResolver(tokens TokenValidator, vault CredentialStore, userRepo users.Repository,
	clients ClientFactory, logger logging.Logger, opts ...Option) *Resolver {

	r := &Resolver{
		tokens:         tokens,
		vault:          vault,
		users:          userRepo,
		clients:        clients,
		refreshTimeout: 15 * time.Second,
		now:            time.Now,
		logger:         logger.With("module", "identity"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve validates token and builds the caller's handles. Errors carry one
// of common.ErrTokenExpired, common.ErrTokenInvalid or
// common.ErrCredentialsNotFound; anything else is an infrastructure failure.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	claims, err := r.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", common.ErrTokenInvalid)
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: malformed user_id", common.ErrTokenInvalid)
	}

	user, err := r.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: unknown user", common.ErrCredentialsNotFound)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	cred, err := r.vault.Load(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if r.expired(cred) {
		if cred.RefreshToken == "" {
			return nil, fmt.Errorf("%w: access token expired and no refresh token on file", common.ErrCredentialsNotFound)
		}
		cred, err = r.refresh(ctx, user.ID, cred)
		if err != nil {
			return nil, err
		}
	}

	handles, err := r.clients.NewHandles(ctx, oauth2.StaticTokenSource(toOAuth2Token(cred)))
	if err != nil {
		return nil, fmt.Errorf("build clients: %w", err)
	}
	handles.FolderID = r.folderID
	handles.UserID = user.ID
	handles.Email = user.Email

	return &Identity{User: user, Handles: handles}, nil
}

func (r *Resolver) expired(cred *models.Credential) bool {
	if cred.Expiry.IsZero() {
		return false
	}
	return !r.now().Add(expirySkew).Before(cred.Expiry)
}

// refresh exchanges the refresh token for a new access token and writes the
// result back through the vault. Concurrent refreshes for one user share a
// single exchange; no lock is held while the network call is in flight and
// each caller stops waiting when its own context ends.
func (r *Resolver) refresh(ctx context.Context, userID string, cred *models.Credential) (*models.Credential, error) {
	ch := r.group.DoChan(userID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.refreshTimeout)
		defer cancel()
		return r.exchange(rctx, userID, cred)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Credential), nil
	}
}

func (r *Resolver) exchange(ctx context.Context, userID string, cred *models.Credential) (*models.Credential, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	conf := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cred.TokenEndpoint, AuthStyle: oauth2.AuthStyleInParams},
		Scopes:       cred.Scopes,
	}

	stale := toOAuth2Token(cred)
	stale.AccessToken = ""

	tok, err := conf.TokenSource(ctx, stale).Token()
	if err != nil {
		r.logger.Warn(ctx, "token refresh failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrCredentialsNotFound, common.ErrRefreshFailed)
	}

	next := *cred
	next.AccessToken = tok.AccessToken
	next.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}

	if err := r.vault.Store(ctx, userID, &next); err != nil {
		// The new token is still good for this request; the next one will
		// simply refresh again.
		r.logger.Error(ctx, "persist refreshed token failed", "user_id", userID, "error", err)
	} else {
		r.logger.Info(ctx, "access token refreshed", "user_id", userID, "expiry", next.Expiry)
	}

	return &next, nil
}

func toOAuth2Token(cred *models.Credential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	}
}
