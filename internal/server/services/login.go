// Package services contains server-side business logic. This file
// implements LoginService, the Google sign-in flow that creates users,
// stores their encrypted Google credentials and issues session tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/dmitrijs2005/gsheetsmcp/internal/dbx"
	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/auth"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/models"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/vault"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// LoginScopes are requested on every consent screen.
var LoginScopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"openid",
}

var (
	ErrInvalidState  = errors.New("invalid or expired login state")
	ErrLoginDisabled = errors.New("google login not configured")
)

// UserInfo is the identity Google reports for a signed-in account.
type UserInfo struct {
	Subject string
	Email   string
	Name    string
}

// UserInfoFetcher looks up the account a token belongs to.
type UserInfoFetcher interface {
	FetchUserInfo(ctx context.Context, tok *oauth2.Token) (*UserInfo, error)
}

// GoogleUserInfo calls the oauth2/v2 userinfo endpoint.
type GoogleUserInfo struct {
	Options []option.ClientOption
}

func (g GoogleUserInfo) FetchUserInfo(ctx context.Context, tok *oauth2.Token) (*UserInfo, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(tok))}, g.Options...)

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	if info.Id == "" {
		return nil, errors.New("userinfo: empty subject")
	}
	return &UserInfo{Subject: info.Id, Email: info.Email, Name: info.Name}, nil
}

// LoginResult is what a completed sign-in hands back to the browser.
type LoginResult struct {
	User         *models.User
	SessionToken string
}

type LoginService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	vault       *vault.Vault
	tokens      *auth.TokenService
	states      StateStore
	oauth       *oauth2.Config
	userInfo    UserInfoFetcher
	stateTTL    time.Duration
	logger      logging.Logger
}

// LoginConfig carries the OAuth client settings.
type LoginConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	StateTTL     time.Duration

	// Endpoint defaults to google.Endpoint.
	Endpoint oauth2.Endpoint
	// UserInfo defaults to GoogleUserInfo{}.
	UserInfo UserInfoFetcher
}

func NewLoginService(db *sql.DB, m repomanager.RepositoryManager, v *vault.Vault, tokens *auth.TokenService,
	states StateStore, cfg LoginConfig, logger logging.Logger) *LoginService {

	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	userInfo := cfg.UserInfo
	if userInfo == nil {
		userInfo = GoogleUserInfo{}
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &LoginService{
		db:          db,
		repomanager: m,
		vault:       v,
		tokens:      tokens,
		states:      states,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       LoginScopes,
		},
		userInfo: userInfo,
		stateTTL: ttl,
		logger:   logger.With("module", "login"),
	}
}

func (s *LoginService) enabled() bool {
	return s.oauth.ClientID != "" && s.oauth.ClientSecret != ""
}

// Begin stores a fresh state and returns the consent URL to redirect to.
func (s *LoginService) Begin(ctx context.Context) (string, error) {
	if !s.enabled() {
		return "", ErrLoginDisabled
	}

	state := common.MakeRandURLString(32)
	if err := s.states.Save(ctx, state, s.stateTTL); err != nil {
		return "", fmt.Errorf("save state: %w", err)
	}

	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Complete finishes a sign-in: it consumes state, exchanges code, and
// upserts the user together with their credential in one transaction.
func (s *LoginService) Complete(ctx context.Context, code, state string) (*LoginResult, error) {
	if !s.enabled() {
		return nil, ErrLoginDisabled
	}
	if state == "" || code == "" {
		return nil, ErrInvalidState
	}

	ok, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}
	if !ok {
		return nil, ErrInvalidState
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}

	info, err := s.userInfo.FetchUserInfo(ctx, tok)
	if err != nil {
		return nil, err
	}

	cred := &models.Credential{
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		TokenEndpoint: s.oauth.Endpoint.TokenURL,
		ClientID:      s.oauth.ClientID,
		ClientSecret:  s.oauth.ClientSecret,
		Scopes:        s.oauth.Scopes,
		Expiry:        tok.Expiry,
	}

	var user *models.User
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repomanager.Users(tx).Upsert(ctx, &models.User{
			Email:           info.Email,
			ExternalSubject: info.Subject,
			Name:            info.Name,
		})
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return s.vault.StoreWith(ctx, s.repomanager.Credentials(tx), user.ID, cred)
	}); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	s.logger.Info(ctx, "user signed in", "user_id", user.ID, "has_refresh_token", tok.RefreshToken != "")
	return &LoginResult{User: user, SessionToken: token}, nil
}

// Dashboard returns the user a still-valid session token belongs to.
func (s *LoginService) Dashboard(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrTokenInvalid
		}
		return nil, err
	}
	return user, nil
}
