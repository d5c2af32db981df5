// Package vault is the only code that turns credential records into
// plaintext and back. Access and refresh tokens are sealed independently,
// each bound to its owner and column so ciphertexts cannot be moved between
// rows or fields.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/models"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/repositories/credentials"
)

const (
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
)

// Sealer is implemented by *cryptox.Cipher.
type Sealer interface {
	Seal(plaintext string, aad []byte) string
	Open(message string, aad []byte) (string, error)
}

type Vault struct {
	sealer Sealer
	repo   credentials.Repository
	logger logging.Logger
}

// New builds a Vault. A nil sealer means no key material was configured,
// which is reported as common.ErrEncryptionUnavailable.
func New(sealer Sealer, repo credentials.Repository, logger logging.Logger) (*Vault, error) {
	if sealer == nil {
		return nil, common.ErrEncryptionUnavailable
	}
	return &Vault{sealer: sealer, repo: repo, logger: logger.With("module", "vault")}, nil
}

// Store encrypts cred and upserts it as userID's single record. An empty
// RefreshToken keeps the refresh token already on file.
func (v *Vault) Store(ctx context.Context, userID string, cred *models.Credential) error {
	return v.StoreWith(ctx, v.repo, userID, cred)
}

// StoreWith is Store against an explicit repository, typically one bound to
// an open transaction.
func (v *Vault) StoreWith(ctx context.Context, repo credentials.Repository, userID string, cred *models.Credential) error {
	if cred.AccessToken == "" {
		return errors.New("vault: empty access token")
	}

	scopes, err := json.Marshal(nonNil(cred.Scopes))
	if err != nil {
		return fmt.Errorf("vault: encode scopes: %w", err)
	}

	rec := &models.CredentialRecord{
		UserID:               userID,
		EncryptedAccessToken: v.sealer.Seal(cred.AccessToken, aad(userID, fieldAccessToken)),
		TokenEndpoint:        cred.TokenEndpoint,
		ClientID:             cred.ClientID,
		ClientSecret:         cred.ClientSecret,
		ScopesJSON:           string(scopes),
	}
	if cred.RefreshToken != "" {
		sealed := v.sealer.Seal(cred.RefreshToken, aad(userID, fieldRefreshToken))
		rec.EncryptedRefreshToken = &sealed
	}
	if !cred.Expiry.IsZero() {
		expiry := cred.Expiry.UTC()
		rec.Expiry = &expiry
	}

	if err := repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("vault: store: %w", err)
	}

	v.logger.Debug(ctx, "credential stored", "user_id", userID, "credential", *cred)
	return nil
}

// Load decrypts userID's credential. A missing record, or one that can no
// longer be decrypted with the current key, yields
// common.ErrCredentialsNotFound.
func (v *Vault) Load(ctx context.Context, userID string) (*models.Credential, error) {
	rec, err := v.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("vault: load: %w", err)
	}

	access, err := v.sealer.Open(rec.EncryptedAccessToken, aad(userID, fieldAccessToken))
	if err != nil {
		v.logger.Error(ctx, "access token decrypt failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: undecryptable access token", common.ErrCredentialsNotFound)
	}

	cred := &models.Credential{
		AccessToken:   access,
		TokenEndpoint: rec.TokenEndpoint,
		ClientID:      rec.ClientID,
		ClientSecret:  rec.ClientSecret,
	}

	if rec.EncryptedRefreshToken != nil {
		refresh, err := v.sealer.Open(*rec.EncryptedRefreshToken, aad(userID, fieldRefreshToken))
		if err != nil {
			v.logger.Error(ctx, "refresh token decrypt failed", "user_id", userID, "error", err)
			return nil, fmt.Errorf("%w: undecryptable refresh token", common.ErrCredentialsNotFound)
		}
		cred.RefreshToken = refresh
	}

	if rec.ScopesJSON != "" {
		if err := json.Unmarshal([]byte(rec.ScopesJSON), &cred.Scopes); err != nil {
			return nil, fmt.Errorf("vault: decode scopes: %w", err)
		}
	}
	if len(cred.Scopes) == 0 {
		cred.Scopes = nil
	}

	if rec.Expiry != nil {
		cred.Expiry = rec.Expiry.UTC()
	}

	return cred, nil
}

func aad(userID, field string) []byte {
	return []byte(userID + "|" + field)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
