// Package credentials persists encrypted OAuth credential records. It never
// sees plaintext; encryption belongs to the vault.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/gsheetsmcp/internal/server/models"
)

type Repository interface {
	// Upsert writes the single record for rec.UserID. A nil
	// EncryptedRefreshToken keeps whatever refresh token is already stored.
	Upsert(ctx context.Context, rec *models.CredentialRecord) error
	// GetByUserID returns common.ErrorNotFound when the user has no record.
	GetByUserID(ctx context.Context, userID string) (*models.CredentialRecord, error)
}
