package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/dmitrijs2005/gsheetsmcp/internal/dbx"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert is last-write-wins: concurrent writers for the same user each
// replace the row in full.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.CredentialRecord) error {
	query :=
		`INSERT INTO credential_records (user_id, encrypted_access_token, encrypted_refresh_token,
		     token_endpoint, client_id, client_secret, scopes_json, expiry)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE
		 SET encrypted_access_token = EXCLUDED.encrypted_access_token,
		     encrypted_refresh_token = COALESCE(EXCLUDED.encrypted_refresh_token, credential_records.encrypted_refresh_token),
		     token_endpoint = EXCLUDED.token_endpoint,
		     client_id = EXCLUDED.client_id,
		     client_secret = EXCLUDED.client_secret,
		     scopes_json = EXCLUDED.scopes_json,
		     expiry = EXCLUDED.expiry,
		     updated_at = now()
		 `

	_, err := r.db.ExecContext(ctx, query,
		rec.UserID, rec.EncryptedAccessToken, nullString(rec.EncryptedRefreshToken),
		rec.TokenEndpoint, rec.ClientID, rec.ClientSecret, rec.ScopesJSON, nullTime(rec))

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*models.CredentialRecord, error) {
	query :=
		`SELECT id, user_id, encrypted_access_token, encrypted_refresh_token, token_endpoint,
		     client_id, client_secret, scopes_json, expiry, created_at, updated_at
		 FROM credential_records
		 WHERE user_id = $1
		 `

	var (
		rec     models.CredentialRecord
		refresh sql.NullString
		expiry  sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.ID, &rec.UserID, &rec.EncryptedAccessToken, &refresh, &rec.TokenEndpoint,
		&rec.ClientID, &rec.ClientSecret, &rec.ScopesJSON, &expiry, &rec.CreatedAt, &rec.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if refresh.Valid {
		rec.EncryptedRefreshToken = &refresh.String
	}
	if expiry.Valid {
		rec.Expiry = &expiry.Time
	}

	return &rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(rec *models.CredentialRecord) sql.NullTime {
	if rec.Expiry == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *rec.Expiry, Valid: true}
}
