package models

import (
	"log/slog"
	"time"
)

// CredentialRecord is the persisted, encrypted form of a user's OAuth
// credentials. There is at most one record per user.
type CredentialRecord struct {
	ID                    int64
	UserID                string
	EncryptedAccessToken  string
	EncryptedRefreshToken *string
	TokenEndpoint         string
	ClientID              string
	ClientSecret          string
	ScopesJSON            string
	Expiry                *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Credential is a decrypted credential. It only lives in memory for the
// duration of a resolution or a login completion.
type Credential struct {
	AccessToken   string
	RefreshToken  string
	TokenEndpoint string
	ClientID      string
	ClientSecret  string
	Scopes        []string
	Expiry        time.Time
}

const redacted = "[REDACTED]"

// LogValue keeps secrets out of structured logs.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("access_token", redacted),
		slog.Bool("has_refresh_token", c.RefreshToken != ""),
		slog.String("token_endpoint", c.TokenEndpoint),
		slog.String("client_id", c.ClientID),
		slog.Any("scopes", c.Scopes),
		slog.Time("expiry", c.Expiry),
	)
}

func (c Credential) String() string {
	return "Credential{" + redacted + "}"
}
