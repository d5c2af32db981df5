package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gsheetsmcp/internal/flagx"
	"github.com/dmitrijs2005/gsheetsmcp/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Only fields
// present in the file override the current values.
type JsonConfig struct {
	HTTPAddr           *string         `json:"http_addr"`
	BaseURL            *string         `json:"base_url"`
	DatabaseDSN        *string         `json:"database_dsn"`
	EncryptionKey      *string         `json:"encryption_key"`
	SecretKey          *string         `json:"secret_key"`
	StaticToken        *string         `json:"static_token"`
	GoogleClientID     *string         `json:"google_client_id"`
	GoogleClientSecret *string         `json:"google_client_secret"`
	DriveFolderID      *string         `json:"drive_folder_id"`
	LogLevel           *string         `json:"log_level"`
	StateStore         *string         `json:"state_store"`
	RedisURL           *string         `json:"redis_url"`
	LoginStateTTL      *timex.Duration `json:"login_state_ttl"`
	RefreshTimeout     *timex.Duration `json:"refresh_timeout"`
	ShutdownTimeout    *timex.Duration `json:"shutdown_timeout"`
}

// parseJson overlays the file named by -c/-config, if any.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.BaseURL, c.BaseURL)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.EncryptionKey, c.EncryptionKey)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.StaticToken, c.StaticToken)
	setString(&config.GoogleClientID, c.GoogleClientID)
	setString(&config.GoogleClientSecret, c.GoogleClientSecret)
	setString(&config.DriveFolderID, c.DriveFolderID)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.StateStore, c.StateStore)
	setString(&config.RedisURL, c.RedisURL)

	if c.LoginStateTTL != nil {
		config.LoginStateTTL = c.LoginStateTTL.Duration
	}
	if c.RefreshTimeout != nil {
		config.RefreshTimeout = c.RefreshTimeout.Duration
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
