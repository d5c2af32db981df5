package config

// envBindings maps environment variables onto Config fields. Names match
// what deployments of this server already export.
func envBindings(c *Config) map[string]*string {
	return map[string]*string{
		"BASE_URL":             &c.BaseURL,
		"DATABASE_URL":         &c.DatabaseDSN,
		"ENCRYPTION_KEY":       &c.EncryptionKey,
		"JWT_SECRET_KEY":       &c.SecretKey,
		"MCP_AUTH_TOKEN":       &c.StaticToken,
		"GOOGLE_CLIENT_ID":     &c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET": &c.GoogleClientSecret,
		"DRIVE_FOLDER_ID":      &c.DriveFolderID,
		"LOG_LEVEL":            &c.LogLevel,
		"STATE_STORE":          &c.StateStore,
		"REDIS_URL":            &c.RedisURL,
	}
}

func parseEnv(c *Config, lookup func(string) (string, bool)) {
	for name, dst := range envBindings(c) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		c.HTTPAddr = ":" + port
	}
}
