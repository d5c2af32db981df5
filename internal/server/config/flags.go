package config

import (
	"flag"

	"github.com/dmitrijs2005/gsheetsmcp/internal/flagx"
)

// parseFlags overlays command-line flags.
//
//	-a string   HTTP bind address (e.g. ":8000")
//	-b string   public base URL used for OAuth redirects
//	-d string   PostgreSQL DSN
//	-k string   credential encryption key (base64, >= 32 bytes)
//	-s string   session token HMAC secret
//	-t string   static fallback session token
//	-f string   Drive folder new spreadsheets are created in
//	-l string   log level
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-b", "-d", "-k", "-s", "-t", "-f", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.BaseURL, "b", config.BaseURL, "public base URL")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.EncryptionKey, "k", config.EncryptionKey, "credential encryption key")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "session token secret key")
	fs.StringVar(&config.StaticToken, "t", config.StaticToken, "static fallback session token")
	fs.StringVar(&config.DriveFolderID, "f", config.DriveFolderID, "drive folder id")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	return fs.Parse(args)
}
