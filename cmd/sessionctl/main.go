package main

import (
	"os"

	"github.com/dmitrijs2005/gsheetsmcp/internal/sessionctl"
)

func main() {
	if err := sessionctl.NewRootCommand(os.LookupEnv).Execute(); err != nil {
		os.Exit(1)
	}
}
