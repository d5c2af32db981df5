// Package repomanager vends repositories bound to a database handle, so
// services can run the same repository code against *sql.DB or inside a
// transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gsheetsmcp/internal/dbx"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Credentials(db dbx.DBTX) credentials.Repository
}
