package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gsheetsmcp/internal/dbx"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/repositories/users"
)

// MemoryRepositoryManager hands out the same in-memory repositories whatever
// handle it is given. Transactions opened on the handle are therefore not
// honoured by the stored data.
type MemoryRepositoryManager struct {
	UsersRepo       *users.MemoryRepository
	CredentialsRepo *credentials.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		UsersRepo:       users.NewMemoryRepository(),
		CredentialsRepo: credentials.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository {
	return m.UsersRepo
}

func (m *MemoryRepositoryManager) Credentials(dbx.DBTX) credentials.Repository {
	return m.CredentialsRepo
}
