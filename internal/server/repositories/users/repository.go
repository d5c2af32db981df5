// Package users persists broker users.
package users

import (
	"context"

	"github.com/dmitrijs2005/gsheetsmcp/internal/server/models"
)

type Repository interface {
	// Upsert creates the user or, when one with the same external subject
	// exists, refreshes its email and name. The stored row is returned.
	// An email held by a user with a different subject yields
	// common.ErrEmailConflict.
	Upsert(ctx context.Context, user *models.User) (*models.User, error)
	// GetByID returns common.ErrorNotFound when no such user exists.
	GetByID(ctx context.Context, id string) (*models.User, error)
}
