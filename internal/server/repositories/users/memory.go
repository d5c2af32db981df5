package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	byID      map[string]*models.User
	bySubject map[string]string
	byEmail   map[string]string
	now       func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]*models.User),
		bySubject: make(map[string]string),
		byEmail:   make(map[string]string),
		now:       time.Now,
	}
}

func (r *MemoryRepository) Upsert(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if owner, ok := r.byEmail[user.Email]; ok && r.byID[owner].ExternalSubject != user.ExternalSubject {
		return nil, common.ErrEmailConflict
	}

	if id, ok := r.bySubject[user.ExternalSubject]; ok {
		u := r.byID[id]
		delete(r.byEmail, u.Email)
		r.byEmail[user.Email] = id
		u.Email = user.Email
		u.Name = user.Name
		u.UpdatedAt = now
		cp := *u
		return &cp, nil
	}

	u := &models.User{
		ID:              uuid.NewString(),
		Email:           user.Email,
		ExternalSubject: user.ExternalSubject,
		Name:            user.Name,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.byID[u.ID] = u
	r.bySubject[u.ExternalSubject] = u.ID
	r.byEmail[u.Email] = u.ID

	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

// Len returns the number of stored users.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
