package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/models"
)

// MemoryRepository keeps credential records in process memory with the same
// upsert semantics as the Postgres repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	byUser map[string]*models.CredentialRecord
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byUser: make(map[string]*models.CredentialRecord),
		now:    time.Now,
	}
}

func (r *MemoryRepository) Upsert(_ context.Context, rec *models.CredentialRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	next := clone(rec)
	next.UpdatedAt = now

	if prev, ok := r.byUser[rec.UserID]; ok {
		next.ID = prev.ID
		next.CreatedAt = prev.CreatedAt
		if next.EncryptedRefreshToken == nil {
			next.EncryptedRefreshToken = prev.EncryptedRefreshToken
		}
	} else {
		r.nextID++
		next.ID = r.nextID
		next.CreatedAt = now
	}

	r.byUser[rec.UserID] = next
	return nil
}

func (r *MemoryRepository) GetByUserID(_ context.Context, userID string) (*models.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byUser[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(rec), nil
}

// Len returns the number of stored records.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func clone(rec *models.CredentialRecord) *models.CredentialRecord {
	cp := *rec
	if rec.EncryptedRefreshToken != nil {
		s := *rec.EncryptedRefreshToken
		cp.EncryptedRefreshToken = &s
	}
	if rec.Expiry != nil {
		t := *rec.Expiry
		cp.Expiry = &t
	}
	return &cp
}
