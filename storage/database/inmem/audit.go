package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/examportal/core/permission"
	"github.com/trezcool/examportal/core/user"
)

type auditRepository struct {
	db *auditTable
}

var _ user.AuditRepository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) user.AuditRepository {
	return &auditRepository{db: db.audit}
}

func (repo *auditRepository) RecordPermissionChange(_ context.Context, ch user.PermissionChange) (user.PermissionChange, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ch.ID = uuid.New().String()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	ch.Changes = append([]permission.Change(nil), ch.Changes...)
	repo.db.rows = append(repo.db.rows, ch)
	return ch, nil
}

func (repo *auditRepository) QueryPermissionChanges(_ context.Context, userID string) ([]user.PermissionChange, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	changes := make([]user.PermissionChange, 0)
	for i := len(repo.db.rows) - 1; i >= 0; i-- {
		if ch := repo.db.rows[i]; ch.UserID == userID {
			ch.Changes = append([]permission.Change(nil), ch.Changes...)
			changes = append(changes, ch)
		}
	}
	return changes, nil
}
