package boiledrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/examportal/core"
	"github.com/trezcool/examportal/core/permission"
	"github.com/trezcool/examportal/core/user"
)

type permissionChange struct {
	ID        string      `boil:"id"`
	UserID    string      `boil:"user_id"`
	ActorID   null.String `boil:"actor_id"`
	Kind      string      `boil:"kind"`
	Target    string      `boil:"target"`
	Changes   null.JSON   `boil:"changes"`
	Before    null.String `boil:"before"`
	After     null.String `boil:"after"`
	CreatedAt time.Time   `boil:"created_at"`
}

type auditRepository struct {
	exec core.DBExecutor
}

var _ user.AuditRepository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(exec core.DBExecutor) user.AuditRepository {
	return &auditRepository{exec: exec}
}

func treeColumn(t permission.Tree) (null.String, error) {
	val, err := t.Value()
	if err != nil {
		return null.String{}, err
	}
	s, ok := val.(string)
	return null.NewString(s, ok), nil
}

func treeFromColumn(col null.String) permission.Tree {
	if !col.Valid {
		return permission.Tree{}
	}
	return permission.Normalize(col.String, "")
}

func (repo *auditRepository) RecordPermissionChange(ctx context.Context, ch user.PermissionChange) (user.PermissionChange, error) {
	ch.ID = uuid.New().String()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}

	changes, err := json.Marshal(ch.Changes)
	if err != nil {
		return user.PermissionChange{}, errors.Wrap(err, "encoding changes")
	}
	before, err := treeColumn(ch.Before)
	if err != nil {
		return user.PermissionChange{}, errors.Wrap(err, "encoding previous permissions")
	}
	after, err := treeColumn(ch.After)
	if err != nil {
		return user.PermissionChange{}, errors.Wrap(err, "encoding new permissions")
	}

	_, err = queries.Raw(`
		INSERT INTO "permission_change" ("id", "user_id", "actor_id", "kind", "target", "changes", "before", "after", "created_at")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ch.ID, ch.UserID, null.NewString(ch.ActorID, ch.ActorID != ""), ch.Kind, ch.Target,
		string(changes), before, after, ch.CreatedAt.UTC(),
	).ExecContext(ctx, repo.exec)
	if err != nil {
		return user.PermissionChange{}, errors.Wrap(err, "inserting permission change")
	}
	return ch, nil
}

func (repo *auditRepository) QueryPermissionChanges(ctx context.Context, userID string) ([]user.PermissionChange, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []user.PermissionChange{}, nil
	}

	var rows []*permissionChange
	err := queries.Raw(`
		SELECT "id", "user_id", "actor_id", "kind", "target", "changes", "before", "after", "created_at"
		FROM "permission_change"
		WHERE "user_id" = $1
		ORDER BY "created_at" DESC`,
		userID,
	).Bind(ctx, repo.exec, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying permission changes")
	}

	changes := make([]user.PermissionChange, 0, len(rows))
	for _, row := range rows {
		ch := user.PermissionChange{
			ID:        row.ID,
			UserID:    row.UserID,
			ActorID:   row.ActorID.String,
			Kind:      row.Kind,
			Target:    row.Target,
			Before:    treeFromColumn(row.Before),
			After:     treeFromColumn(row.After),
			CreatedAt: row.CreatedAt.UTC(),
		}
		if err = row.Changes.Unmarshal(&ch.Changes); err != nil {
			return nil, errors.Wrap(err, "decoding permission changes")
		}
		changes = append(changes, ch)
	}
	return changes, nil
}
